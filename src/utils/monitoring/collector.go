package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	monitor *Monitor

	LogsFetched         *prometheus.Desc
	EventsParsed        *prometheus.Desc
	TransactionsSaved   *prometheus.Desc
	PersistenceErrors   *prometheus.Desc
	FetchErrors         *prometheus.Desc
	TrackedTransactions *prometheus.Desc
	PollsIssued         *prometheus.Desc
	QueueEnqueued       *prometheus.Desc
	BatchesSubmitted    *prometheus.Desc
	BatchesFailed       *prometheus.Desc
	TransactionsSent    *prometheus.Desc
	SendErrors          *prometheus.Desc
}

func NewCollector() (self *Collector) {
	self = new(Collector)

	self.LogsFetched = prometheus.NewDesc("logs_fetched", "", nil, nil)
	self.EventsParsed = prometheus.NewDesc("events_parsed", "", nil, nil)
	self.TransactionsSaved = prometheus.NewDesc("transactions_saved", "", nil, nil)
	self.PersistenceErrors = prometheus.NewDesc("error_persistence", "", nil, nil)
	self.FetchErrors = prometheus.NewDesc("error_fetch", "", nil, nil)
	self.TrackedTransactions = prometheus.NewDesc("tracked_transactions", "", nil, nil)
	self.PollsIssued = prometheus.NewDesc("polls_issued", "", nil, nil)
	self.QueueEnqueued = prometheus.NewDesc("queue_enqueued", "", nil, nil)
	self.BatchesSubmitted = prometheus.NewDesc("batches_submitted", "", nil, nil)
	self.BatchesFailed = prometheus.NewDesc("batches_failed", "", nil, nil)
	self.TransactionsSent = prometheus.NewDesc("transactions_sent", "", nil, nil)
	self.SendErrors = prometheus.NewDesc("send_errors", "", nil, nil)

	return
}

func (self *Collector) WithMonitor(m *Monitor) *Collector {
	self.monitor = m
	return self
}

func (self *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- self.LogsFetched
	ch <- self.EventsParsed
	ch <- self.TransactionsSaved
	ch <- self.PersistenceErrors
	ch <- self.FetchErrors
	ch <- self.TrackedTransactions
	ch <- self.PollsIssued
	ch <- self.QueueEnqueued
	ch <- self.BatchesSubmitted
	ch <- self.BatchesFailed
	ch <- self.TransactionsSent
	ch <- self.SendErrors
}

func (self *Collector) Collect(ch chan<- prometheus.Metric) {
	report := self.monitor.GetReport()

	ch <- prometheus.MustNewConstMetric(self.LogsFetched, prometheus.CounterValue, float64(report.Syncer.State.LogsFetched.Load()))
	ch <- prometheus.MustNewConstMetric(self.EventsParsed, prometheus.CounterValue, float64(report.Syncer.State.EventsParsed.Load()))
	ch <- prometheus.MustNewConstMetric(self.TransactionsSaved, prometheus.CounterValue, float64(report.Syncer.State.TransactionsSaved.Load()))
	ch <- prometheus.MustNewConstMetric(self.PersistenceErrors, prometheus.CounterValue, float64(report.Syncer.Errors.PersistenceErrors.Load()))
	ch <- prometheus.MustNewConstMetric(self.FetchErrors, prometheus.CounterValue, float64(report.Syncer.Errors.FetchErrors.Load()))
	ch <- prometheus.MustNewConstMetric(self.TrackedTransactions, prometheus.GaugeValue, float64(report.Tracker.State.TrackedTransactions.Load()))
	ch <- prometheus.MustNewConstMetric(self.PollsIssued, prometheus.CounterValue, float64(report.Tracker.State.PollsIssued.Load()))
	ch <- prometheus.MustNewConstMetric(self.QueueEnqueued, prometheus.CounterValue, float64(report.Queue.State.Enqueued.Load()))
	ch <- prometheus.MustNewConstMetric(self.BatchesSubmitted, prometheus.CounterValue, float64(report.Queue.State.BatchesSubmitted.Load()))
	ch <- prometheus.MustNewConstMetric(self.BatchesFailed, prometheus.CounterValue, float64(report.Queue.State.BatchesFailed.Load()))
	ch <- prometheus.MustNewConstMetric(self.TransactionsSent, prometheus.CounterValue, float64(report.Gateway.State.TransactionsSent.Load()))
	ch <- prometheus.MustNewConstMetric(self.SendErrors, prometheus.CounterValue, float64(report.Gateway.State.SendErrors.Load()))
}
