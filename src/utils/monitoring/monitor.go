package monitoring

import (
	"math"
	"net/http"
	"time"

	"github.com/freshtrace/chaincore/src/utils/task"

	"github.com/gammazero/deque"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Stores and computes monitor counters
type Monitor struct {
	*task.Task

	Report Report

	historySize int

	collector *Collector

	// Rolling window of saved-transaction counts
	transactionsSaved *deque.Deque[uint64]
}

func NewMonitor() (self *Monitor) {
	self = new(Monitor)

	self.Report = Report{
		Run:     &RunReport{},
		Syncer:  &SyncerReport{},
		Tracker: &TrackerReport{},
		Queue:   &QueueReport{},
		Gateway: &GatewayReport{},
	}

	self.Report.Run.StartTimestamp.Store(time.Now().Unix())

	self.collector = NewCollector().WithMonitor(self)

	self.Task = task.NewTask(nil, "monitor").
		WithPeriodicSubtaskFunc(time.Minute, self.monitorSavedTransactions)
	return
}

func (self *Monitor) WithMaxHistorySize(maxHistorySize int) *Monitor {
	self.historySize = maxHistorySize
	self.transactionsSaved = deque.New[uint64](self.historySize)
	return self
}

func (self *Monitor) GetReport() *Report {
	return &self.Report
}

func (self *Monitor) GetPrometheusCollector() prometheus.Collector {
	return self.collector
}

func round(f float64) float64 {
	return math.Round(f*100) / 100
}

// Measure cache write speed
func (self *Monitor) monitorSavedTransactions() (err error) {
	loaded := self.Report.Syncer.State.TransactionsSaved.Load()
	if loaded == 0 {
		// Neglect the first 0
		return
	}

	self.transactionsSaved.PushBack(loaded)
	if self.transactionsSaved.Len() > self.historySize {
		self.transactionsSaved.PopFront()
	}
	value := float64(self.transactionsSaved.Back()-self.transactionsSaved.Front()) / float64(self.transactionsSaved.Len())
	self.Report.Syncer.State.AverageTransactionsSavedPerMinute.Store(round(value))
	return
}

func (self *Monitor) OnGet(c *gin.Context) {
	self.Report.Run.UpForSeconds.Store(uint64(time.Now().Unix() - self.Report.Run.StartTimestamp.Load()))
	c.JSON(http.StatusOK, &self.Report)
}
