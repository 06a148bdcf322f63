package monitoring

import (
	"go.uber.org/atomic"
)

type RunReport struct {
	StartTimestamp atomic.Int64  `json:"start_timestamp"`
	UpForSeconds   atomic.Uint64 `json:"up_for_seconds"`
}

type SyncerState struct {
	LogsFetched       atomic.Uint64 `json:"logs_fetched"`
	EventsParsed      atomic.Uint64 `json:"events_parsed"`
	EventsSkipped     atomic.Uint64 `json:"events_skipped"`
	TransactionsSaved atomic.Uint64 `json:"transactions_saved"`
	SyncsFinished     atomic.Uint64 `json:"syncs_finished"`

	AverageTransactionsSavedPerMinute atomic.Float64 `json:"average_transactions_saved_per_minute"`
}

type SyncerErrors struct {
	FetchErrors       atomic.Uint64 `json:"fetch"`
	EnrichErrors      atomic.Uint64 `json:"enrich"`
	PersistenceErrors atomic.Uint64 `json:"persistence"`
}

type SyncerReport struct {
	State  SyncerState  `json:"state"`
	Errors SyncerErrors `json:"errors"`
}

type TrackerState struct {
	TrackedTransactions atomic.Int64  `json:"tracked_transactions"`
	PollsIssued         atomic.Uint64 `json:"polls_issued"`
	Confirmed           atomic.Uint64 `json:"confirmed"`
	Failed              atomic.Uint64 `json:"failed"`
}

type TrackerReport struct {
	State TrackerState `json:"state"`
}

type QueueState struct {
	Enqueued         atomic.Uint64 `json:"enqueued"`
	BatchesSubmitted atomic.Uint64 `json:"batches_submitted"`
	BatchesFailed    atomic.Uint64 `json:"batches_failed"`
}

type QueueReport struct {
	State QueueState `json:"state"`
}

type GatewayState struct {
	TransactionsSent atomic.Uint64 `json:"transactions_sent"`
	SendErrors       atomic.Uint64 `json:"send_errors"`
}

type GatewayReport struct {
	State GatewayState `json:"state"`
}

type Report struct {
	Run     *RunReport     `json:"run"`
	Syncer  *SyncerReport  `json:"syncer"`
	Tracker *TrackerReport `json:"tracker"`
	Queue   *QueueReport   `json:"queue"`
	Gateway *GatewayReport `json:"gateway"`
}
