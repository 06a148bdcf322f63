package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/freshtrace/chaincore/src/gateway"
	"github.com/freshtrace/chaincore/src/utils/config"
	"github.com/freshtrace/chaincore/src/utils/kv"
	"github.com/freshtrace/chaincore/src/utils/logger"
	"github.com/freshtrace/chaincore/src/utils/monitoring"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound   = errors.New("queue item not found")
	ErrNotPending = errors.New("queue item is not pending")
	ErrProcessing = errors.New("queue is processing")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Item is one queued call waiting to be batched into a single user
// operation.
type Item struct {
	ID          string         `json:"id"`
	To          common.Address `json:"to"`
	Data        hexutil.Bytes  `json:"data"`
	Value       *hexutil.Big   `json:"value"`
	Description string         `json:"description"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`

	// Set once the batch lands or fails
	TxHash string `json:"tx_hash,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Sender submits the accumulated batch.
type Sender interface {
	SendBatch(ctx context.Context, transactions []gateway.Transaction) (common.Hash, error)
}

// Manager accumulates calls and submits them all at once. The list is
// snapshotted to the kv store after every change so a restart does not
// lose queued work.
type Manager struct {
	mtx        sync.Mutex
	items      []*Item
	processing bool

	config  *config.Config
	store   kv.Store
	sender  Sender
	monitor *monitoring.Monitor
	log     *logrus.Entry
}

func NewManager(config *config.Config) (self *Manager) {
	self = new(Manager)
	self.log = logger.NewSublogger("queue")
	self.config = config
	self.monitor = monitoring.NewMonitor()
	return
}

func (self *Manager) WithStore(store kv.Store) *Manager {
	self.store = store
	return self
}

func (self *Manager) WithSender(sender Sender) *Manager {
	self.sender = sender
	return self
}

func (self *Manager) WithMonitor(monitor *monitoring.Monitor) *Manager {
	self.monitor = monitor
	return self
}

// Load restores the snapshot. Items caught mid-batch by a crash come
// back as pending, resubmission is safe because the batch never landed
// with a recorded hash.
func (self *Manager) Load(ctx context.Context) (err error) {
	var items []*Item
	err = self.store.Load(ctx, self.config.Queue.SnapshotKey, &items)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return
	}

	for _, item := range items {
		if item.Status == StatusProcessing {
			item.Status = StatusPending
		}
	}

	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.items = items
	return
}

func (self *Manager) persist(ctx context.Context) {
	err := self.store.Save(ctx, self.config.Queue.SnapshotKey, self.items)
	if err != nil {
		self.log.WithError(err).Error("Failed to persist queue snapshot")
	}
}

// Enqueue appends the call and returns its id. Duplicates are allowed,
// the queue has no opinion about what the calls do.
func (self *Manager) Enqueue(ctx context.Context, to common.Address, data []byte, value *hexutil.Big, description string) (id string) {
	item := &Item{
		ID:          xid.New().String(),
		To:          to,
		Data:        data,
		Value:       value,
		Description: description,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}

	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.items = append(self.items, item)
	self.persist(ctx)

	self.monitor.Report.Queue.State.Enqueued.Inc()
	return item.ID
}

// Remove drops a single pending item.
func (self *Manager) Remove(ctx context.Context, id string) (err error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	for i, item := range self.items {
		if item.ID != id {
			continue
		}
		if item.Status != StatusPending {
			return ErrNotPending
		}
		self.items = append(self.items[:i], self.items[i+1:]...)
		self.persist(ctx)
		return nil
	}
	return ErrNotFound
}

// Clear empties the queue. Refused while a batch is in flight.
func (self *Manager) Clear(ctx context.Context) (err error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	if self.processing {
		return ErrProcessing
	}

	self.items = nil
	self.persist(ctx)
	return
}

// Items returns a copy of the queue in insertion order.
func (self *Manager) Items() (items []Item) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	items = make([]Item, 0, len(self.items))
	for _, item := range self.items {
		items = append(items, *item)
	}
	return
}

// ProcessAll submits every pending item as one atomic batch. All of
// them share the outcome: the batch hash on success, the error message
// on failure. Only one batch can be in flight at a time.
func (self *Manager) ProcessAll(ctx context.Context) (hash common.Hash, err error) {
	self.mtx.Lock()
	if self.processing {
		self.mtx.Unlock()
		return hash, ErrProcessing
	}

	var batch []*Item
	for _, item := range self.items {
		if item.Status == StatusPending {
			item.Status = StatusProcessing
			batch = append(batch, item)
		}
	}
	if len(batch) == 0 {
		self.mtx.Unlock()
		return
	}
	self.processing = true
	self.persist(ctx)
	self.mtx.Unlock()

	transactions := make([]gateway.Transaction, len(batch))
	for i, item := range batch {
		transactions[i] = gateway.Transaction{
			To:   item.To,
			Data: item.Data,
		}
		if item.Value != nil {
			transactions[i].Value = item.Value.ToInt()
		}
	}

	hash, err = self.sender.SendBatch(ctx, transactions)

	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.processing = false

	if err != nil {
		for _, item := range batch {
			item.Status = StatusFailed
			item.Error = err.Error()
		}
		self.persist(ctx)
		self.monitor.Report.Queue.State.BatchesFailed.Inc()
		return hash, fmt.Errorf("batch submission failed: %w", err)
	}

	completed := make([]string, 0, len(batch))
	for _, item := range batch {
		item.Status = StatusCompleted
		item.TxHash = hash.Hex()
		completed = append(completed, item.ID)
	}
	self.persist(ctx)
	self.monitor.Report.Queue.State.BatchesSubmitted.Inc()

	time.AfterFunc(self.config.Queue.PruneDelay, func() {
		self.prune(completed)
	})

	self.log.WithField("hash", hash.Hex()).
		WithField("num_items", len(batch)).
		Info("Batch submitted")
	return
}

// prune drops the completed items of one finished batch.
func (self *Manager) prune(ids []string) {
	pruned := make(map[string]bool, len(ids))
	for _, id := range ids {
		pruned[id] = true
	}

	self.mtx.Lock()
	defer self.mtx.Unlock()

	kept := self.items[:0]
	for _, item := range self.items {
		if item.Status == StatusCompleted && pruned[item.ID] {
			continue
		}
		kept = append(kept, item)
	}
	self.items = kept
	self.persist(context.Background())
}
