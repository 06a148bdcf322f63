package tracker

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/freshtrace/chaincore/src/utils/config"
	"github.com/freshtrace/chaincore/src/utils/monitoring"
	"github.com/freshtrace/chaincore/src/utils/task"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrNotFound = errors.New("transaction not found")
	ErrTimeout  = errors.New("timed out waiting for confirmation")
	ErrFailed   = errors.New("transaction failed")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Snapshot is the tracked state of one transaction at one point in time.
// Subscribers always receive copies.
type Snapshot struct {
	Hash           common.Hash
	Status         Status
	From           common.Address
	To             common.Address
	BlockNumber    uint64
	BlockHash      common.Hash
	BlockTimestamp uint64
	GasUsed        uint64
	GasPrice       *big.Int
	Confirmations  uint64
	Error          string
	Metadata       map[string]interface{}
}

// ChainReader is the part of the chain endpoint the tracker polls.
type ChainReader interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type entry struct {
	snapshot    Snapshot
	cancel      context.CancelFunc
	subscribers map[int]func(Snapshot)
	nextSubID   int

	// Once terminal the snapshot is immutable and polling has stopped
	terminal bool
}

// Tracker polls the chain endpoint for the finality status of submitted
// transaction hashes and fans state changes out to subscribers.
// One poll goroutine per hash, serialized per hash, independent across
// hashes. One instance per application session, never a singleton.
type Tracker struct {
	*task.Task

	client  ChainReader
	monitor *monitoring.Monitor

	mtx     sync.Mutex
	entries map[common.Hash]*entry
}

func NewTracker(config *config.Config) (self *Tracker) {
	self = new(Tracker)
	self.entries = make(map[common.Hash]*entry)

	self.Task = task.NewTask(config, "tracker").
		WithOnStop(func() {
			self.Clear()
		})

	return
}

func (self *Tracker) WithClient(client ChainReader) *Tracker {
	self.client = client
	return self
}

func (self *Tracker) WithMonitor(monitor *monitoring.Monitor) *Tracker {
	self.monitor = monitor
	return self
}

// Track registers a hash for polling. Fails with ErrNotFound when the
// chain endpoint has no record of the hash. A hash that is already
// tracked keeps its running poll cycle.
func (self *Tracker) Track(ctx context.Context, hash common.Hash, metadata map[string]interface{}) (err error) {
	self.mtx.Lock()
	if _, ok := self.entries[hash]; ok {
		self.mtx.Unlock()
		return nil
	}
	self.mtx.Unlock()

	tx, _, err := self.client.TransactionByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) {
			return fmt.Errorf("failed to look up transaction: %w", err)
		}

		// Some endpoints forget the body but still serve the receipt
		_, err = self.client.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to look up receipt: %w", err)
		}
		tx = nil
	}

	snapshot := Snapshot{
		Hash:     hash,
		Status:   StatusPending,
		Metadata: metadata,
	}
	if tx != nil {
		if to := tx.To(); to != nil {
			snapshot.To = *to
		}
		if sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
			snapshot.From = sender
		}
	}

	pollCtx, cancel := context.WithCancel(self.Ctx)

	self.mtx.Lock()
	if _, ok := self.entries[hash]; ok {
		// Raced with another Track call, keep the first poll cycle
		self.mtx.Unlock()
		cancel()
		return nil
	}
	self.entries[hash] = &entry{
		snapshot:    snapshot,
		cancel:      cancel,
		subscribers: make(map[int]func(Snapshot)),
	}
	self.mtx.Unlock()

	if self.monitor != nil {
		self.monitor.GetReport().Tracker.State.TrackedTransactions.Inc()
	}

	go self.poll(pollCtx, hash)

	return nil
}

// OnUpdate registers a callback invoked synchronously with the current
// snapshot and again on every state change. The returned function
// unsubscribes; calling it more than once is harmless.
func (self *Tracker) OnUpdate(hash common.Hash, callback func(Snapshot)) (unsubscribe func()) {
	self.mtx.Lock()
	e, ok := self.entries[hash]
	if !ok {
		self.mtx.Unlock()
		return func() {}
	}

	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = callback
	current := e.snapshot
	self.mtx.Unlock()

	callback(current)

	return func() {
		self.mtx.Lock()
		if e, ok := self.entries[hash]; ok {
			delete(e.subscribers, id)
		}
		self.mtx.Unlock()
	}
}

// Get returns the current snapshot of a tracked hash.
func (self *Tracker) Get(hash common.Hash) (snapshot Snapshot, err error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	e, ok := self.entries[hash]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return e.snapshot, nil
}

// List returns snapshots of all tracked hashes.
func (self *Tracker) List() (snapshots []Snapshot) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	snapshots = make([]Snapshot, 0, len(self.entries))
	for _, e := range self.entries {
		snapshots = append(snapshots, e.snapshot)
	}
	return
}

// WaitForConfirmation blocks until the hash accumulates the required
// confirmations, the transaction fails, or the configured ceiling
// passes. The internal listener is unsubscribed on every path.
func (self *Tracker) WaitForConfirmation(ctx context.Context, hash common.Hash, requiredConfirmations uint64) (snapshot Snapshot, err error) {
	self.mtx.Lock()
	_, ok := self.entries[hash]
	self.mtx.Unlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	confirmed := make(chan Snapshot, 1)
	failed := make(chan Snapshot, 1)

	unsubscribe := self.OnUpdate(hash, func(s Snapshot) {
		switch {
		case s.Status == StatusFailed:
			select {
			case failed <- s:
			default:
			}
		case s.Status == StatusConfirmed && s.Confirmations >= requiredConfirmations:
			select {
			case confirmed <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	timer := time.NewTimer(self.Config.Tracker.WaitTimeout)
	defer timer.Stop()

	select {
	case snapshot = <-confirmed:
		return snapshot, nil
	case snapshot = <-failed:
		return snapshot, fmt.Errorf("%w: %s", ErrFailed, snapshot.Error)
	case <-timer.C:
		return Snapshot{}, ErrTimeout
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Remove stops polling and discards state for the hash. Idempotent.
func (self *Tracker) Remove(hash common.Hash) {
	self.mtx.Lock()
	e, ok := self.entries[hash]
	if ok {
		delete(self.entries, hash)
	}
	self.mtx.Unlock()

	if ok {
		e.cancel()
		if self.monitor != nil {
			self.monitor.GetReport().Tracker.State.TrackedTransactions.Dec()
		}
	}
}

// Clear removes every tracked hash. Idempotent.
func (self *Tracker) Clear() {
	self.mtx.Lock()
	entries := self.entries
	self.entries = make(map[common.Hash]*entry)
	self.mtx.Unlock()

	for _, e := range entries {
		e.cancel()
		if self.monitor != nil {
			self.monitor.GetReport().Tracker.State.TrackedTransactions.Dec()
		}
	}
}

func (self *Tracker) poll(ctx context.Context, hash common.Hash) {
	ticker := time.NewTicker(self.Config.Tracker.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if terminal := self.pollOnce(ctx, hash); terminal {
				return
			}
		}
	}
}

// pollOnce performs one poll step. Returns true when the entry reached
// a terminal state and polling must stop.
func (self *Tracker) pollOnce(ctx context.Context, hash common.Hash) (terminal bool) {
	if self.monitor != nil {
		self.monitor.GetReport().Tracker.State.PollsIssued.Inc()
	}

	receipt, err := self.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			// Not mined yet, still pending
			return false
		}
		if errors.Is(err, context.Canceled) {
			return true
		}
		return self.fail(hash, err)
	}

	block, err := self.client.BlockByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return true
		}
		return self.fail(hash, err)
	}

	update := func(snapshot *Snapshot) {
		snapshot.BlockNumber = receipt.BlockNumber.Uint64()
		snapshot.BlockHash = receipt.BlockHash
		snapshot.BlockTimestamp = block.Time()
		snapshot.GasUsed = receipt.GasUsed
		snapshot.GasPrice = receipt.EffectiveGasPrice

		if receipt.Status == types.ReceiptStatusSuccessful {
			snapshot.Status = StatusConfirmed
		} else {
			snapshot.Status = StatusFailed
			snapshot.Error = "transaction reverted"
		}
	}

	// Head height failures keep the previous confirmation count
	head, err := self.client.BlockNumber(ctx)
	receiptBlock := receipt.BlockNumber.Uint64()

	self.mtx.Lock()
	e, ok := self.entries[hash]
	if !ok || e.terminal {
		self.mtx.Unlock()
		return true
	}

	previous := e.snapshot
	update(&e.snapshot)
	if err == nil {
		if head >= receiptBlock {
			e.snapshot.Confirmations = head - receiptBlock + 1
		} else {
			e.snapshot.Confirmations = 0
		}
	}

	terminal = e.snapshot.Status == StatusFailed ||
		e.snapshot.Confirmations >= self.Config.Tracker.RequiredConfirmations
	e.terminal = terminal

	changed := previous.Status != e.snapshot.Status ||
		previous.Confirmations != e.snapshot.Confirmations ||
		previous.BlockNumber != e.snapshot.BlockNumber
	snapshot := e.snapshot
	subscribers := self.collectSubscribers(e)
	self.mtx.Unlock()

	if changed {
		self.notify(subscribers, snapshot)
	}

	if terminal && self.monitor != nil {
		if snapshot.Status == StatusFailed {
			self.monitor.GetReport().Tracker.State.Failed.Inc()
		} else {
			self.monitor.GetReport().Tracker.State.Confirmed.Inc()
		}
	}

	return
}

// fail marks the hash terminally failed and notifies subscribers.
func (self *Tracker) fail(hash common.Hash, cause error) (terminal bool) {
	self.Log.WithError(cause).WithField("hash", hash.Hex()).Error("Polling failed")

	self.mtx.Lock()
	e, ok := self.entries[hash]
	if !ok || e.terminal {
		self.mtx.Unlock()
		return true
	}

	e.snapshot.Status = StatusFailed
	e.snapshot.Error = cause.Error()
	e.terminal = true
	snapshot := e.snapshot
	subscribers := self.collectSubscribers(e)
	self.mtx.Unlock()

	self.notify(subscribers, snapshot)

	if self.monitor != nil {
		self.monitor.GetReport().Tracker.State.Failed.Inc()
	}

	return true
}

func (self *Tracker) collectSubscribers(e *entry) (subscribers []func(Snapshot)) {
	subscribers = make([]func(Snapshot), 0, len(e.subscribers))
	for _, callback := range e.subscribers {
		subscribers = append(subscribers, callback)
	}
	return
}

// Callbacks run outside the entry lock
func (self *Tracker) notify(subscribers []func(Snapshot), snapshot Snapshot) {
	for _, callback := range subscribers {
		callback(snapshot)
	}
}
