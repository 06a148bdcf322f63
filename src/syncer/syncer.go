package syncer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/freshtrace/chaincore/src/events"
	"github.com/freshtrace/chaincore/src/utils/config"
	"github.com/freshtrace/chaincore/src/utils/logger"
	"github.com/freshtrace/chaincore/src/utils/model"
	"github.com/freshtrace/chaincore/src/utils/monitoring"
	"github.com/freshtrace/chaincore/src/utils/task"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// TransactionStore persists enriched history rows.
type TransactionStore interface {
	Upsert(ctx context.Context, transaction *model.BlockchainTransaction) error
}

// Chain is the part of the endpoint the sync pipeline reads from.
type Chain interface {
	events.LogSource
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
}

// Chain data shared by every event of the same transaction
type enrichment struct {
	tx             *types.Transaction
	receipt        *types.Receipt
	blockTimestamp uint64
}

// Syncer rebuilds a user's transaction history from contract logs.
// Full-range scan, the upsert keyed by (owner, hash, batch) makes
// repeated runs converge instead of duplicating rows.
type Syncer struct {
	config  *config.Config
	client  Chain
	store   TransactionStore
	monitor *monitoring.Monitor
	fetcher *events.Fetcher
	parser  *events.Parser

	// Per-process cache of chain reads keyed by transaction hash
	seen *gocache.Cache

	log *logrus.Entry
}

func NewSyncer(config *config.Config) (self *Syncer) {
	self = new(Syncer)
	self.log = logger.NewSublogger("syncer")
	self.config = config
	self.fetcher = events.NewFetcher(config)
	self.parser = events.NewParser()
	self.monitor = monitoring.NewMonitor()
	self.seen = gocache.New(config.Syncer.SeenCacheExpiration, config.Syncer.SeenCacheCleanup)
	return
}

func (self *Syncer) WithClient(client Chain) *Syncer {
	self.client = client
	self.fetcher = self.fetcher.WithClient(client)
	return self
}

func (self *Syncer) WithStore(store TransactionStore) *Syncer {
	self.store = store
	return self
}

func (self *Syncer) WithMonitor(monitor *monitoring.Monitor) *Syncer {
	self.monitor = monitor
	return self
}

// SyncForUser scans the contract's whole log range and saves every
// event performed by the given address, enriched with transaction and
// receipt data. A single failed row does not abort the rest.
func (self *Syncer) SyncForUser(ctx context.Context, ownerID, userAddress string) (err error) {
	logs, err := self.fetcher.FetchLogs(ctx, events.Filter{})
	if err != nil {
		self.monitor.Report.Syncer.Errors.FetchErrors.Inc()
		return
	}
	self.monitor.Report.Syncer.State.LogsFetched.Add(uint64(len(logs)))

	user := common.HexToAddress(userAddress)

	var saved int
	for _, entry := range logs {
		event := self.parser.ParseLog(entry)
		if event == nil {
			self.monitor.Report.Syncer.State.EventsSkipped.Inc()
			continue
		}
		self.monitor.Report.Syncer.State.EventsParsed.Inc()

		if event.Actor != user {
			self.monitor.Report.Syncer.State.EventsSkipped.Inc()
			continue
		}

		data, err := self.enrich(ctx, event.TxHash)
		if err != nil {
			self.monitor.Report.Syncer.Errors.EnrichErrors.Inc()
			self.log.WithError(err).
				WithField("hash", event.TxHash.Hex()).
				Warn("Failed to enrich event, skipping")
			continue
		}

		record := self.buildRecord(ownerID, event, data)
		err = self.store.Upsert(ctx, record)
		if err != nil {
			self.monitor.Report.Syncer.Errors.PersistenceErrors.Inc()
			self.log.WithError(err).
				WithField("hash", record.Hash).
				WithField("batch_id", record.BatchID).
				Warn("Failed to save transaction, skipping")
			continue
		}

		self.monitor.Report.Syncer.State.TransactionsSaved.Inc()
		saved++
	}

	self.monitor.Report.Syncer.State.SyncsFinished.Inc()
	self.log.WithField("owner_id", ownerID).
		WithField("num_logs", len(logs)).
		WithField("num_saved", saved).
		Info("Sync finished")
	return nil
}

func (self *Syncer) retry(ctx context.Context) *task.Retry {
	return task.NewRetry().
		WithContext(ctx).
		WithMaxInterval(self.config.Syncer.BackoffMaxInterval).
		WithMaxElapsedTime(self.config.Syncer.BackoffMaxElapsedTime).
		WithAcceptableDuration(self.config.Syncer.BackoffMaxInterval).
		WithOnError(func(err error, isDurationAcceptable bool) error {
			if !isDurationAcceptable {
				self.log.WithError(err).Warn("Chain read keeps failing, retrying")
			}
			return err
		})
}

// enrich loads transaction, receipt and block timestamp for the hash,
// serving repeats from the per-process cache.
func (self *Syncer) enrich(ctx context.Context, hash common.Hash) (out *enrichment, err error) {
	if cached, ok := self.seen.Get(hash.Hex()); ok {
		return cached.(*enrichment), nil
	}

	out = new(enrichment)

	var txNotFound bool
	err = self.retry(ctx).Run(func() error {
		tx, _, err := self.client.TransactionByHash(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			txNotFound = true
			return nil
		}
		if err != nil {
			return err
		}
		out.tx = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	if txNotFound {
		// The log exists, so the endpoint should know the transaction
		return nil, fmt.Errorf("transaction %s not found", hash.Hex())
	}

	err = self.retry(ctx).Run(func() error {
		receipt, err := self.client.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			// Still pending
			out.receipt = nil
			return nil
		}
		if err != nil {
			return err
		}
		out.receipt = receipt
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.receipt != nil && out.receipt.BlockNumber != nil {
		err = self.retry(ctx).Run(func() error {
			block, err := self.client.BlockByNumber(ctx, out.receipt.BlockNumber)
			if err != nil {
				return err
			}
			out.blockTimestamp = block.Time()
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	self.seen.Set(hash.Hex(), out, gocache.DefaultExpiration)
	return
}

func (self *Syncer) buildRecord(ownerID string, event *events.ParsedEvent, data *enrichment) (record *model.BlockchainTransaction) {
	record = &model.BlockchainTransaction{
		OwnerID:     ownerID,
		Hash:        event.TxHash.Hex(),
		BatchID:     event.BatchID,
		BlockNumber: int64(event.BlockNumber),
		Status:      model.TxStatusPending,
		EventType:   string(event.Kind),
		BatchNumber: event.BatchNumber,
		Phase:       event.Kind.Phase(),
		Actor:       event.Actor.Hex(),
		Description: event.Kind.Description(),
		CreatedAt:   time.Now(),
	}

	if data.tx != nil {
		record.Value = data.tx.Value().String()
		if to := data.tx.To(); to != nil {
			record.ToAddress = to.Hex()
		}
		from, err := types.Sender(types.LatestSignerForChainID(data.tx.ChainId()), data.tx)
		if err == nil {
			record.FromAddress = from.Hex()
		} else {
			record.FromAddress = event.Actor.Hex()
		}
	}

	if data.receipt != nil {
		record.BlockTimestamp = int64(data.blockTimestamp)
		record.GasUsed = data.receipt.GasUsed

		price := data.receipt.EffectiveGasPrice
		if price != nil {
			record.GasPrice = price.String()
			fee := new(big.Int).Mul(price, new(big.Int).SetUint64(data.receipt.GasUsed))
			record.Fee = fee.String()
		}

		if data.receipt.Status == types.ReceiptStatusSuccessful {
			record.Status = model.TxStatusConfirmed
		} else {
			record.Status = model.TxStatusFailed
		}
	}

	return
}
