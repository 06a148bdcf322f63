package syncer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/freshtrace/chaincore/src/events"
	"github.com/freshtrace/chaincore/src/utils/config"
	"github.com/freshtrace/chaincore/src/utils/model"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestSyncerTestSuite(t *testing.T) {
	suite.Run(t, new(SyncerTestSuite))
}

// memoryStore mimics the upsert semantics of the database store.
type memoryStore struct {
	mtx     sync.Mutex
	rows    map[string]*model.BlockchainTransaction
	upserts int
	failFor string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[string]*model.BlockchainTransaction)}
}

func (self *memoryStore) Upsert(ctx context.Context, transaction *model.BlockchainTransaction) error {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.upserts++
	if self.failFor != "" && transaction.BatchID == self.failFor {
		return errors.New("connection reset")
	}
	key := fmt.Sprintf("%s/%s/%s", transaction.OwnerID, transaction.Hash, transaction.BatchID)
	self.rows[key] = transaction
	return nil
}

func (self *memoryStore) list() (rows []*model.BlockchainTransaction) {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	for _, row := range self.rows {
		rows = append(rows, row)
	}
	return
}

type fakeChain struct {
	logs     []types.Log
	logsErr  error
	txs      map[common.Hash]*types.Transaction
	receipts map[common.Hash]*types.Receipt

	txCalls int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		txs:      make(map[common.Hash]*types.Transaction),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (self *fakeChain) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return self.logs, self.logsErr
}

func (self *fakeChain) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	self.txCalls++
	tx, ok := self.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, false, nil
}

func (self *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, ok := self.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (self *fakeChain) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	return types.NewBlockWithHeader(&types.Header{
		Number: number,
		Time:   1700000000,
	}), nil
}

type SyncerTestSuite struct {
	suite.Suite
	config *config.Config
	chain  *fakeChain
	store  *memoryStore
	syncer *Syncer
	user   common.Address
}

func (s *SyncerTestSuite) SetupTest() {
	s.config = config.Default()
	s.config.Syncer.BackoffMaxElapsedTime = 50 * time.Millisecond // keep retries short
	s.chain = newFakeChain()
	s.store = newMemoryStore()
	s.syncer = NewSyncer(s.config).
		WithClient(s.chain).
		WithStore(s.store)
	s.user = common.HexToAddress("0x00000000000000000000000000000000000ac708")
}

func (s *SyncerTestSuite) addEvent(kind events.Kind, batchId int64, actor common.Address, txHash common.Hash) {
	s.chain.logs = append(s.chain.logs, types.Log{
		Topics: []common.Hash{
			kind.Topic(),
			common.BigToHash(big.NewInt(batchId)),
			common.BytesToHash(common.LeftPadBytes(actor.Bytes(), 32)),
		},
		BlockNumber: 100,
		TxHash:      txHash,
	})

	s.chain.txs[txHash] = types.NewTx(&types.LegacyTx{
		To:    &common.Address{0xc0},
		Value: big.NewInt(0),
		Gas:   21000,
	})
	s.chain.receipts[txHash] = &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		BlockNumber:       big.NewInt(100),
		GasUsed:           50000,
		EffectiveGasPrice: big.NewInt(1000000000),
	}
}

func (s *SyncerTestSuite) TestSyncFiltersByActor() {
	other := common.HexToAddress("0x0bad")
	s.addEvent(events.BatchCompleted, 1, s.user, common.HexToHash("0x01"))
	s.addEvent(events.CollectorDataAdded, 2, other, common.HexToHash("0x02"))

	err := s.syncer.SyncForUser(context.Background(), "user-1", s.user.Hex())
	assert.Nil(s.T(), err)

	rows := s.store.list()
	assert.Len(s.T(), rows, 1)
	assert.Equal(s.T(), "1", rows[0].BatchID)
	assert.Equal(s.T(), string(events.BatchCompleted), rows[0].EventType)
	assert.Equal(s.T(), "user-1", rows[0].OwnerID)
}

func (s *SyncerTestSuite) TestActorMatchIsCaseInsensitive() {
	s.addEvent(events.BatchCreated, 1, s.user, common.HexToHash("0x01"))

	// Differently cased address still matches the actor
	err := s.syncer.SyncForUser(context.Background(), "user-1", "0x00000000000000000000000000000000000AC708")
	assert.Nil(s.T(), err)
	assert.Len(s.T(), s.store.list(), 1)
}

func (s *SyncerTestSuite) TestSyncIsIdempotent() {
	s.addEvent(events.BatchCompleted, 1, s.user, common.HexToHash("0x01"))
	s.addEvent(events.TesterDataAdded, 2, s.user, common.HexToHash("0x02"))

	err := s.syncer.SyncForUser(context.Background(), "user-1", s.user.Hex())
	assert.Nil(s.T(), err)
	err = s.syncer.SyncForUser(context.Background(), "user-1", s.user.Hex())
	assert.Nil(s.T(), err)

	// Upserts ran twice, the rows converged
	assert.Equal(s.T(), 4, s.store.upserts)
	assert.Len(s.T(), s.store.list(), 2)
}

func (s *SyncerTestSuite) TestEnrichment() {
	s.addEvent(events.ManufacturerDataAdded, 5, s.user, common.HexToHash("0x01"))

	err := s.syncer.SyncForUser(context.Background(), "user-1", s.user.Hex())
	assert.Nil(s.T(), err)

	rows := s.store.list()
	assert.Len(s.T(), rows, 1)
	row := rows[0]
	assert.Equal(s.T(), model.TxStatusConfirmed, row.Status)
	assert.Equal(s.T(), uint64(50000), row.GasUsed)
	assert.Equal(s.T(), "1000000000", row.GasPrice)
	assert.Equal(s.T(), "50000000000000", row.Fee) // 50000 * 1 gwei
	assert.Equal(s.T(), int64(1700000000), row.BlockTimestamp)
	assert.Equal(s.T(), "Manufacturing", row.Phase)
	assert.Equal(s.T(), "Added manufacturing data", row.Description)
}

func (s *SyncerTestSuite) TestPendingTransaction() {
	s.addEvent(events.BatchCreated, 3, s.user, common.HexToHash("0x01"))
	delete(s.chain.receipts, common.HexToHash("0x01"))

	err := s.syncer.SyncForUser(context.Background(), "user-1", s.user.Hex())
	assert.Nil(s.T(), err)

	rows := s.store.list()
	assert.Len(s.T(), rows, 1)
	assert.Equal(s.T(), model.TxStatusPending, rows[0].Status)
	assert.Zero(s.T(), rows[0].GasUsed)
}

func (s *SyncerTestSuite) TestFailedUpsertDoesNotAbort() {
	s.addEvent(events.BatchCreated, 1, s.user, common.HexToHash("0x01"))
	s.addEvent(events.BatchCreated, 2, s.user, common.HexToHash("0x02"))
	s.addEvent(events.BatchCreated, 3, s.user, common.HexToHash("0x03"))
	s.store.failFor = "2"

	err := s.syncer.SyncForUser(context.Background(), "user-1", s.user.Hex())
	assert.Nil(s.T(), err)

	// The failing row is skipped, the other two land
	assert.Len(s.T(), s.store.list(), 2)
}

func (s *SyncerTestSuite) TestFetchErrorAborts() {
	s.chain.logsErr = errors.New("connection refused")

	err := s.syncer.SyncForUser(context.Background(), "user-1", s.user.Hex())
	assert.ErrorIs(s.T(), err, events.ErrFetch)
}

func (s *SyncerTestSuite) TestSeenCacheShortCircuitsChainReads() {
	// Two events of the same transaction
	hash := common.HexToHash("0x01")
	s.addEvent(events.BatchCreated, 1, s.user, hash)
	s.chain.logs = append(s.chain.logs, types.Log{
		Topics: []common.Hash{
			events.BatchCompleted.Topic(),
			common.BigToHash(big.NewInt(1)),
			common.BytesToHash(common.LeftPadBytes(s.user.Bytes(), 32)),
		},
		BlockNumber: 100,
		TxHash:      hash,
	})

	err := s.syncer.SyncForUser(context.Background(), "user-1", s.user.Hex())
	assert.Nil(s.T(), err)

	assert.Equal(s.T(), 1, s.chain.txCalls)
}
