package events

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/freshtrace/chaincore/src/utils/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestFetcherTestSuite(t *testing.T) {
	suite.Run(t, new(FetcherTestSuite))
}

type fakeLogSource struct {
	lastQuery ethereum.FilterQuery
	logs      []types.Log
	err       error
}

func (self *fakeLogSource) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	self.lastQuery = query
	return self.logs, self.err
}

type FetcherTestSuite struct {
	suite.Suite
	config *config.Config
	source *fakeLogSource
}

func (s *FetcherTestSuite) SetupTest() {
	s.config = config.Default()
	s.config.Chain.ContractAddress = "0x00000000000000000000000000000000000c0ffe"
	s.config.Chain.StartBlock = 100
	s.source = new(fakeLogSource)
}

func (s *FetcherTestSuite) TestDefaultFilter() {
	fetcher := NewFetcher(s.config).WithClient(s.source)

	logs, err := fetcher.FetchLogs(context.Background(), Filter{})
	assert.Nil(s.T(), err)
	assert.Empty(s.T(), logs)

	query := s.source.lastQuery
	assert.Equal(s.T(), common.HexToAddress(s.config.Chain.ContractAddress), query.Addresses[0])
	assert.Equal(s.T(), int64(100), query.FromBlock.Int64())
	assert.Nil(s.T(), query.ToBlock)

	// No kind restriction means all six signatures in topic 0
	assert.Len(s.T(), query.Topics, 1)
	assert.Len(s.T(), query.Topics[0], 6)
}

func (s *FetcherTestSuite) TestKindAndBatchFilter() {
	fetcher := NewFetcher(s.config).WithClient(s.source)

	kind := BatchCompleted
	_, err := fetcher.FetchLogs(context.Background(), Filter{
		Kind:      &kind,
		BatchID:   big.NewInt(7),
		FromBlock: big.NewInt(200),
		ToBlock:   big.NewInt(300),
	})
	assert.Nil(s.T(), err)

	query := s.source.lastQuery
	assert.Equal(s.T(), int64(200), query.FromBlock.Int64())
	assert.Equal(s.T(), int64(300), query.ToBlock.Int64())
	assert.Equal(s.T(), [][]common.Hash{
		{BatchCompleted.Topic()},
		{common.BigToHash(big.NewInt(7))},
	}, query.Topics)
}

func (s *FetcherTestSuite) TestFetchError() {
	s.source.err = errors.New("connection refused")
	fetcher := NewFetcher(s.config).WithClient(s.source)

	logs, err := fetcher.FetchLogs(context.Background(), Filter{})
	assert.Nil(s.T(), logs)
	assert.ErrorIs(s.T(), err, ErrFetch)
}
