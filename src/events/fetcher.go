package events

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/freshtrace/chaincore/src/utils/config"
	"github.com/freshtrace/chaincore/src/utils/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

var ErrFetch = errors.New("log fetch failed")

// LogSource is the part of the chain endpoint the fetcher needs.
type LogSource interface {
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// Filter narrows a log query. All fields are optional; the zero value
// asks for every event of the contract from its start block to latest.
type Filter struct {
	Kind      *Kind
	BatchID   *big.Int
	FromBlock *big.Int
	ToBlock   *big.Int
}

// Fetcher queries the chain endpoint for contract event logs.
// It does not retry, that is the caller's call.
type Fetcher struct {
	client   LogSource
	contract common.Address
	from     *big.Int
	log      *logrus.Entry
}

func NewFetcher(config *config.Config) (self *Fetcher) {
	self = new(Fetcher)
	self.log = logger.NewSublogger("event-fetcher")
	self.contract = common.HexToAddress(config.Chain.ContractAddress)
	self.from = big.NewInt(config.Chain.StartBlock)
	return
}

func (self *Fetcher) WithClient(client LogSource) *Fetcher {
	self.client = client
	return self
}

// FetchLogs returns raw logs in the order the endpoint returns them,
// ascending block order assumed and not re-sorted.
func (self *Fetcher) FetchLogs(ctx context.Context, filter Filter) (logs []types.Log, err error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{self.contract},
		FromBlock: self.from,
		ToBlock:   filter.ToBlock,
	}
	if filter.FromBlock != nil {
		query.FromBlock = filter.FromBlock
	}

	var topic0 []common.Hash
	if filter.Kind != nil {
		topic0 = []common.Hash{filter.Kind.Topic()}
	} else {
		for _, kind := range Kinds() {
			topic0 = append(topic0, kind.Topic())
		}
	}
	query.Topics = [][]common.Hash{topic0}

	if filter.BatchID != nil {
		// Indexed batch id, left-padded to 32 bytes
		query.Topics = append(query.Topics, []common.Hash{common.BigToHash(filter.BatchID)})
	}

	logs, err = self.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFetch, err)
	}

	self.log.WithField("num_logs", len(logs)).Debug("Fetched contract logs")
	return
}
