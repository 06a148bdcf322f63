package eth

import (
	"context"
	"math/big"
	"time"

	"github.com/freshtrace/chaincore/src/utils/config"
	"github.com/freshtrace/chaincore/src/utils/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
)

// Client wraps the chain node connection with a request rate limit,
// so that bursts of tracker polls and syncs don't trip the provider.
type Client struct {
	rpc     *ethclient.Client
	limiter ratelimit.Limiter
	timeout time.Duration
	log     *logrus.Entry
}

func NewClient(config *config.Config) (self *Client, err error) {
	self = new(Client)
	self.log = logger.NewSublogger("eth-client")
	self.timeout = config.Chain.RequestTimeout
	self.limiter = ratelimit.New(config.Chain.RequestsPerSecond)

	self.rpc, err = ethclient.Dial(config.Chain.RpcUrl)
	if err != nil {
		self.log.WithError(err).Error("Failed to dial the chain node")
		return
	}

	return
}

func (self *Client) Close() {
	self.rpc.Close()
}

func (self *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	self.limiter.Take()
	return context.WithTimeout(ctx, self.timeout)
}

func (self *Client) TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error) {
	ctx, cancel := self.withTimeout(ctx)
	defer cancel()
	return self.rpc.TransactionByHash(ctx, hash)
}

func (self *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (receipt *types.Receipt, err error) {
	ctx, cancel := self.withTimeout(ctx)
	defer cancel()
	return self.rpc.TransactionReceipt(ctx, hash)
}

func (self *Client) BlockByNumber(ctx context.Context, number *big.Int) (block *types.Block, err error) {
	ctx, cancel := self.withTimeout(ctx)
	defer cancel()
	return self.rpc.BlockByNumber(ctx, number)
}

func (self *Client) BlockNumber(ctx context.Context) (height uint64, err error) {
	ctx, cancel := self.withTimeout(ctx)
	defer cancel()
	return self.rpc.BlockNumber(ctx)
}

func (self *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) (logs []types.Log, err error) {
	ctx, cancel := self.withTimeout(ctx)
	defer cancel()
	return self.rpc.FilterLogs(ctx, query)
}

func (self *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) (code []byte, err error) {
	ctx, cancel := self.withTimeout(ctx)
	defer cancel()
	return self.rpc.CodeAt(ctx, account, blockNumber)
}

func (self *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) (result []byte, err error) {
	ctx, cancel := self.withTimeout(ctx)
	defer cancel()
	return self.rpc.CallContract(ctx, msg, blockNumber)
}
