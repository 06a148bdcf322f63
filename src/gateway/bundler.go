package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/freshtrace/chaincore/src/utils/config"
	"github.com/freshtrace/chaincore/src/utils/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// BundlerClient is the ERC-4337 bundler RPC surface the gateway needs.
type BundlerClient interface {
	SendUserOperation(ctx context.Context, op *UserOperation) (userOpHash common.Hash, err error)
	EstimateUserOperationGas(ctx context.Context, op *UserOperation) (estimate *GasEstimate, err error)
	GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (receipt *UserOperationReceipt, err error)
}

type GasEstimate struct {
	PreVerificationGas   *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit         *hexutil.Big `json:"callGasLimit"`
}

// UserOperationReceipt is the bundler's view of an included operation.
// Receipt.TransactionHash is the on-chain hash the tracker can follow.
type UserOperationReceipt struct {
	UserOpHash common.Hash `json:"userOpHash"`
	Success    bool        `json:"success"`
	Receipt    struct {
		TransactionHash common.Hash `json:"transactionHash"`
		BlockNumber     *hexutil.Big `json:"blockNumber"`
	} `json:"receipt"`
}

type rpcRequest struct {
	JsonRpc string        `json:"jsonrpc"`
	Id      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Bundler talks JSON-RPC to the remote bundler endpoint.
type Bundler struct {
	client     *resty.Client
	entryPoint string
	lastId     atomic.Uint64
	log        *logrus.Entry
}

func NewBundler(config *config.Config) (self *Bundler) {
	self = new(Bundler)
	self.log = logger.NewSublogger("bundler")
	self.entryPoint = config.Bundler.EntryPoint
	self.client = resty.New().
		SetBaseURL(config.Bundler.Url).
		SetTimeout(config.Bundler.RequestTimeout).
		SetHeader("Content-Type", "application/json")
	return
}

func (self *Bundler) call(ctx context.Context, method string, params []interface{}, result interface{}) (err error) {
	request := rpcRequest{
		JsonRpc: "2.0",
		Id:      self.lastId.Add(1),
		Method:  method,
		Params:  params,
	}

	var response rpcResponse
	resp, err := self.client.R().
		SetContext(ctx).
		SetBody(&request).
		SetResult(&response).
		Post("")
	if err != nil {
		return fmt.Errorf("bundler request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("bundler returned status %s", resp.Status())
	}
	if response.Error != nil {
		return fmt.Errorf("bundler error %d: %s", response.Error.Code, response.Error.Message)
	}

	if result == nil {
		return
	}
	return json.Unmarshal(response.Result, result)
}

func (self *Bundler) SendUserOperation(ctx context.Context, op *UserOperation) (userOpHash common.Hash, err error) {
	var result string
	err = self.call(ctx, "eth_sendUserOperation", []interface{}{op, self.entryPoint}, &result)
	if err != nil {
		return
	}
	self.log.WithField("user_op_hash", result).Debug("User operation accepted")
	return common.HexToHash(result), nil
}

func (self *Bundler) EstimateUserOperationGas(ctx context.Context, op *UserOperation) (estimate *GasEstimate, err error) {
	estimate = new(GasEstimate)
	err = self.call(ctx, "eth_estimateUserOperationGas", []interface{}{op, self.entryPoint}, estimate)
	if err != nil {
		return nil, err
	}
	return
}

// GetUserOperationReceipt returns nil without error while the operation
// is not yet included.
func (self *Bundler) GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (receipt *UserOperationReceipt, err error) {
	var raw json.RawMessage
	err = self.call(ctx, "eth_getUserOperationReceipt", []interface{}{userOpHash.Hex()}, &raw)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	receipt = new(UserOperationReceipt)
	err = json.Unmarshal(raw, receipt)
	if err != nil {
		return nil, err
	}
	return
}
