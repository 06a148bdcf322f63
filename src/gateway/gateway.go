package gateway

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/freshtrace/chaincore/src/utils/config"
	"github.com/freshtrace/chaincore/src/utils/logger"
	"github.com/freshtrace/chaincore/src/utils/monitoring"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyBatch  = errors.New("empty batch")
	ErrTransaction = errors.New("transaction failed")
)

// Fee caps used when the caller has no better source. Bundlers reject
// operations priced below their floor, not above it.
var (
	defaultMaxFeePerGas         = big.NewInt(2_000_000_000)
	defaultMaxPriorityFeePerGas = big.NewInt(1_000_000_000)
)

// ContractCaller is the chain read surface the gateway needs.
type ContractCaller interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Gateway submits calls through the user's smart account as ERC-4337
// user operations, sponsored by the configured paymaster.
type Gateway struct {
	config  *config.Config
	bundler BundlerClient
	chain   ContractCaller
	monitor *monitoring.Monitor

	owner        *ecdsa.PrivateKey
	smartAccount common.Address
	entryPoint   common.Address
	paymaster    common.Address
	chainId      *big.Int

	log *logrus.Entry
}

func NewGateway(config *config.Config) (self *Gateway, err error) {
	self = new(Gateway)
	self.log = logger.NewSublogger("gateway")
	self.config = config
	self.monitor = monitoring.NewMonitor()
	self.bundler = NewBundler(config)

	self.smartAccount = common.HexToAddress(config.Bundler.SmartAccount)
	self.entryPoint = common.HexToAddress(config.Bundler.EntryPoint)
	self.paymaster = common.HexToAddress(config.Bundler.Paymaster)
	self.chainId = big.NewInt(config.Bundler.ChainId)

	if config.Bundler.OwnerKey != "" {
		self.owner, err = crypto.HexToECDSA(strings.TrimPrefix(config.Bundler.OwnerKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse owner key: %w", err)
		}
	}
	return
}

func (self *Gateway) WithBundler(bundler BundlerClient) *Gateway {
	self.bundler = bundler
	return self
}

func (self *Gateway) WithChain(chain ContractCaller) *Gateway {
	self.chain = chain
	return self
}

func (self *Gateway) WithMonitor(monitor *monitoring.Monitor) *Gateway {
	self.monitor = monitor
	return self
}

// SendTransaction submits one call and returns the on-chain transaction
// hash once the bundler has included the operation.
func (self *Gateway) SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (hash common.Hash, err error) {
	callData, err := executeCallData(Transaction{To: to, Data: data, Value: value})
	if err != nil {
		return hash, fmt.Errorf("%w: %s", ErrTransaction, err)
	}
	return self.submit(ctx, callData)
}

// SendBatch submits the calls as one atomic user operation. Either all
// of them apply or the whole batch reverts.
func (self *Gateway) SendBatch(ctx context.Context, transactions []Transaction) (hash common.Hash, err error) {
	switch len(transactions) {
	case 0:
		return hash, ErrEmptyBatch
	case 1:
		return self.SendTransaction(ctx, transactions[0].To, transactions[0].Data, transactions[0].Value)
	}

	callData, err := executeBatchCallData(transactions)
	if err != nil {
		return hash, fmt.Errorf("%w: %s", ErrTransaction, err)
	}
	return self.submit(ctx, callData)
}

func (self *Gateway) EstimateGas(ctx context.Context, transaction Transaction) (estimate *GasEstimate, err error) {
	callData, err := executeCallData(transaction)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransaction, err)
	}

	op, err := self.buildUserOp(ctx, callData)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransaction, err)
	}
	return self.bundler.EstimateUserOperationGas(ctx, op)
}

// IsDeployed reports whether the address holds contract code.
func (self *Gateway) IsDeployed(ctx context.Context, address common.Address) (deployed bool, err error) {
	code, err := self.chain.CodeAt(ctx, address, nil)
	if err != nil {
		return
	}
	return len(code) > 0, nil
}

func (self *Gateway) submit(ctx context.Context, callData []byte) (hash common.Hash, err error) {
	op, err := self.buildUserOp(ctx, callData)
	if err != nil {
		self.monitor.Report.Gateway.State.SendErrors.Inc()
		return hash, fmt.Errorf("%w: %s", ErrTransaction, err)
	}

	estimate, err := self.bundler.EstimateUserOperationGas(ctx, op)
	if err != nil {
		self.monitor.Report.Gateway.State.SendErrors.Inc()
		return hash, fmt.Errorf("%w: %s", ErrTransaction, err)
	}
	op.PreVerificationGas = estimate.PreVerificationGas
	op.VerificationGasLimit = estimate.VerificationGasLimit
	op.CallGasLimit = estimate.CallGasLimit

	err = self.sign(op)
	if err != nil {
		self.monitor.Report.Gateway.State.SendErrors.Inc()
		return hash, fmt.Errorf("%w: %s", ErrTransaction, err)
	}

	userOpHash, err := self.bundler.SendUserOperation(ctx, op)
	if err != nil {
		self.monitor.Report.Gateway.State.SendErrors.Inc()
		return hash, fmt.Errorf("%w: %s", ErrTransaction, err)
	}

	hash, err = self.waitForTransactionHash(ctx, userOpHash)
	if err != nil {
		self.monitor.Report.Gateway.State.SendErrors.Inc()
		return hash, err
	}

	self.monitor.Report.Gateway.State.TransactionsSent.Inc()
	self.log.WithField("hash", hash.Hex()).Info("Transaction sent")
	return
}

func (self *Gateway) buildUserOp(ctx context.Context, callData []byte) (op *UserOperation, err error) {
	nonce, err := self.accountNonce(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read account nonce: %w", err)
	}

	op = &UserOperation{
		Sender:               self.smartAccount,
		Nonce:                (*hexutil.Big)(nonce),
		InitCode:             hexutil.Bytes{},
		CallData:             callData,
		CallGasLimit:         (*hexutil.Big)(new(big.Int)),
		VerificationGasLimit: (*hexutil.Big)(new(big.Int)),
		PreVerificationGas:   (*hexutil.Big)(new(big.Int)),
		MaxFeePerGas:         (*hexutil.Big)(defaultMaxFeePerGas),
		MaxPriorityFeePerGas: (*hexutil.Big)(defaultMaxPriorityFeePerGas),
		PaymasterAndData:     hexutil.Bytes{},
	}

	if (self.paymaster != common.Address{}) {
		op.PaymasterAndData = self.paymaster.Bytes()
	}

	// Bundlers reject estimation requests with an empty signature
	op.Signature = make(hexutil.Bytes, 65)
	return
}

func (self *Gateway) accountNonce(ctx context.Context) (nonce *big.Int, err error) {
	if self.chain == nil {
		return new(big.Int), nil
	}

	callData, err := getNonceCallData(self.smartAccount)
	if err != nil {
		return
	}

	result, err := self.chain.CallContract(ctx, ethereum.CallMsg{
		To:   &self.entryPoint,
		Data: callData,
	}, nil)
	if err != nil {
		return
	}
	return new(big.Int).SetBytes(result), nil
}

func (self *Gateway) sign(op *UserOperation) (err error) {
	if self.owner == nil {
		return errors.New("owner key not configured")
	}

	hash, err := op.Hash(self.entryPoint, self.chainId)
	if err != nil {
		return
	}

	signature, err := crypto.Sign(accounts.TextHash(hash.Bytes()), self.owner)
	if err != nil {
		return
	}

	// Recovery id in Ethereum form
	signature[64] += 27
	op.Signature = signature
	return
}

// waitForTransactionHash polls the bundler until the operation lands in
// a block and the on-chain hash is known.
func (self *Gateway) waitForTransactionHash(ctx context.Context, userOpHash common.Hash) (hash common.Hash, err error) {
	deadline := time.NewTimer(self.config.Bundler.HashTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(self.config.Bundler.HashPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := self.bundler.GetUserOperationReceipt(ctx, userOpHash)
		if err != nil {
			return hash, fmt.Errorf("%w: %s", ErrTransaction, err)
		}
		if receipt != nil {
			if !receipt.Success {
				return hash, fmt.Errorf("%w: user operation reverted", ErrTransaction)
			}
			return receipt.Receipt.TransactionHash, nil
		}

		select {
		case <-ctx.Done():
			return hash, fmt.Errorf("%w: %s", ErrTransaction, ctx.Err())
		case <-deadline.C:
			return hash, fmt.Errorf("%w: timed out waiting for inclusion of %s", ErrTransaction, userOpHash.Hex())
		case <-ticker.C:
		}
	}
}
