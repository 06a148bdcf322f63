package gateway

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/freshtrace/chaincore/src/utils/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestGatewayTestSuite(t *testing.T) {
	suite.Run(t, new(GatewayTestSuite))
}

type fakeBundler struct {
	sentOps     []*UserOperation
	sendErr     error
	receipt     *UserOperationReceipt
	receiptErr  error
	estimateErr error
}

func (self *fakeBundler) SendUserOperation(ctx context.Context, op *UserOperation) (common.Hash, error) {
	if self.sendErr != nil {
		return common.Hash{}, self.sendErr
	}
	self.sentOps = append(self.sentOps, op)
	return common.HexToHash("0x0b5"), nil
}

func (self *fakeBundler) EstimateUserOperationGas(ctx context.Context, op *UserOperation) (*GasEstimate, error) {
	if self.estimateErr != nil {
		return nil, self.estimateErr
	}
	return &GasEstimate{
		PreVerificationGas:   (*hexutil.Big)(big.NewInt(50000)),
		VerificationGasLimit: (*hexutil.Big)(big.NewInt(100000)),
		CallGasLimit:         (*hexutil.Big)(big.NewInt(200000)),
	}, nil
}

func (self *fakeBundler) GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (*UserOperationReceipt, error) {
	if self.receiptErr != nil {
		return nil, self.receiptErr
	}
	return self.receipt, nil
}

type fakeCaller struct {
	code  []byte
	nonce *big.Int
}

func (self *fakeCaller) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return self.code, nil
}

func (self *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return common.LeftPadBytes(self.nonce.Bytes(), 32), nil
}

type GatewayTestSuite struct {
	suite.Suite
	config  *config.Config
	bundler *fakeBundler
	gateway *Gateway
}

func (s *GatewayTestSuite) SetupTest() {
	key, err := crypto.GenerateKey()
	assert.Nil(s.T(), err)

	s.config = config.Default()
	s.config.Bundler.OwnerKey = common.Bytes2Hex(crypto.FromECDSA(key))
	s.config.Bundler.SmartAccount = "0x00000000000000000000000000000000000acc01"
	s.config.Bundler.Paymaster = "0x000000000000000000000000000000000000f0ee"
	s.config.Bundler.HashTimeout = 200 * time.Millisecond
	s.config.Bundler.HashPollInterval = 10 * time.Millisecond

	s.bundler = &fakeBundler{
		receipt: &UserOperationReceipt{Success: true},
	}
	s.bundler.receipt.Receipt.TransactionHash = common.HexToHash("0x7c")

	s.gateway, err = NewGateway(s.config)
	assert.Nil(s.T(), err)
	s.gateway = s.gateway.WithBundler(s.bundler)
}

func (s *GatewayTestSuite) TestSendTransaction() {
	hash, err := s.gateway.SendTransaction(context.Background(),
		common.HexToAddress("0x01"), []byte{0xca, 0x11}, big.NewInt(1))
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), common.HexToHash("0x7c"), hash)

	assert.Len(s.T(), s.bundler.sentOps, 1)
	op := s.bundler.sentOps[0]
	assert.True(s.T(), bytes.HasPrefix(op.CallData, executeSelector))
	assert.Equal(s.T(), common.HexToAddress(s.config.Bundler.SmartAccount), op.Sender)
	assert.Equal(s.T(), common.HexToAddress(s.config.Bundler.Paymaster).Bytes(), []byte(op.PaymasterAndData))
	assert.Len(s.T(), op.Signature, 65)
	assert.Equal(s.T(), int64(200000), op.CallGasLimit.ToInt().Int64())
}

func (s *GatewayTestSuite) TestSendBatchEmpty() {
	_, err := s.gateway.SendBatch(context.Background(), nil)
	assert.ErrorIs(s.T(), err, ErrEmptyBatch)
	assert.Empty(s.T(), s.bundler.sentOps)
}

func (s *GatewayTestSuite) TestSendBatchSingleDelegates() {
	_, err := s.gateway.SendBatch(context.Background(), []Transaction{
		{To: common.HexToAddress("0x01")},
	})
	assert.Nil(s.T(), err)

	assert.Len(s.T(), s.bundler.sentOps, 1)
	assert.True(s.T(), bytes.HasPrefix(s.bundler.sentOps[0].CallData, executeSelector))
}

func (s *GatewayTestSuite) TestSendBatchAtomic() {
	_, err := s.gateway.SendBatch(context.Background(), []Transaction{
		{To: common.HexToAddress("0x01"), Data: []byte{0x01}},
		{To: common.HexToAddress("0x02"), Data: []byte{0x02}, Value: big.NewInt(5)},
	})
	assert.Nil(s.T(), err)

	// One operation carries the whole batch
	assert.Len(s.T(), s.bundler.sentOps, 1)
	assert.True(s.T(), bytes.HasPrefix(s.bundler.sentOps[0].CallData, executeBatchSelector))
}

func (s *GatewayTestSuite) TestSendErrorIsWrapped() {
	s.bundler.sendErr = errors.New("AA21 didn't pay prefund")

	_, err := s.gateway.SendTransaction(context.Background(),
		common.HexToAddress("0x01"), nil, nil)
	assert.ErrorIs(s.T(), err, ErrTransaction)
	assert.Contains(s.T(), err.Error(), "AA21")
}

func (s *GatewayTestSuite) TestRevertedOperation() {
	s.bundler.receipt.Success = false

	_, err := s.gateway.SendTransaction(context.Background(),
		common.HexToAddress("0x01"), nil, nil)
	assert.ErrorIs(s.T(), err, ErrTransaction)
}

func (s *GatewayTestSuite) TestHashTimeout() {
	s.bundler.receipt = nil

	_, err := s.gateway.SendTransaction(context.Background(),
		common.HexToAddress("0x01"), nil, nil)
	assert.ErrorIs(s.T(), err, ErrTransaction)
	assert.Contains(s.T(), err.Error(), "timed out")
}

func (s *GatewayTestSuite) TestAccountNonceFromEntryPoint() {
	s.gateway = s.gateway.WithChain(&fakeCaller{nonce: big.NewInt(42)})

	_, err := s.gateway.SendTransaction(context.Background(),
		common.HexToAddress("0x01"), nil, nil)
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), int64(42), s.bundler.sentOps[0].Nonce.ToInt().Int64())
}

func (s *GatewayTestSuite) TestIsDeployed() {
	s.gateway = s.gateway.WithChain(&fakeCaller{nonce: new(big.Int)})
	deployed, err := s.gateway.IsDeployed(context.Background(), common.HexToAddress("0x01"))
	assert.Nil(s.T(), err)
	assert.False(s.T(), deployed)

	s.gateway = s.gateway.WithChain(&fakeCaller{code: []byte{0x60}, nonce: new(big.Int)})
	deployed, err = s.gateway.IsDeployed(context.Background(), common.HexToAddress("0x01"))
	assert.Nil(s.T(), err)
	assert.True(s.T(), deployed)
}

func (s *GatewayTestSuite) TestUserOpHashIsStable() {
	op := &UserOperation{
		Sender:               common.HexToAddress("0x01"),
		Nonce:                (*hexutil.Big)(big.NewInt(1)),
		InitCode:             hexutil.Bytes{},
		CallData:             hexutil.Bytes{0x01},
		CallGasLimit:         (*hexutil.Big)(big.NewInt(1)),
		VerificationGasLimit: (*hexutil.Big)(big.NewInt(1)),
		PreVerificationGas:   (*hexutil.Big)(big.NewInt(1)),
		MaxFeePerGas:         (*hexutil.Big)(big.NewInt(1)),
		MaxPriorityFeePerGas: (*hexutil.Big)(big.NewInt(1)),
		PaymasterAndData:     hexutil.Bytes{},
	}

	first, err := op.Hash(common.HexToAddress("0x02"), big.NewInt(84532))
	assert.Nil(s.T(), err)
	second, err := op.Hash(common.HexToAddress("0x02"), big.NewInt(84532))
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), first, second)

	// A different chain id signs a different message
	other, err := op.Hash(common.HexToAddress("0x02"), big.NewInt(1))
	assert.Nil(s.T(), err)
	assert.NotEqual(s.T(), first, other)
}
