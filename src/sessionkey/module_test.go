package sessionkey

import (
	"bytes"
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/freshtrace/chaincore/src/utils/config"
	"github.com/freshtrace/chaincore/src/utils/kv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestModuleTestSuite(t *testing.T) {
	suite.Run(t, new(ModuleTestSuite))
}

type fakeSender struct {
	lastTo   common.Address
	lastData []byte
	numSent  int
}

func (self *fakeSender) SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	self.lastTo = to
	self.lastData = data
	self.numSent++
	return common.HexToHash("0x5e55"), nil
}

type ModuleTestSuite struct {
	suite.Suite
	config *config.Config
	store  kv.Store
	sender *fakeSender
	module *Module
}

func (s *ModuleTestSuite) SetupTest() {
	s.config = config.Default()
	s.store = kv.NewMemoryStore()
	s.sender = new(fakeSender)
	s.module = NewModule(s.config).
		WithStore(s.store).
		WithSender(s.sender)
}

var (
	target   = common.HexToAddress("0x00000000000000000000000000000000007a49e7")
	selector = []byte{0xaa, 0xbb, 0xcc, 0xdd}
)

func (s *ModuleTestSuite) TestCreateDefaults() {
	key, err := s.module.Create(context.Background(), 0, nil)
	assert.Nil(s.T(), err)

	assert.NotEqual(s.T(), common.Address{}, key.Address)
	assert.Len(s.T(), key.PrivateKey, 32)
	assert.Equal(s.T(), s.config.SessionKey.DefaultDuration,
		key.ValidUntil.Sub(key.ValidAfter))
	assert.True(s.T(), key.IsActive(time.Now()))
}

func (s *ModuleTestSuite) TestPermissionMatrix() {
	permissions := []Permission{
		{
			Target:   target,
			Selector: selector,
			MaxValue: (*hexutil.Big)(big.NewInt(1_000_000_000_000_000_000)), // 1 ether
		},
	}

	key, err := s.module.Create(context.Background(), time.Hour, permissions)
	assert.Nil(s.T(), err)

	halfEther := big.NewInt(500_000_000_000_000_000)
	oneAndAHalf := new(big.Int).Mul(big.NewInt(3), big.NewInt(500_000_000_000_000_000))

	// Matching call under the value cap goes through
	_, err = s.module.ExecuteWith(context.Background(), key.Address, target, selector, halfEther)
	assert.Nil(s.T(), err)

	// Over the cap
	_, err = s.module.ExecuteWith(context.Background(), key.Address, target, selector, oneAndAHalf)
	assert.ErrorIs(s.T(), err, ErrNotPermitted)

	// Wrong target
	_, err = s.module.ExecuteWith(context.Background(), key.Address,
		common.HexToAddress("0x0bad"), selector, halfEther)
	assert.ErrorIs(s.T(), err, ErrNotPermitted)

	// Wrong selector
	_, err = s.module.ExecuteWith(context.Background(), key.Address,
		target, []byte{0x01, 0x02, 0x03, 0x04}, halfEther)
	assert.ErrorIs(s.T(), err, ErrNotPermitted)
}

func (s *ModuleTestSuite) TestWildcardTarget() {
	permissions := []Permission{
		{Selector: selector},
	}

	key, err := s.module.Create(context.Background(), time.Hour, permissions)
	assert.Nil(s.T(), err)

	_, err = s.module.ExecuteWith(context.Background(), key.Address,
		common.HexToAddress("0x01"), selector, nil)
	assert.Nil(s.T(), err)
	_, err = s.module.ExecuteWith(context.Background(), key.Address,
		common.HexToAddress("0x02"), selector, nil)
	assert.Nil(s.T(), err)
}

func (s *ModuleTestSuite) TestAnyRuleSuffices() {
	permissions := []Permission{
		{Target: common.HexToAddress("0x0bad"), Selector: selector},
		{Target: target},
	}

	key, err := s.module.Create(context.Background(), time.Hour, permissions)
	assert.Nil(s.T(), err)

	// Second rule covers it even though the first does not
	_, err = s.module.ExecuteWith(context.Background(), key.Address, target, selector, nil)
	assert.Nil(s.T(), err)
}

func (s *ModuleTestSuite) TestExecuteWithUnknownKey() {
	_, err := s.module.ExecuteWith(context.Background(),
		common.HexToAddress("0x01"), target, nil, nil)
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *ModuleTestSuite) TestExecuteWithExpiredKey() {
	key, err := s.module.Create(context.Background(), time.Nanosecond, []Permission{{}})
	assert.Nil(s.T(), err)

	time.Sleep(time.Millisecond)

	_, err = s.module.ExecuteWith(context.Background(), key.Address, target, nil, nil)
	assert.ErrorIs(s.T(), err, ErrExpired)
	assert.Zero(s.T(), s.sender.numSent)
}

func (s *ModuleTestSuite) TestEnableRegistersWithValidator() {
	key, err := s.module.Create(context.Background(), time.Hour, nil)
	assert.Nil(s.T(), err)

	hash, err := s.module.Enable(context.Background(), key.Address)
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), common.HexToHash("0x5e55"), hash)

	assert.Equal(s.T(), common.HexToAddress(s.config.SessionKey.ValidatorAddress), s.sender.lastTo)
	assert.True(s.T(), bytes.HasPrefix(s.sender.lastData, enableSelector))

	active := s.module.GetActive()
	assert.Len(s.T(), active, 1)
	assert.Equal(s.T(), hash.Hex(), active[0].EnabledTx)
}

func (s *ModuleTestSuite) TestRevoke() {
	key, err := s.module.Create(context.Background(), time.Hour, nil)
	assert.Nil(s.T(), err)

	err = s.module.Revoke(context.Background(), key.Address)
	assert.Nil(s.T(), err)

	_, err = s.module.ExecuteWith(context.Background(), key.Address, target, nil, nil)
	assert.ErrorIs(s.T(), err, ErrNotFound)

	err = s.module.Revoke(context.Background(), key.Address)
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *ModuleTestSuite) TestLoadDropsExpiredKeys() {
	_, err := s.module.Create(context.Background(), time.Nanosecond, nil)
	assert.Nil(s.T(), err)
	kept, err := s.module.Create(context.Background(), time.Hour, nil)
	assert.Nil(s.T(), err)

	time.Sleep(time.Millisecond)

	restored := NewModule(s.config).
		WithStore(s.store).
		WithSender(s.sender)
	err = restored.Load(context.Background())
	assert.Nil(s.T(), err)

	active := restored.GetActive()
	assert.Len(s.T(), active, 1)
	assert.Equal(s.T(), kept.Address, active[0].Address)

	// The pruned snapshot was written back
	var persisted []*Key
	err = s.store.Load(context.Background(), s.config.SessionKey.SnapshotKey, &persisted)
	assert.Nil(s.T(), err)
	assert.Len(s.T(), persisted, 1)
}
