package sessionkey

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/freshtrace/chaincore/src/utils/config"
	"github.com/freshtrace/chaincore/src/utils/eth"
	"github.com/freshtrace/chaincore/src/utils/kv"
	"github.com/freshtrace/chaincore/src/utils/logger"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound     = errors.New("session key not found")
	ErrExpired      = errors.New("session key expired")
	ErrNotPermitted = errors.New("transaction not permitted by session key")
)

// Permission is one rule of what a session key may call. The zero
// target and zero selector act as wildcards.
type Permission struct {
	Target   common.Address `json:"target"`
	Selector hexutil.Bytes  `json:"selector"`
	MaxValue *hexutil.Big   `json:"max_value,omitempty"`
}

// Allows reports whether the rule covers the call.
func (self Permission) Allows(target common.Address, selector [4]byte, value *big.Int) bool {
	if (self.Target != common.Address{}) && self.Target != target {
		return false
	}

	if len(self.Selector) == 4 {
		var ruleSelector [4]byte
		copy(ruleSelector[:], self.Selector)
		if ruleSelector != ([4]byte{}) && ruleSelector != selector {
			return false
		}
	}

	if self.MaxValue != nil && value != nil && value.Cmp(self.MaxValue.ToInt()) > 0 {
		return false
	}
	return true
}

// Key is one ephemeral signing key scoped to a validity window and a
// permission set. The private key stays on this machine.
type Key struct {
	Address     common.Address `json:"address"`
	PrivateKey  hexutil.Bytes  `json:"private_key"`
	ValidAfter  time.Time      `json:"valid_after"`
	ValidUntil  time.Time      `json:"valid_until"`
	Permissions []Permission   `json:"permissions"`

	// Hash of the on-chain registration, empty until enabled
	EnabledTx string `json:"enabled_tx,omitempty"`
}

// IsActive reports whether now falls inside the validity window,
// bounds included.
func (self *Key) IsActive(now time.Time) bool {
	return !now.Before(self.ValidAfter) && !now.After(self.ValidUntil)
}

// Sender submits the sponsored calls of the module.
type Sender interface {
	SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error)
}

var (
	enableArgs = abi.Arguments{
		{Type: mustNewType("address")},
		{Type: mustNewType("uint48")},
		{Type: mustNewType("uint48")},
	}
	enableSelector = crypto.Keccak256([]byte("enableSessionKey(address,uint48,uint48)"))[:4]
)

func mustNewType(t string) abi.Type {
	out, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return out
}

// Module manages session keys: creation, on-chain registration with
// the validator, permission checks and revocation.
type Module struct {
	mtx  sync.Mutex
	keys map[common.Address]*Key

	config    *config.Config
	store     kv.Store
	sender    Sender
	validator common.Address
	log       *logrus.Entry
}

func NewModule(config *config.Config) (self *Module) {
	self = new(Module)
	self.log = logger.NewSublogger("session-key")
	self.config = config
	self.keys = make(map[common.Address]*Key)
	self.validator = common.HexToAddress(config.SessionKey.ValidatorAddress)
	return
}

func (self *Module) WithStore(store kv.Store) *Module {
	self.store = store
	return self
}

func (self *Module) WithSender(sender Sender) *Module {
	self.sender = sender
	return self
}

// Load restores persisted keys, dropping the expired ones. The pruned
// snapshot is written back right away.
func (self *Module) Load(ctx context.Context) (err error) {
	var keys []*Key
	err = self.store.Load(ctx, self.config.SessionKey.SnapshotKey, &keys)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return
	}

	self.mtx.Lock()
	defer self.mtx.Unlock()

	now := time.Now()
	var expired int
	for _, key := range keys {
		if now.After(key.ValidUntil) {
			expired++
			continue
		}
		self.keys[key.Address] = key
	}
	if expired > 0 {
		self.log.WithField("num_expired", expired).Info("Dropped expired session keys")
		self.persist(ctx)
	}
	return nil
}

func (self *Module) persist(ctx context.Context) {
	keys := make([]*Key, 0, len(self.keys))
	for _, key := range self.keys {
		keys = append(keys, key)
	}
	err := self.store.Save(ctx, self.config.SessionKey.SnapshotKey, keys)
	if err != nil {
		self.log.WithError(err).Error("Failed to persist session keys")
	}
}

// Create generates a fresh keypair valid from now for the duration.
// A non-positive duration falls back to the configured default.
func (self *Module) Create(ctx context.Context, duration time.Duration, permissions []Permission) (key *Key, err error) {
	if duration <= 0 {
		duration = self.config.SessionKey.DefaultDuration
	}

	private, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}

	now := time.Now()
	key = &Key{
		Address:     crypto.PubkeyToAddress(private.PublicKey),
		PrivateKey:  crypto.FromECDSA(private),
		ValidAfter:  now,
		ValidUntil:  now.Add(duration),
		Permissions: permissions,
	}

	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.keys[key.Address] = key
	self.persist(ctx)

	self.log.WithField("address", key.Address.Hex()).Info("Created session key")
	return
}

// Enable registers the key with the on-chain validator through a
// sponsored transaction.
func (self *Module) Enable(ctx context.Context, address common.Address) (hash common.Hash, err error) {
	self.mtx.Lock()
	key, ok := self.keys[address]
	self.mtx.Unlock()
	if !ok {
		return hash, ErrNotFound
	}

	packed, err := enableArgs.Pack(
		key.Address,
		big.NewInt(key.ValidAfter.Unix()),
		big.NewInt(key.ValidUntil.Unix()),
	)
	if err != nil {
		return hash, fmt.Errorf("failed to pack registration call: %w", err)
	}
	callData := append(append([]byte{}, enableSelector...), packed...)

	hash, err = self.sender.SendTransaction(ctx, self.validator, callData, nil)
	if err != nil {
		return
	}

	self.mtx.Lock()
	key.EnabledTx = hash.Hex()
	self.persist(ctx)
	self.mtx.Unlock()
	return
}

// ExecuteWith submits the call under the session key's authority.
// Validity and permissions are checked before anything leaves the
// process.
func (self *Module) ExecuteWith(ctx context.Context, address common.Address, to common.Address, data []byte, value *big.Int) (hash common.Hash, err error) {
	self.mtx.Lock()
	key, ok := self.keys[address]
	self.mtx.Unlock()
	if !ok {
		return hash, ErrNotFound
	}
	if !key.IsActive(time.Now()) {
		return hash, ErrExpired
	}

	selector := eth.FunctionSelector(data)
	permitted := false
	for _, permission := range key.Permissions {
		if permission.Allows(to, selector, value) {
			permitted = true
			break
		}
	}
	if !permitted {
		return hash, ErrNotPermitted
	}

	return self.sender.SendTransaction(ctx, to, data, value)
}

// Revoke forgets the key locally and persists the change.
func (self *Module) Revoke(ctx context.Context, address common.Address) (err error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	_, ok := self.keys[address]
	if !ok {
		return ErrNotFound
	}
	delete(self.keys, address)
	self.persist(ctx)

	self.log.WithField("address", address.Hex()).Info("Revoked session key")
	return
}

// GetActive returns the keys whose validity window contains now.
func (self *Module) GetActive() (keys []*Key) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	now := time.Now()
	for _, key := range self.keys {
		if key.IsActive(now) {
			keys = append(keys, key)
		}
	}
	return
}
