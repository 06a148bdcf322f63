package gateway

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Transaction is one call the smart account should perform.
type Transaction struct {
	To    common.Address `json:"to"`
	Data  []byte         `json:"data"`
	Value *big.Int       `json:"value"`
}

// UserOperation in the v0.6 entry point wire format. Numeric fields go
// over JSON-RPC as hex quantities.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

var (
	typeAddress      = mustNewType("address")
	typeAddressSlice = mustNewType("address[]")
	typeUint256      = mustNewType("uint256")
	typeUint256Slice = mustNewType("uint256[]")
	typeUint192      = mustNewType("uint192")
	typeBytes        = mustNewType("bytes")
	typeBytesSlice   = mustNewType("bytes[]")
	typeBytes32      = mustNewType("bytes32")

	// keccak256(pack(op)) is hashed together with the entry point and
	// chain id to form the signed user operation hash
	packArgs = abi.Arguments{
		{Type: typeAddress}, // sender
		{Type: typeUint256}, // nonce
		{Type: typeBytes32}, // keccak(initCode)
		{Type: typeBytes32}, // keccak(callData)
		{Type: typeUint256}, // callGasLimit
		{Type: typeUint256}, // verificationGasLimit
		{Type: typeUint256}, // preVerificationGas
		{Type: typeUint256}, // maxFeePerGas
		{Type: typeUint256}, // maxPriorityFeePerGas
		{Type: typeBytes32}, // keccak(paymasterAndData)
	}

	envelopeArgs = abi.Arguments{
		{Type: typeBytes32}, // keccak(pack(op))
		{Type: typeAddress}, // entry point
		{Type: typeUint256}, // chain id
	}

	executeArgs = abi.Arguments{
		{Type: typeAddress},
		{Type: typeUint256},
		{Type: typeBytes},
	}
	executeSelector = crypto.Keccak256([]byte("execute(address,uint256,bytes)"))[:4]

	executeBatchArgs = abi.Arguments{
		{Type: typeAddressSlice},
		{Type: typeUint256Slice},
		{Type: typeBytesSlice},
	}
	executeBatchSelector = crypto.Keccak256([]byte("executeBatch(address[],uint256[],bytes[])"))[:4]

	getNonceArgs = abi.Arguments{
		{Type: typeAddress},
		{Type: typeUint192},
	}
	getNonceSelector = crypto.Keccak256([]byte("getNonce(address,uint192)"))[:4]
)

func mustNewType(t string) abi.Type {
	out, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return out
}

// Hash returns the user operation hash the owner signs, bound to the
// entry point and chain id.
func (self *UserOperation) Hash(entryPoint common.Address, chainId *big.Int) (hash common.Hash, err error) {
	packed, err := packArgs.Pack(
		self.Sender,
		self.Nonce.ToInt(),
		crypto.Keccak256Hash(self.InitCode),
		crypto.Keccak256Hash(self.CallData),
		self.CallGasLimit.ToInt(),
		self.VerificationGasLimit.ToInt(),
		self.PreVerificationGas.ToInt(),
		self.MaxFeePerGas.ToInt(),
		self.MaxPriorityFeePerGas.ToInt(),
		crypto.Keccak256Hash(self.PaymasterAndData),
	)
	if err != nil {
		return
	}

	envelope, err := envelopeArgs.Pack(crypto.Keccak256Hash(packed), entryPoint, chainId)
	if err != nil {
		return
	}

	return crypto.Keccak256Hash(envelope), nil
}

// executeCallData wraps one call in the smart account's execute method.
func executeCallData(transaction Transaction) (out []byte, err error) {
	value := transaction.Value
	if value == nil {
		value = new(big.Int)
	}

	packed, err := executeArgs.Pack(transaction.To, value, transaction.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to pack execute call: %w", err)
	}
	return append(append([]byte{}, executeSelector...), packed...), nil
}

// executeBatchCallData wraps multiple calls in one atomic smart account
// call. Either every call applies or none does.
func executeBatchCallData(transactions []Transaction) (out []byte, err error) {
	targets := make([]common.Address, len(transactions))
	values := make([]*big.Int, len(transactions))
	payloads := make([][]byte, len(transactions))
	for i, transaction := range transactions {
		targets[i] = transaction.To
		values[i] = transaction.Value
		if values[i] == nil {
			values[i] = new(big.Int)
		}
		payloads[i] = transaction.Data
	}

	packed, err := executeBatchArgs.Pack(targets, values, payloads)
	if err != nil {
		return nil, fmt.Errorf("failed to pack batch call: %w", err)
	}
	return append(append([]byte{}, executeBatchSelector...), packed...), nil
}

// getNonceCallData builds the entry point getNonce read for the account
func getNonceCallData(account common.Address) (out []byte, err error) {
	packed, err := getNonceArgs.Pack(account, new(big.Int))
	if err != nil {
		return
	}
	return append(append([]byte{}, getNonceSelector...), packed...), nil
}
