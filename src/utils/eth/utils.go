package eth

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// FunctionSelector returns the first 4 bytes of the call data,
// zero-padded when the data is shorter.
func FunctionSelector(data []byte) (selector [4]byte) {
	copy(selector[:], data)
	return
}

func WeiToEther(wei *big.Int) float64 {
	ether, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether)).Float64()
	return ether
}
