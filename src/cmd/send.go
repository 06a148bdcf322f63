package cmd

import (
	"fmt"
	"math/big"

	"github.com/freshtrace/chaincore/src/gateway"
	"github.com/freshtrace/chaincore/src/utils/eth"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var (
	sendTo    string
	sendData  string
	sendValue string
)

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "target contract address")
	sendCmd.Flags().StringVar(&sendData, "data", "0x", "hex encoded call data")
	sendCmd.Flags().StringVar(&sendValue, "value", "0", "value in wei")
	_ = sendCmd.MarkFlagRequired("to")
	RootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Submit one call through the smart account gateway",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		client, err := eth.NewClient(conf)
		if err != nil {
			return
		}
		defer client.Close()

		gtw, err := gateway.NewGateway(conf)
		if err != nil {
			return
		}
		gtw = gtw.WithChain(client)

		data, err := hexutil.Decode(sendData)
		if err != nil {
			return fmt.Errorf("malformed call data: %w", err)
		}

		value, ok := new(big.Int).SetString(sendValue, 10)
		if !ok {
			return fmt.Errorf("malformed value: %s", sendValue)
		}

		hash, err := gtw.SendTransaction(applicationCtx, common.HexToAddress(sendTo), data, value)
		if err != nil {
			return
		}

		fmt.Println(hash.Hex())
		return
	},
}
