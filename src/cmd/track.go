package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/freshtrace/chaincore/src/tracker"
	"github.com/freshtrace/chaincore/src/utils/eth"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var trackConfirmations uint64

func init() {
	trackCmd.Flags().Uint64Var(&trackConfirmations, "confirmations", 0,
		"confirmations to wait for, 0 means the configured requirement")
	RootCmd.AddCommand(trackCmd)
}

var trackCmd = &cobra.Command{
	Use:   "track <hash>",
	Short: "Follow one transaction until it confirms or fails",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		client, err := eth.NewClient(conf)
		if err != nil {
			return
		}
		defer client.Close()

		confirmations := trackConfirmations
		if confirmations == 0 {
			confirmations = conf.Tracker.RequiredConfirmations
		}

		tracked := tracker.NewTracker(conf).WithClient(client)
		defer tracked.Clear()

		hash := common.HexToHash(args[0])
		err = tracked.Track(applicationCtx, hash, nil)
		if err != nil {
			return
		}

		snapshot, err := tracked.WaitForConfirmation(applicationCtx, hash, confirmations)
		if err != nil && !errors.Is(err, tracker.ErrFailed) {
			return
		}

		out, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			return
		}
		fmt.Println(string(out))
		return
	},
}
