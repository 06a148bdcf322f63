package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/freshtrace/chaincore/src/sessionkey"
	"github.com/freshtrace/chaincore/src/utils/kv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var sessionDuration time.Duration

func init() {
	sessionCreateCmd.Flags().DurationVar(&sessionDuration, "duration", 0,
		"validity window, 0 means the configured default")
	sessionCmd.AddCommand(sessionCreateCmd, sessionListCmd, sessionRevokeCmd)
	RootCmd.AddCommand(sessionCmd)
}

func newSessionModule() (module *sessionkey.Module, err error) {
	store, err := kv.NewStore(conf)
	if err != nil {
		return
	}

	module = sessionkey.NewModule(conf).WithStore(store)
	err = module.Load(applicationCtx)
	if err != nil {
		return nil, err
	}
	return
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage session keys",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate and persist a new session key",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		module, err := newSessionModule()
		if err != nil {
			return
		}

		key, err := module.Create(applicationCtx, sessionDuration, nil)
		if err != nil {
			return
		}

		fmt.Printf("%s valid until %s\n", key.Address.Hex(), key.ValidUntil.Format(time.RFC3339))
		return
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active session keys",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		module, err := newSessionModule()
		if err != nil {
			return
		}

		for _, key := range module.GetActive() {
			permissions, err := json.Marshal(key.Permissions)
			if err != nil {
				return err
			}
			fmt.Printf("%s valid until %s permissions %s\n",
				key.Address.Hex(), key.ValidUntil.Format(time.RFC3339), permissions)
		}
		return
	},
}

var sessionRevokeCmd = &cobra.Command{
	Use:   "revoke <address>",
	Short: "Revoke a session key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		module, err := newSessionModule()
		if err != nil {
			return
		}
		return module.Revoke(applicationCtx, common.HexToAddress(args[0]))
	},
}
