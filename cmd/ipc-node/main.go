// Command ipc-node is the small, non-core CLI surface of §6: subnet
// lifecycle, wallet management, checkpoint inspection, and the relayer.
// The consensus-driving daemon itself (ABCI app + JSON-RPC facade) is
// started by "ipc-node run", wired from internal/config.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "ipc-node",
		Short: "Run and operate an IPC hierarchical-consensus subnet node",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "config.toml", "path to the node's TOML configuration file")

	root.AddCommand(
		newRunCmd(&configFile),
		newSubnetCmd(&configFile),
		newFundCmd(&configFile),
		newWalletCmd(&configFile),
		newCheckpointCmd(&configFile),
		newRelayerCmd(&configFile),
	)
	return root
}
