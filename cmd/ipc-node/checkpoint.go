package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/config"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/rpcclient"
)

func newCheckpointCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect bottom-up checkpoints on the child chain",
	}
	cmd.AddCommand(newCheckpointListCmd(configFile))
	return cmd
}

func newCheckpointListCmd(configFile *string) *cobra.Command {
	var from, to uint64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checkpoint bundles over a height range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			if to < from {
				return fmt.Errorf("checkpoint list: --to must be >= --from")
			}

			child := rpcclient.New(cfg.Child.URL, cfg.Child.Timeout)
			for h := from; h <= to; h++ {
				bundle, ok, err := child.CheckpointBundleAt(cmd.Context(), h)
				if err != nil {
					return fmt.Errorf("checkpoint list: height %d: %w", h, err)
				}
				if !ok {
					continue
				}
				fmt.Printf("height=%d block_hash=%s signatories=%d\n",
					h, hex.EncodeToString(bundle.Checkpoint.BlockHash), len(bundle.Signatories))
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "first child height to inspect")
	cmd.Flags().Uint64Var(&to, "to", 0, "last child height to inspect")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}
