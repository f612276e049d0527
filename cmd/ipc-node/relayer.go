package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/childclient"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/config"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/keystore"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/parentclient"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/relayer"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/rpcclient"
)

func newRelayerCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relayer",
		Short: "Run the bottom-up checkpoint relayer standalone",
	}
	cmd.AddCommand(newRelayerRunCmd(configFile))
	return cmd
}

func newRelayerRunCmd(configFile *string) *cobra.Command {
	var submitterAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the child subnet for quorum-reached checkpoints and submit them to the parent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelayerStandalone(cmd.Context(), *configFile, submitterAddr)
		},
	}
	cmd.Flags().StringVar(&submitterAddr, "submitter", "", "address submitting checkpoints on the parent chain (defaults to the keystore default)")
	return cmd
}

func runRelayerStandalone(ctx context.Context, configFile, submitterAddr string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	child, err := ipctypes.ParseSubnetID(cfg.Subnet.ID)
	if err != nil {
		return fmt.Errorf("relayer run: parsing subnet.id: %w", err)
	}
	parentID, _ := child.Parent()

	submitter, err := resolveSubmitter(cfg.Keystore.Dir, submitterAddr)
	if err != nil {
		return fmt.Errorf("relayer run: resolving submitter: %w", err)
	}

	parentRPC := rpcclient.New(cfg.Parent.URL, cfg.Parent.Timeout)
	childRPC := rpcclient.New(cfg.Child.URL, cfg.Child.Timeout)

	rel := relayer.New(relayer.Config{
		Parent:             parentID,
		Child:              child,
		Submitter:          submitter,
		FinalizationBlocks: ipctypes.BlockHeight(cfg.Relayer.FinalizationBlocks),
		MaxParallelism:     cfg.Relayer.MaxParallelism,
		PollingInterval:    cfg.Relayer.PollingInterval,
	}, parentclient.RelayerAdapter{Client: parentRPC}, childclient.RelayerAdapter{Client: childRPC})

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runLog.Info("relayer running standalone", "child", child.String(), "parent", parentID.String())
	rel.Run(runCtx)
	return nil
}

func resolveSubmitter(keystoreDir, explicit string) (ipctypes.Address, error) {
	if explicit != "" {
		return ipctypes.ParseAddress(explicit)
	}
	ks, err := keystore.New(keystoreDir)
	if err != nil {
		return ipctypes.Address{}, err
	}
	return ks.GetDefault()
}
