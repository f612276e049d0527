package main

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

// fund and release move value across the parent/child boundary via the
// gateway contract, another on-chain collaborator out of scope here
// (§1). Both subcommands validate their arguments fully, then report the
// unwired gateway seam.
func newFundCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Move funds across the parent/child subnet boundary",
	}
	cmd.AddCommand(newFundDepositCmd(), newFundReleaseCmd())
	return cmd
}

func newFundDepositCmd() *cobra.Command {
	var subnet, to, amount string

	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Fund an address in a child subnet from its parent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ipctypes.ParseSubnetID(subnet); err != nil {
				return fmt.Errorf("fund deposit: parsing --subnet: %w", err)
			}
			if _, err := ipctypes.ParseAddress(to); err != nil {
				return fmt.Errorf("fund deposit: parsing --to: %w", err)
			}
			value, ok := new(big.Int).SetString(amount, 10)
			if !ok || value.Sign() <= 0 {
				return fmt.Errorf("fund deposit: --amount must be a positive integer of attoFIL")
			}
			return errNotWired("gateway contract client")
		},
	}
	cmd.Flags().StringVar(&subnet, "subnet", "", "destination child subnet ID")
	cmd.Flags().StringVar(&to, "to", "", "recipient address in the child subnet")
	cmd.Flags().StringVar(&amount, "amount", "0", "amount to deposit, in attoFIL")
	cmd.MarkFlagRequired("subnet")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newFundReleaseCmd() *cobra.Command {
	var subnet, to, amount string

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release funds from a child subnet back to its parent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ipctypes.ParseSubnetID(subnet); err != nil {
				return fmt.Errorf("fund release: parsing --subnet: %w", err)
			}
			if _, err := ipctypes.ParseAddress(to); err != nil {
				return fmt.Errorf("fund release: parsing --to: %w", err)
			}
			value, ok := new(big.Int).SetString(amount, 10)
			if !ok || value.Sign() <= 0 {
				return fmt.Errorf("fund release: --amount must be a positive integer of attoFIL")
			}
			return errNotWired("gateway contract client")
		},
	}
	cmd.Flags().StringVar(&subnet, "subnet", "", "source child subnet ID")
	cmd.Flags().StringVar(&to, "to", "", "recipient address in the parent subnet")
	cmd.Flags().StringVar(&amount, "amount", "0", "amount to release, in attoFIL")
	cmd.MarkFlagRequired("subnet")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("amount")
	return cmd
}
