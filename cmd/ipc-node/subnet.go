package main

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
)

// subnet create/join/leave/stake/unstake all terminate in a call to the
// parent's subnet-actor contract, an on-chain collaborator out of this
// module's scope (§1 Non-goals: "defining the on-chain contract
// bytecode"). Each subcommand validates and shapes its arguments fully,
// then reports that no contract client is attached — the seam a
// deployment wires to its subnet-actor ABI binding.
func newSubnetCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subnet",
		Short: "Create, join, leave, or adjust stake in a subnet",
	}
	cmd.AddCommand(
		newSubnetCreateCmd(),
		newSubnetJoinCmd(),
		newSubnetLeaveCmd(),
		newSubnetStakeCmd(),
		newSubnetUnstakeCmd(),
	)
	return cmd
}

func newSubnetCreateCmd() *cobra.Command {
	var parent string
	var minValidators int
	var minValidatorStake string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new child subnet under a parent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parentID, err := ipctypes.ParseSubnetID(parent)
			if err != nil {
				return fmt.Errorf("subnet create: parsing --parent: %w", err)
			}
			stake, ok := new(big.Int).SetString(minValidatorStake, 10)
			if !ok {
				return fmt.Errorf("subnet create: invalid --min-validator-stake %q", minValidatorStake)
			}
			_ = parentID
			_ = ipctypes.NewTokenAmount(stake)
			if minValidators <= 0 {
				return fmt.Errorf("subnet create: --min-validators must be positive")
			}
			return errNotWired("subnet-actor registry contract")
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "parent subnet ID, e.g. /r314159/f01")
	cmd.Flags().IntVar(&minValidators, "min-validators", 4, "minimum active validator count")
	cmd.Flags().StringVar(&minValidatorStake, "min-validator-stake", "0", "minimum per-validator stake, in attoFIL")
	cmd.MarkFlagRequired("parent")
	return cmd
}

func newSubnetJoinCmd() *cobra.Command {
	var subnet, pubkeyHex, stakeAmount string

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a subnet as a validator with an initial stake",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ipctypes.ParseSubnetID(subnet); err != nil {
				return fmt.Errorf("subnet join: parsing --subnet: %w", err)
			}
			if len(pubkeyHex) == 0 {
				return fmt.Errorf("subnet join: --pubkey is required")
			}
			stake, ok := new(big.Int).SetString(stakeAmount, 10)
			if !ok || stake.Sign() <= 0 {
				return fmt.Errorf("subnet join: --stake must be a positive integer of attoFIL")
			}
			return errNotWired("subnet-actor registry contract")
		},
	}
	cmd.Flags().StringVar(&subnet, "subnet", "", "subnet ID to join")
	cmd.Flags().StringVar(&pubkeyHex, "pubkey", "", "validator's compressed secp256k1 public key, hex")
	cmd.Flags().StringVar(&stakeAmount, "stake", "0", "initial stake, in attoFIL")
	cmd.MarkFlagRequired("subnet")
	cmd.MarkFlagRequired("pubkey")
	cmd.MarkFlagRequired("stake")
	return cmd
}

func newSubnetLeaveCmd() *cobra.Command {
	var subnet string

	cmd := &cobra.Command{
		Use:   "leave",
		Short: "Leave a subnet, withdrawing the caller's stake",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ipctypes.ParseSubnetID(subnet); err != nil {
				return fmt.Errorf("subnet leave: parsing --subnet: %w", err)
			}
			return errNotWired("subnet-actor registry contract")
		},
	}
	cmd.Flags().StringVar(&subnet, "subnet", "", "subnet ID to leave")
	cmd.MarkFlagRequired("subnet")
	return cmd
}

func newSubnetStakeCmd() *cobra.Command {
	var subnet, amount string

	cmd := &cobra.Command{
		Use:   "stake",
		Short: "Increase the caller's stake in a subnet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ipctypes.ParseSubnetID(subnet); err != nil {
				return fmt.Errorf("subnet stake: parsing --subnet: %w", err)
			}
			value, ok := new(big.Int).SetString(amount, 10)
			if !ok || value.Sign() <= 0 {
				return fmt.Errorf("subnet stake: --amount must be a positive integer of attoFIL")
			}
			return errNotWired("subnet-actor registry contract")
		},
	}
	cmd.Flags().StringVar(&subnet, "subnet", "", "subnet ID")
	cmd.Flags().StringVar(&amount, "amount", "0", "additional stake, in attoFIL")
	cmd.MarkFlagRequired("subnet")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newSubnetUnstakeCmd() *cobra.Command {
	var subnet, amount string

	cmd := &cobra.Command{
		Use:   "unstake",
		Short: "Withdraw part of the caller's stake in a subnet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ipctypes.ParseSubnetID(subnet); err != nil {
				return fmt.Errorf("subnet unstake: parsing --subnet: %w", err)
			}
			value, ok := new(big.Int).SetString(amount, 10)
			if !ok || value.Sign() <= 0 {
				return fmt.Errorf("subnet unstake: --amount must be a positive integer of attoFIL")
			}
			return errNotWired("subnet-actor registry contract")
		},
	}
	cmd.Flags().StringVar(&subnet, "subnet", "", "subnet ID")
	cmd.Flags().StringVar(&amount, "amount", "0", "stake to withdraw, in attoFIL")
	cmd.MarkFlagRequired("subnet")
	cmd.MarkFlagRequired("amount")
	return cmd
}
