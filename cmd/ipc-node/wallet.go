package main

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/spf13/cobra"

	"github.com/consensus-shipyard/ipc-subnet-node/internal/ipctypes"
	"github.com/consensus-shipyard/ipc-subnet-node/internal/keystore"
)

func newWalletCmd(configFile *string) *cobra.Command {
	var keystoreDir string

	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage validator and relayer key material",
	}
	cmd.PersistentFlags().StringVar(&keystoreDir, "keystore", "keystore", "keystore directory")

	cmd.AddCommand(
		newWalletImportCmd(&keystoreDir),
		newWalletExportCmd(&keystoreDir),
		newWalletListCmd(&keystoreDir),
		newWalletPubkeyCmd(&keystoreDir),
	)
	return cmd
}

func newWalletImportCmd(keystoreDir *string) *cobra.Command {
	var setDefault bool

	cmd := &cobra.Command{
		Use:   "import <hex-private-key>",
		Short: "Import a secp256k1 private key, deriving its delegated address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("wallet import: decoding private key: %w", err)
			}
			key := secp256k1PrivateKeyFromBytes(raw)

			ks, err := keystore.New(*keystoreDir)
			if err != nil {
				return err
			}
			addr := delegatedAddressOf(key)
			if err := ks.Put(addr, key); err != nil {
				return err
			}
			if setDefault {
				if err := ks.SetDefault(addr); err != nil {
					return err
				}
			}
			fmt.Println(addr.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&setDefault, "default", false, "set the imported key as the default signing identity")
	return cmd
}

func newWalletExportCmd(keystoreDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export <address>",
		Short: "Print a stored private key as hex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := keystore.New(*keystoreDir)
			if err != nil {
				return err
			}
			addr, err := ipctypes.ParseAddress(args[0])
			if err != nil {
				return fmt.Errorf("wallet export: parsing address: %w", err)
			}
			key, err := ks.Get(addr)
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(key.Serialize()))
			return nil
		},
	}
}

func newWalletListCmd(keystoreDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every address held by the keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := keystore.New(*keystoreDir)
			if err != nil {
				return err
			}
			addrs, err := ks.List()
			if err != nil {
				return err
			}
			for _, a := range addrs {
				fmt.Println(a.String())
			}
			return nil
		},
	}
}

func newWalletPubkeyCmd(keystoreDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pubkey <address>",
		Short: "Print an address's compressed secp256k1 public key as hex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := keystore.New(*keystoreDir)
			if err != nil {
				return err
			}
			addr, err := ipctypes.ParseAddress(args[0])
			if err != nil {
				return fmt.Errorf("wallet pubkey: parsing address: %w", err)
			}
			key, err := ks.Get(addr)
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(key.PubKey().SerializeCompressed()))
			return nil
		},
	}
}

func secp256k1PrivateKeyFromBytes(raw []byte) *btcec.PrivateKey {
	key, _ := btcec.PrivKeyFromBytes(raw)
	return key
}

func delegatedAddressOf(key *btcec.PrivateKey) ipctypes.Address {
	return ipctypes.NewDelegatedAddress(ipctypes.EAMNamespace, key.PubKey().SerializeCompressed())
}
