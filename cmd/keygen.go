package cmd

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/mezonai/bitvm20/logx"
	"github.com/mezonai/bitvm20/types"
	"github.com/spf13/cobra"
)

var keygenCount int

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate account private keys",
	Long: `Generate BN254 account keys for a genesis file.

Each line holds the hex private key followed by the base58 account address.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		for i := 0; i < keygenCount; i++ {
			var key fr.Element
			if _, err := key.SetRandom(); err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			pk := types.PublicKeyOf(&key)
			b := key.Bytes()
			fmt.Fprintf(cmd.OutOrStdout(), "0x%x %s\n", b[:], types.Address(&pk))
		}
		logx.Info("KEYGEN", fmt.Sprintf("generated %d account keys", keygenCount))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().IntVarP(&keygenCount, "count", "n", 1, "number of keys to generate")
}
