package cmd

import (
	"fmt"
	"os"

	"github.com/mezonai/bitvm20/jsonx"
	"github.com/mezonai/bitvm20/protocol"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <packet-file>",
	Short: "Decode a broadcast packet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		packet, err := protocol.DecodeBroadcastPacket(raw)
		if err != nil {
			return err
		}
		out, err := jsonx.MarshalIndent(packet)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		fmt.Fprintf(cmd.OutOrStdout(), "signature valid: %t\n", packet.Tx.VerifySignature())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
