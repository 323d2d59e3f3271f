package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/holiman/uint256"
	"github.com/mezonai/bitvm20/config"
	"github.com/mezonai/bitvm20/exception"
	"github.com/mezonai/bitvm20/hashx"
	"github.com/mezonai/bitvm20/jsonx"
	"github.com/mezonai/bitvm20/logx"
	"github.com/mezonai/bitvm20/monitoring"
	"github.com/mezonai/bitvm20/protocol"
	"github.com/mezonai/bitvm20/transaction"
	"github.com/mezonai/bitvm20/types"
	"github.com/spf13/cobra"
)

type SimulateConfig struct {
	GenesisPath string
	ConfigPath  string
	From        int
	To          int
	Amount      string
	PacketOut   string
	Timeout     time.Duration
	Out         io.Writer
}

var simulateConfig SimulateConfig

var simulateCmd = &cobra.Command{
	Use:   "simulate [flags]",
	Short: "Run one transfer through an operator and its verifiers",
	Long: `Load the genesis ledger, start the configured number of verifiers with
their own replicas and push a single signed transfer through the operator.

Examples:
  # Transfer 5000 from slot 0 to slot 1
  simulate -g config/genesis.yml -c config/bitvm20.ini --from 0 --to 1 -a 5_000

  # Keep the broadcast packet for later inspection
  simulate -a 5_000 -o packet.bin`,
	Run: func(cmd *cobra.Command, args []string) {
		simulateConfig.Out = cmd.OutOrStdout()
		if err := simulate(cmd.Context(), simulateConfig); err != nil {
			logx.Error("SIMULATE", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVarP(&simulateConfig.GenesisPath, "genesis", "g", "config/genesis.yml", "path to genesis configuration file")
	simulateCmd.Flags().StringVarP(&simulateConfig.ConfigPath, "config", "c", "config/bitvm20.ini", "path to protocol configuration file")
	simulateCmd.Flags().IntVar(&simulateConfig.From, "from", 0, "sender slot")
	simulateCmd.Flags().IntVar(&simulateConfig.To, "to", 1, "recipient slot")
	simulateCmd.Flags().StringVarP(&simulateConfig.Amount, "amount", "a", "", "amount")
	simulateCmd.Flags().StringVarP(&simulateConfig.PacketOut, "packet-out", "o", "", "write the broadcast packet to this file")
	simulateCmd.Flags().DurationVar(&simulateConfig.Timeout, "timeout", 5*time.Minute, "how long to wait for verifiers")
}

func simulate(ctx context.Context, cfg SimulateConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	amount, err := uint256.FromDecimal(strings.ReplaceAll(cfg.Amount, "_", ""))
	if err != nil {
		return fmt.Errorf("could not parse amount string: %v", err)
	}
	genesis, err := config.LoadGenesisConfig(cfg.GenesisPath)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	protocolCfg, err := config.LoadProtocolConfig(cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load protocol config: %w", err)
	}
	metricsCfg, err := config.LoadMetricsConfig(cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load metrics config: %w", err)
	}
	keys, err := genesis.Keys()
	if err != nil {
		return err
	}
	if cfg.From < 0 || cfg.From >= len(keys) {
		return fmt.Errorf("sender slot %d has no genesis key", cfg.From)
	}

	if metricsCfg.ListenAddr != "" {
		serveMetrics(metricsCfg.ListenAddr)
	}

	verifiers := make([]*protocol.Verifier, protocolCfg.Verifiers)
	verifierKeys := make([]*btcec.PublicKey, protocolCfg.Verifiers)
	for i := range verifiers {
		tree, err := config.BuildLedger(genesis)
		if err != nil {
			return err
		}
		seed := hashx.Sum256([]byte(protocolCfg.Seed), []byte(fmt.Sprintf("verifier-%d", i)))
		key, _ := btcec.PrivKeyFromBytes(seed[:])
		verifiers[i] = protocol.NewVerifier(i, tree, key)
		verifierKeys[i] = key.PubKey()
	}
	tree, err := config.BuildLedger(genesis)
	if err != nil {
		return err
	}
	rand := protocol.NewSeededReader([]byte(protocolCfg.Seed))
	operator := protocol.NewOperator(tree, rand, verifierKeys...)
	operator.SetChallengeBlocks(protocolCfg.ChallengeBlocks)
	hub := protocol.NewHub(verifiers...)
	defer hub.Close()
	bus := protocol.NewEventBus()
	operator.SetEventBus(bus)
	events := bus.Subscribe(protocol.AllTransactions)
	defer logEvents(events)

	tx, ok := tree.GenerateTransaction(cfg.From, cfg.To, amount)
	if !ok {
		return fmt.Errorf("slots %d -> %d are not both assigned", cfg.From, cfg.To)
	}
	if err := tx.Sign(&keys[cfg.From], rand); err != nil {
		return fmt.Errorf("sign transfer: %w", err)
	}
	utx := types.NewUserTransaction(cfg.From, cfg.To, amount)
	utx.R, utx.S = tx.R, tx.S

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	committed, err := protocol.RunTransaction(runCtx, operator, hub, utx)
	if err != nil {
		return fmt.Errorf("transfer %s: %w", tx.Hash(), err)
	}

	summary, err := jsonx.MarshalIndent(struct {
		Tx              *transaction.Transaction `json:"tx"`
		TapRoot         string                   `json:"tap_root"`
		Verifiers       int                      `json:"verifiers"`
		ChallengeBlocks int                      `json:"challenge_blocks"`
		State           string                   `json:"state"`
		LedgerRoot      string                   `json:"ledger_root"`
	}{
		Tx:              committed.Tx,
		TapRoot:         committed.TapRoot.String(),
		Verifiers:       len(committed.VerifierSignatures),
		ChallengeBlocks: committed.ChallengeBlocks,
		State:           operator.State().String(),
		LedgerRoot:      fmt.Sprintf("%x", tree.Root()),
	})
	if err != nil {
		return err
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintln(out, string(summary))

	if cfg.PacketOut != "" {
		raw, err := committed.Packet.Encode()
		if err != nil {
			return err
		}
		if err := os.WriteFile(cfg.PacketOut, raw, 0o644); err != nil {
			return fmt.Errorf("write packet: %w", err)
		}
		logx.Info("SIMULATE", fmt.Sprintf("wrote %d packet bytes to %s", len(raw), cfg.PacketOut))
	}

	if metricsCfg.ListenAddr != "" {
		logx.Info("SIMULATE", fmt.Sprintf("serving metrics on %s until interrupted", metricsCfg.ListenAddr))
		waitForSignal(ctx)
	}
	return nil
}

func logEvents(events chan protocol.Event) {
	for {
		select {
		case ev := <-events:
			logx.Info("SIMULATE", fmt.Sprintf("%s %s at %s", ev.Type(), ev.TxHash(), ev.Timestamp().Format(time.RFC3339)))
		default:
			return
		}
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	monitoring.RegisterMetrics(mux)
	exception.SafeGo("metrics-server", func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logx.Error("SIMULATE", fmt.Sprintf("metrics server stopped: %v", err))
		}
	})
}

func waitForSignal(ctx context.Context) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
}
