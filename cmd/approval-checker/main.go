package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JoeanSteinbock/address-approval-checker/internal/config"
)

const defaultEnvFile = ".env"

// options holds the command-line flags. Flags that were not set on the
// command line leave the environment value in place.
type options struct {
	envFile      string
	rpcURL       string
	wallets      string
	tokens       string
	spenders     string
	targets      string
	advanced     bool
	fromBlock    uint64
	toBlock      uint64
	concurrency  int
	displayLimit int
	output       string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "approval-checker:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "approval-checker",
		Short: "Audit ERC-20 token approvals and the value they expose",
		Long: `Check which spenders may move tokens out of a set of wallets.

In basic mode every (wallet, token, spender) combination from the input lists
is checked. In advanced mode spenders are discovered from historical Approval
events of each (wallet, token) pair.

Example:
  approval-checker --rpc https://eth.example --spenders spenders.txt
  approval-checker --advanced --from-block 17000000 --concurrency 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(opts.envFile); err != nil {
				return err
			}
			cfg, err := config.Load(opts.overrides(cmd))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(stderr, cfg.Log)
			slog.SetDefault(logger)
			return runAudit(cmd.Context(), cfg, stdout, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.envFile, "env-file", defaultEnvFile, "dotenv file loaded before reading the environment")
	f.StringVar(&opts.rpcURL, "rpc", "", "JSON-RPC endpoint (RPC_URL)")
	f.StringVar(&opts.wallets, "wallets", "", "wallet list file (WALLETS_FILE)")
	f.StringVar(&opts.tokens, "tokens", "", "token list file, address[,price] per line (TOKENS_FILE)")
	f.StringVar(&opts.spenders, "spenders", "", "spender list file for basic mode (SPENDERS_FILE)")
	f.StringVar(&opts.targets, "targets", "", "YAML file with wallets, tokens and spenders (TARGETS_FILE)")
	f.BoolVar(&opts.advanced, "advanced", false, "discover spenders from Approval events (ADVANCED_MODE)")
	f.Uint64Var(&opts.fromBlock, "from-block", 0, "first block of the discovery window (FROM_BLOCK)")
	f.Uint64Var(&opts.toBlock, "to-block", 0, "last block of the discovery window, 0 for the head (TO_BLOCK)")
	f.IntVar(&opts.concurrency, "concurrency", 0, "work items per wave (BATCH_SIZE)")
	f.IntVar(&opts.displayLimit, "display-limit", 0, "maximum rows printed (DISPLAY_LIMIT)")
	f.StringVar(&opts.output, "output", "", "CSV export path, empty to disable (OUTPUT_FILE)")

	return cmd
}

// overrides applies the flags the user actually set on top of the
// environment-derived config.
func (o *options) overrides(cmd *cobra.Command) config.Override {
	changed := cmd.Flags().Changed
	return func(cfg *config.Config) {
		if changed("rpc") {
			cfg.RPC.URL = strings.TrimSpace(o.rpcURL)
		}
		if changed("wallets") {
			cfg.Input.WalletsFile = o.wallets
		}
		if changed("tokens") {
			cfg.Input.TokensFile = o.tokens
		}
		if changed("spenders") {
			cfg.Input.SpendersFile = o.spenders
		}
		if changed("targets") {
			cfg.Input.TargetsFile = o.targets
		}
		if changed("advanced") {
			cfg.Audit.Advanced = o.advanced
		}
		if changed("from-block") {
			cfg.Audit.FromBlock = o.fromBlock
		}
		if changed("to-block") {
			cfg.Audit.ToBlock = o.toBlock
		}
		if changed("concurrency") {
			cfg.Audit.BatchSize = o.concurrency
		}
		if changed("display-limit") {
			cfg.Audit.DisplayLimit = o.displayLimit
		}
		if changed("output") {
			cfg.Output.File = o.output
		}
	}
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
