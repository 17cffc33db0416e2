package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/dropship"
	logAdapter "github.com/bft-labs/dropship/internal/adapters/log"
	"github.com/bft-labs/dropship/internal/cliconfig"
)

const helpDescription = `
Send a token airdrop to every address in a recipient list, one transfer at a
time, through a signing gateway.

Progress is saved next to the list in <name>_airdrop_state/ after every
transfer. Stop with Ctrl-C or by creating a STOP file in that directory, and
run the same command again to resume where it left off.

The list is a CSV of address,amount rows. A leading address,amount header
is optional.

Use "dropship balance" to check the sending account before a run.
`

var exampleUsage = strings.TrimSpace(`
  dropship --recipients-file march.csv --token-address 0x... --dry-run
  dropship --file march.csv --config $HOME/.dropship/config.toml
  dropship balance --token-address 0x...
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath, envFile string

	log := cliconfig.Logger(cfg)

	// prepare layers the env file, config file and environment under the
	// flags set on cmd, then validates with validate.
	prepare := func(cmd *cobra.Command, validate func() error) (zerolog.Logger, error) {
		changed := map[string]bool{}
		cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

		if err := loadConfig(&cfg, cfgPath, envFile, changed); err != nil {
			return log, err
		}
		if err := validate(); err != nil {
			return log, err
		}
		return cliconfig.Logger(cfg), nil
	}

	root := &cobra.Command{
		Use:           "dropship",
		Short:         "Send a token airdrop to a recipient list, resumably",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runLog, err := prepare(cmd, cfg.Validate)
			if err != nil {
				return err
			}
			runLog.Info().Interface("config", cfg.Masked()).Msg("configuration")
			return run(cmd.Context(), cfg, runLog)
		},
	}

	balanceCmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the sending account's token balance and registration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runLog, err := prepare(cmd, cfg.ValidateGateway)
			if err != nil {
				return err
			}
			return showBalance(cmd.Context(), cfg, runLog, cmd.OutOrStdout())
		},
	}
	root.AddCommand(balanceCmd)

	shared := root.PersistentFlags()
	shared.StringVar(&cfgPath, "config", "", "path to config file, TOML or YAML (default: $HOME/.dropship/config.toml)")
	shared.StringVar(&envFile, "env-file", cliconfig.DefaultEnvFile, "dotenv file with DROPSHIP_* variables (ignored if missing)")

	shared.StringVar(&cfg.GatewayURL, "gateway-url", cfg.GatewayURL, "signing gateway base URL")
	shared.StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "signing gateway API key")
	shared.StringVar(&cfg.Chain, "chain", cfg.Chain, "chain the gateway should use (fuji|mainnet)")
	shared.StringVar(&cfg.TokenAddress, "token-address", cfg.TokenAddress, "token contract address")
	shared.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")

	shared.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")
	shared.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (console|json)")

	flags := root.Flags()
	flags.SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "file" {
			name = "recipients-file"
		}
		return pflag.NormalizedName(name)
	})

	flags.StringVar(&cfg.RecipientsFile, "recipients-file", cfg.RecipientsFile, "CSV of address,amount rows (alias --file)")
	flags.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "check registrations and print the plan without sending")
	flags.StringVar(&cfg.Account, "account", cfg.Account, "sending account label; one run per account at a time")

	flags.DurationVar(&cfg.Pause, "pause", cfg.Pause, "wait between transfers")
	flags.IntVar(&cfg.Confirmations, "confirmations", cfg.Confirmations, "confirmations to wait for per transfer")
	flags.DurationVar(&cfg.ConfirmPoll, "confirm-poll", cfg.ConfirmPoll, "transaction status poll interval")

	flags.StringVar(&cfg.Store, "store", cfg.Store, "state store (csv|sqlite)")
	flags.BoolVar(&cfg.StopFile, "stop-file", cfg.StopFile, "stop when a STOP file appears in the state directory")
	flags.BoolVar(&cfg.Reconcile, "reconcile", cfg.Reconcile, "ask the gateway about a transfer left open by an interrupted run")
	if err := flags.MarkHidden("reconcile"); err != nil {
		log.Info().Err(err).Msg("failed to hide reconcile flag")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go watchSignals(sigCh, cancel, os.Exit, log)

	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("dropship")
		os.Exit(1)
	}
}

// watchSignals cancels the run on the first signal and exits on the second.
// A transfer in progress already has its attempt marker saved, so the next
// run resolves it.
func watchSignals(sigCh <-chan os.Signal, cancel context.CancelFunc, exit func(int), log zerolog.Logger) {
	<-sigCh
	log.Info().Msg("received signal, stopping after the current transfer...")
	cancel()

	<-sigCh
	log.Warn().Msg("received second signal, exiting now; the next run resolves the open transfer")
	exit(130)
}

// loadConfig applies the env file, the config file and DROPSHIP_* variables
// under the flags already set.
func loadConfig(cfg *cliconfig.Config, cfgPath, envFile string, changed map[string]bool) error {
	if envFile != "" {
		if _, err := cliconfig.LoadEnvFile(envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}
	if cfgPath != "" && !cliconfig.FileExists(cfgPath) {
		return fmt.Errorf("config file %s not found", cfgPath)
	}
	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}

	return cliconfig.ApplyEnvConfig(cfg, changed)
}

func run(ctx context.Context, cfg cliconfig.Config, log zerolog.Logger) error {
	d, err := dropship.New(cfg,
		dropship.WithLogger(logAdapter.NewZerologAdapterWithLogger(log)),
		dropship.WithUserAgent("dropship/"+getVersion()),
	)
	if err != nil {
		return err
	}
	defer d.Close()

	report, err := d.Run(ctx)
	switch {
	case errors.Is(err, dropship.ErrInterrupted):
		log.Info().
			Str("dir", report.Dir).
			Stringer("summary", report.Summary).
			Msg("stopped; run the same command again to resume")
		return nil
	case err != nil:
		return err
	}

	event := log.Info().
		Str("dir", report.Dir).
		Stringer("summary", report.Summary).
		Bool("dry_run", report.DryRun)
	if report.FinalBalance != nil {
		event = event.Stringer("final_balance", report.FinalBalance)
	}
	event.Msg("finished")
	return nil
}

func showBalance(ctx context.Context, cfg cliconfig.Config, log zerolog.Logger, out io.Writer) error {
	status, err := dropship.Balance(ctx, cfg,
		dropship.WithLogger(logAdapter.NewZerologAdapterWithLogger(log)),
		dropship.WithUserAgent("dropship/"+getVersion()),
	)
	if err != nil {
		return err
	}

	registered := "unknown"
	if status.Registered != nil {
		registered = strconv.FormatBool(*status.Registered)
	}
	fmt.Fprintf(out, "token:      %s\nbalance:    %s\nregistered: %s\n", status.Token, status.Balance, registered)

	if status.Registered != nil && !*status.Registered {
		log.Warn().Msg("sending account is not registered; every transfer would fail")
	}
	return nil
}
