package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"marketing-groupchat/metrics"
	"marketing-groupchat/repl"
)

const logFilename = "groupchat.log"

// cliFlags override the matching environment settings when set.
type cliFlags struct {
	tui           bool
	markdown      bool
	roster        string
	routing       string
	termination   string
	maxIterations int
	logLevel      string
	metricsAddr   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags cliFlags

	cmd := &cobra.Command{
		Use:   "marketing-groupchat",
		Short: "Round-robin group chat between SEO, SEM, CSR and SDR marketing agents",
		Long: `Starts an interactive group chat. Each message you type is answered by the
SEO, SEM, CSR and SDR participants in turn until the SDR approves the
conversation or the cycle limit is reached.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd, flags)
		},
	}

	fs := cmd.Flags()
	fs.BoolVar(&flags.tui, "tui", false, "use the full-screen terminal interface")
	fs.BoolVar(&flags.markdown, "markdown", false, "render replies as markdown")
	fs.StringVar(&flags.roster, "roster", "", "YAML roster file (overrides ROSTER_FILE)")
	fs.StringVar(&flags.routing, "routing", "", "routing mode: cyclic or model (overrides ROUTING_MODE)")
	fs.StringVar(&flags.termination, "termination", "", "termination mode: model or reply (overrides TERMINATION_MODE)")
	fs.IntVar(&flags.maxIterations, "max-iterations", 0, "maximum cycles per user message (overrides MAX_ITERATIONS)")
	fs.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	fs.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides METRICS_ADDR)")

	return cmd
}

// apply copies every flag the user actually passed onto cfg.
func (f cliFlags) apply(cmd *cobra.Command, cfg *Config) {
	fs := cmd.Flags()
	if fs.Changed("roster") {
		cfg.RosterFile = f.roster
	}
	if fs.Changed("routing") {
		cfg.RoutingMode = f.routing
	}
	if fs.Changed("termination") {
		cfg.TerminationMode = f.termination
	}
	if fs.Changed("max-iterations") {
		cfg.MaxIterations = f.maxIterations
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
}

func run(ctx context.Context, cmd *cobra.Command, flags cliFlags) error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found, using environment variables")
	}

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	flags.apply(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Log lines would tear the full-screen interface, so they go to a file there.
	var logOut io.Writer = os.Stderr
	if flags.tui {
		f, err := openLogFile(cfg.WorkspaceDir)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	logger, err := newLogger(cfg.LogLevel, logOut)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, a.metrics, logger); err != nil {
				logger.Error("Metrics server stopped", "err", err)
			}
		}()
	}

	defer func() {
		usage := a.client.Usage()
		logger.Info("Session finished",
			"duration", usage.SessionDuration().Round(time.Second),
			"tokens", usage.TotalTokens(),
			"cost", fmt.Sprintf("$%.4f", usage.TotalCost()),
		)
	}()

	if flags.tui {
		return runTUI(ctx, a, flags.markdown)
	}

	console, err := repl.New(a.loop, repl.Options{
		In:        cmd.InOrStdin(),
		Out:       cmd.OutOrStdout(),
		Markdown:  flags.markdown,
		Workspace: a.workspace,
		Usage:     a.client.Usage(),
	})
	if err != nil {
		return err
	}
	if err := console.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runTUI(ctx context.Context, a *app, markdown bool) error {
	program := tea.NewProgram(
		newChatModel(ctx, a.loop, a.client.Usage(), markdown),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("terminal interface: %w", err)
	}
	return nil
}

func newLogger(level string, out io.Writer) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return log.NewWithOptions(out, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		Prefix:          "groupchat",
	}), nil
}

func openLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, logFilename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
