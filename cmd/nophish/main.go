package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vulnverified/nophish/internal/config"
	"github.com/vulnverified/nophish/internal/engine"
	"github.com/vulnverified/nophish/internal/logger"
	"github.com/vulnverified/nophish/internal/output"
	"github.com/vulnverified/nophish/internal/server"
)

// Set via ldflags at build time.
var version = "dev"

// errReported marks a failure whose message was already printed.
var errReported = errors.New("reported")

type rootOptions struct {
	configPath string
	verbose    bool
	noColor    bool
	logLevel   string
}

func main() {
	output.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "nophish",
		Short:         "Assess whether a URL is a phishing site",
		Long:          "Collect DNS, TLS, WHOIS and rendered-page evidence for a URL and ask an LLM for a structured phishing verdict.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose progress and debug logging")
	pf.BoolVar(&opts.noColor, "no-color", false, "Disable terminal colors")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newAnalyzeCmd(opts, stdout, stderr),
		newServeCmd(opts),
		newVersionCmd(stdout),
	)
	rootCmd.Version = version
	rootCmd.SetVersionTemplate("nophish {{.Version}}\n")

	return rootCmd
}

type analyzeOptions struct {
	jsonOutput   bool
	silent       bool
	renderer     string
	model        string
	tokenCeiling int
	temperature  float64
}

func newAnalyzeCmd(root *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Analyze one URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawURL := strings.TrimSpace(args[0])
			if rawURL == "" {
				fmt.Fprintln(stderr, output.MsgInvalidURL)
				return errReported
			}

			noColor := root.noColor
			if _, ok := os.LookupEnv("NO_COLOR"); ok {
				noColor = true
			}

			cfg, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}
			applyAnalyzeFlags(cmd, opts, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			// Progress already reports collector warnings, so the
			// structured log stays quiet unless asked for.
			if root.logLevel == "" && !root.verbose {
				cfg.Logging.Level = "error"
			}
			log, err := newLogger(cfg, root)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			showProgress := !opts.jsonOutput && !opts.silent
			progress := output.NewProgress(stderr, root.verbose, !showProgress)
			if showProgress {
				output.WriteHeader(stderr, noColor)
			}

			pipeline, err := buildPipeline(cfg, log, progress)
			if err != nil {
				return err
			}

			report, runErr := pipeline.Analyze(cmd.Context(), rawURL)
			progress.Complete(report.State)
			log.Info("Analysis finished",
				logger.String("url", rawURL),
				logger.String("state", string(report.State)),
				logger.Float64("duration_secs", report.DurationSecs),
				logger.Int("warnings", progress.Warnings()),
			)

			if opts.jsonOutput {
				if err := output.WriteJSON(stdout, report); err != nil {
					return err
				}
				if runErr != nil {
					fmt.Fprintln(stderr, output.MsgAnalysisFailed)
				}
			} else {
				output.WriteTable(stdout, report, noColor)
				output.WriteSummary(stdout, report, noColor)
			}

			if runErr != nil {
				if errors.Is(runErr, engine.ErrAnalysisFailed) {
					log.Error("Analysis failed", logger.Error(runErr))
					return errReported
				}
				return runErr
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.jsonOutput, "json", false, "Output the full report as JSON to stdout")
	f.BoolVar(&opts.silent, "silent", false, "Results only, no progress")
	f.StringVar(&opts.renderer, "renderer", "", "Page renderer: browser or static")
	f.StringVar(&opts.model, "model", "", "LLM model name")
	f.IntVar(&opts.tokenCeiling, "token-ceiling", 0, "Maximum evidence tokens sent to the model")
	f.Float64Var(&opts.temperature, "temperature", 0, "Sampling temperature in [0,1]")

	return cmd
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			log, err := newLogger(cfg, root)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			pipeline, err := buildPipeline(cfg, log, nil)
			if err != nil {
				return err
			}

			srv := server.New(server.Config{
				Addr:            cfg.Server.Addr,
				ReadTimeout:     cfg.Server.ReadTimeout,
				WriteTimeout:    cfg.Server.WriteTimeout,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				Debug:           root.verbose,
			}, pipeline, log)
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")

	return cmd
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(stdout, "nophish %s\n", version)
		},
	}
}

// loadConfig reads the config file. The default path may be absent; an
// explicit --config must exist.
func loadConfig(cmd *cobra.Command, root *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(root.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	if root.logLevel != "" {
		cfg.Logging.Level = root.logLevel
	}
	return cfg, nil
}

// applyAnalyzeFlags overlays explicitly set flags on cfg.
func applyAnalyzeFlags(cmd *cobra.Command, opts *analyzeOptions, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("renderer") {
		cfg.Collectors.Renderer = opts.renderer
	}
	if f.Changed("model") {
		cfg.Model = opts.model
	}
	if f.Changed("token-ceiling") {
		cfg.TokenCeiling = opts.tokenCeiling
	}
	if f.Changed("temperature") {
		cfg.Temperature = opts.temperature
	}
}

func newLogger(cfg *config.Config, root *rootOptions) (logger.Logger, error) {
	lc := cfg.Logging
	if root.verbose && root.logLevel == "" {
		lc.Level = "debug"
	}
	log, err := logger.New(lc)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log, nil
}
