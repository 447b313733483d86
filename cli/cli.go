// Package cli provides the pdfsign command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/georgepadayatti/pdfsign/config"
	"github.com/georgepadayatti/pdfsign/internal/logger"
	"github.com/georgepadayatti/pdfsign/metadata"
	"github.com/georgepadayatti/pdfsign/observability"
	"github.com/georgepadayatti/pdfsign/store"
	"github.com/georgepadayatti/pdfsign/store/fsstore"
	"github.com/georgepadayatti/pdfsign/store/s3store"
)

// Version information
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// osExit is a variable for os.Exit to allow testing
var osExit = os.Exit

// errReported marks a failure whose details were already printed.
var errReported = errors.New("command failed")

// app holds what the subcommands share for one invocation.
type app struct {
	configFile string
	logLevel   string
	logFormat  string
	trace      bool
	noColor    bool

	cfg      *config.AppConfig
	registry *prometheus.Registry
	metrics  *observability.Metrics
	tracer   *sdktrace.TracerProvider
	closers  []func() error
}

// Run executes the CLI with the given arguments and exits non-zero on
// failure. This is the main entry point for the CLI.
func Run(args []string) {
	if err := Execute(context.Background(), args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		osExit(1)
	}
}

// Execute runs the command line against out and errOut.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	a := &app{}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(ctx); err == nil {
		err = cerr
	}
	return err
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pdfsign",
		Short: "Detached PDF signing and verification",
		Long: `pdfsign signs PDF documents with a detached PKCS#7 signature held in a
signature dictionary, optionally drawn as a visible widget, and verifies the
signatures embedded in a document.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Configuration file (YAML)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: text, json")
	flags.BoolVar(&a.trace, "trace", false, "Print OpenTelemetry spans to stderr")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		a.signCommand(),
		a.verifyCommand(),
		a.pagesCommand(),
		a.keystoreCommand(),
		versionCommand(),
	)
	return root
}

// setup loads the configuration and starts logging, metrics and tracing.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.noColor || !isTerminal(cmd.OutOrStdout()) {
		disableColors()
	}

	cfg, err := config.LoadAppConfig(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if a.trace {
		cfg.Tracing.Exporter = "stdout"
	}
	a.cfg = cfg

	w, closeLog, err := cfg.Logging.Writer()
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closeLog)
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, w); err != nil {
		return err
	}

	a.registry = prometheus.NewRegistry()
	a.metrics = observability.NewMetrics(a.registry)

	if cfg.Tracing.Exporter != "none" {
		tc := observability.DefaultTracerConfig()
		tc.ServiceVersion = Version
		tc.ExporterType = cfg.Tracing.Exporter
		tc.SamplingRate = cfg.Tracing.SamplingRate
		tc.Writer = cmd.ErrOrStderr()
		tp, err := observability.SetupTracing(cmd.Context(), tc)
		if err != nil {
			return err
		}
		a.tracer = tp
	}
	return nil
}

// close flushes metrics and spans and releases opened resources.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.cfg != nil && a.cfg.Metrics.Textfile != "" && a.registry != nil {
		if err := observability.WriteTextfile(a.cfg.Metrics.Textfile, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if a.tracer != nil {
		if err := observability.ShutdownTracing(ctx, a.tracer); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// backend opens the configured content store.
func (a *app) backend(ctx context.Context, root string) (store.Backend, error) {
	switch a.cfg.Storage.Backend {
	case "s3":
		s3cfg := a.cfg.Storage.S3
		client, err := s3store.NewClient(ctx, s3store.Options{
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			UsePathStyle:    s3cfg.UsePathStyle,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			SessionToken:    s3cfg.SessionToken,
		})
		if err != nil {
			return nil, err
		}
		return s3store.New(client, s3cfg.Bucket), nil
	default:
		if root == "" {
			root = a.cfg.Storage.Root
		}
		return fsstore.New(root)
	}
}

// metadataSink opens the SQLite sink when it is enabled.
func (a *app) metadataSink() (metadata.Sink, error) {
	if !a.cfg.Metadata.Enabled {
		return nil, nil
	}
	db, err := metadata.Open(a.cfg.Metadata.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	return db, nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// Version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pdfsign version %s\n", Version)
			fmt.Fprintf(out, "Build time: %s\n", BuildTime)
			return nil
		},
	}
}
