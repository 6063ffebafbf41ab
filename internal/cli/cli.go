package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vk/ucdpipe/internal/app"
	"github.com/vk/ucdpipe/internal/hcl_adapter"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Exit codes.
const (
	ExitRunFailed = 1
	ExitUsage     = 2
)

// options holds the flag values shared by all subcommands.
type options struct {
	logLevel        string
	logFormat       string
	workers         int
	cache           string
	noCache         bool
	eventsURL       string
	provenanceDB    string
	watch           bool
	healthcheckPort int
	versions        []string
}

// NewRootCommand builds the ucdpipe command tree. Results go to outW, logs
// to logW.
func NewRootCommand(outW, logW io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ucdpipe",
		Short: "Declarative ingestion pipeline for versioned Unicode data files",
		Long: `ucdpipe runs a pipeline declared in HCL over one or more versions of the
Unicode Character Database. Files from the declared sources are matched
against routes, parsed, transformed, and resolved into outputs, with routes
ordered by their declared dependencies.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(outW)

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "logging level: debug, info, warn, or error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log output format: text or json")

	root.AddCommand(
		newRunCommand(outW, logW, opts),
		newGraphCommand(outW, logW, opts),
		newValidateCommand(outW, logW, opts),
	)
	return root
}

// Execute runs the command tree with args. Usage problems are returned as
// an *ExitError with ExitUsage.
func Execute(ctx context.Context, args []string, outW, logW io.Writer) error {
	root := NewRootCommand(outW, logW)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

// newApp validates the shared options and builds the app for path.
func newApp(logW io.Writer, path string, opts *options, cfg app.Config) (*app.App, error) {
	cfg.PipelinePath = path
	cfg.LogLevel = opts.logLevel
	cfg.LogFormat = opts.logFormat
	appConfig, err := app.NewConfig(cfg)
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	a, err := app.NewApp(logW, appConfig, hcl_adapter.NewLoader())
	if err != nil {
		return nil, &ExitError{Code: ExitRunFailed, Message: err.Error()}
	}
	return a, nil
}

func newRunCommand(outW, logW io.Writer, opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <pipeline.hcl|dir>",
		Short: "Run a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(logW, args[0], opts, app.Config{
				WorkerCount:     opts.workers,
				Cache:           opts.cache,
				NoCache:         opts.noCache,
				EventsURL:       opts.eventsURL,
				ProvenanceDB:    opts.provenanceDB,
				Watch:           opts.watch,
				HealthcheckPort: opts.healthcheckPort,
				Versions:        opts.versions,
			})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Run(cmd.Context())
			if err != nil {
				return &ExitError{Code: ExitRunFailed, Message: err.Error()}
			}
			fmt.Fprintln(outW, RenderSummary(res))
			if len(res.Errors) > 0 {
				return &ExitError{Code: ExitRunFailed, Message: fmt.Sprintf("run finished with %d error(s)", len(res.Errors))}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.workers, "workers", 0, "maximum concurrent route tasks; 0 uses the pipeline's concurrency")
	f.StringVar(&opts.cache, "cache", app.CacheMemory, "output cache: memory, off, or sqlite:<path>")
	f.BoolVar(&opts.noCache, "no-cache", false, "bypass the cache for this run")
	f.StringVar(&opts.eventsURL, "events-url", "", "socket.io endpoint that receives pipeline events")
	f.StringVar(&opts.provenanceDB, "provenance-db", "", "SQLite file the provenance graph is exported to")
	f.BoolVar(&opts.watch, "watch", false, "keep running and process new version directories of the local mirror")
	f.IntVar(&opts.healthcheckPort, "healthcheck-port", 0, "port for the HTTP health check server; 0 is disabled")
	f.StringSliceVar(&opts.versions, "versions", nil, "versions to run instead of the declared ones")
	return cmd
}

func newGraphCommand(outW, logW io.Writer, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "graph <pipeline.hcl|dir>",
		Short: "Print the route execution order and layers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(logW, args[0], opts, app.Config{Cache: app.CacheOff})
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintln(outW, RenderGraph(a.Graph()))
			return nil
		},
	}
}

func newValidateCommand(outW, logW io.Writer, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pipeline.hcl|dir>",
		Short: "Check a pipeline declaration and its route graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(logW, args[0], opts, app.Config{Cache: app.CacheOff})
			if err != nil {
				return err
			}
			defer a.Close()
			g := a.Graph()
			fmt.Fprintf(outW, "pipeline '%s' is valid: %d route(s) in %d layer(s)\n", a.Model().Pipeline.ID, g.Len(), len(g.Layers()))
			return nil
		},
	}
}
