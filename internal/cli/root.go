// Package cli wires the relay command line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Backland-Labs/relay/internal/config"
	"github.com/Backland-Labs/relay/internal/logger"
	"github.com/Backland-Labs/relay/internal/output"
)

const version = "0.1.0"

// options carries flag overrides. A value only applies when its
// corresponding set marker is true, so unset flags never clobber
// environment or file configuration.
type options struct {
	workflow    string
	workflowSet bool
	ref         string
	refSet      bool
	inputs      string
	inputsSet   bool
	interval    int
	intervalSet bool
	timeout     int
	timeoutSet  bool

	noTrigger   bool
	noWait      bool
	noPropagate bool
}

// Execute runs the CLI
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	var showVersion bool
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay - trigger a GitHub Actions workflow and wait for its outcome",
		Long: `Relay - trigger a GitHub Actions workflow and wait for its outcome

Relay dispatches a workflow_dispatch event, discovers the run the dispatch
produced by diffing run listings, and polls it until it completes,
propagating the run's conclusion as the process exit code.

Configuration comes from RELAY_* environment variables (see ` + "`relay --help`" + `);
flags override the environment.

Examples:
  relay --workflow deploy.yml --ref main
  relay --workflow ci.yml --inputs '{"env":"staging"}'
  relay --workflow deploy.yml --no-wait          # dispatch only
  relay --workflow deploy.yml --no-trigger       # wait for an in-flight run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "relay version "+version)
				return err
			}

			opts.workflowSet = cmd.Flags().Changed("workflow")
			opts.refSet = cmd.Flags().Changed("ref")
			opts.inputsSet = cmd.Flags().Changed("inputs")
			opts.intervalSet = cmd.Flags().Changed("interval")
			opts.timeoutSet = cmd.Flags().Changed("timeout")

			return runDispatch(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Show version information")
	cmd.Flags().StringVar(&opts.workflow, "workflow", "", "Workflow file name to dispatch, e.g. deploy.yml")
	cmd.Flags().StringVar(&opts.ref, "ref", "", "Git ref the dispatched run executes on")
	cmd.Flags().StringVar(&opts.inputs, "inputs", "", "Dispatch inputs as a JSON object")
	cmd.Flags().IntVar(&opts.interval, "interval", 0, "Seconds to sleep between polls")
	cmd.Flags().IntVar(&opts.timeout, "timeout", 0, "Timeout budget in seconds for discovery and waiting")
	cmd.Flags().BoolVar(&opts.noTrigger, "no-trigger", false, "Skip the dispatch stage")
	cmd.Flags().BoolVar(&opts.noWait, "no-wait", false, "Skip the wait stage")
	cmd.Flags().BoolVar(&opts.noPropagate, "no-propagate-failure", false, "Exit 0 even when the run fails")

	return cmd
}

// runDispatch executes the controller with production dependencies
func runDispatch(cmd *cobra.Command, opts *options) error {
	deps := NewRealDependencies()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		printer := output.NewPrinter()
		printer.Warning("\nInterrupt received, shutting down gracefully...")
		cancel()
	}()

	return runWithDependencies(ctx, opts, deps)
}

// runWithDependencies is the testable version of runDispatch with
// dependency injection
func runWithDependencies(ctx context.Context, opts *options, deps *Dependencies) error {
	cfg, err := deps.ConfigLoader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := applyOverrides(cfg, opts); err != nil {
		return err
	}

	logger.InitializeFromConfig(cfg)
	logger.Debugf("Starting relay for workflow %s in %s/%s", cfg.Workflow, cfg.Owner, cfg.Repo)

	if err := cfg.ValidateRequired(); err != nil {
		return err
	}

	if deps.Engine == nil {
		deps.Engine = NewRealEngine(cfg)
	}

	return deps.Engine.Run(ctx)
}

// applyOverrides folds flag values into the loaded configuration.
func applyOverrides(cfg *config.Config, opts *options) error {
	if opts.workflowSet {
		cfg.Workflow = opts.workflow
	}
	if opts.refSet {
		if opts.ref == "" {
			return fmt.Errorf("--ref cannot be empty")
		}
		cfg.Ref = opts.ref
	}
	if opts.inputsSet {
		inputs, err := config.ParseInputs(opts.inputs)
		if err != nil {
			return fmt.Errorf("invalid --inputs: %w", err)
		}
		cfg.Inputs = inputs
	}
	if opts.intervalSet {
		if opts.interval <= 0 {
			return fmt.Errorf("--interval must be positive, got: %d", opts.interval)
		}
		cfg.Interval = time.Duration(opts.interval) * time.Second
	}
	if opts.timeoutSet {
		if opts.timeout <= 0 {
			return fmt.Errorf("--timeout must be positive, got: %d", opts.timeout)
		}
		cfg.Timeout = time.Duration(opts.timeout) * time.Second
	}
	if opts.noTrigger {
		cfg.TriggerWorkflow = false
	}
	if opts.noWait {
		cfg.WaitWorkflow = false
	}
	if opts.noPropagate {
		cfg.PropagateFailure = false
	}
	return nil
}
