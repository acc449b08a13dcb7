package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/anima-memory/engine"
	"github.com/spaghettifunk/anima-memory/testbed"
)

var (
	runWorkers  int
	runDuration time.Duration
	runWatch    bool
)

func init() {
	cmd := newRunCmd()
	cmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "Worker goroutines (default from config)")
	cmd.Flags().DurationVarP(&runDuration, "duration", "d", 0, "How long to run; 0 uses the config, negative runs until interrupted")
	cmd.Flags().BoolVar(&runWatch, "watch", false, "Reload --config while running")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the allocation testbed",
		Long: `The run command starts the engine with the testbed game: every worker
allocates and frees random sizes through the size-class allocator until the
duration elapses or the process is interrupted, then the telemetry report
and any leaks are printed.

Example:
  anima-memory run
  anima-memory run --config memory.toml --workers 8 --duration 10s
  anima-memory run --config memory.toml --duration -1s --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTestbed(cmd.Context())
		},
	}
}

func runTestbed(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runWorkers > 0 {
		cfg.Testbed.Workers = runWorkers
	}
	if runDuration != 0 {
		cfg.Testbed.Duration.Duration = runDuration
	}

	app := &engine.ApplicationConfig{
		Name:     "Anima Memory Testbed",
		LogLevel: cfg.Level(),
		Config:   cfg,
	}
	if runWatch {
		app.ConfigPath = configPath
	}

	tg, err := testbed.NewTestGame(app)
	if err != nil {
		return err
	}
	e, err := startEngine(tg)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT, os.Interrupt)
	defer stop()
	if d := cfg.Testbed.Duration.Duration; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	runErr := e.Run(ctx)
	if err := e.Shutdown(); err != nil {
		return err
	}
	return runErr
}

// startEngine boots and initializes the engine for tg. A failed Initialize
// shuts the engine down again so its systems are released.
func startEngine(tg *testbed.TestGame) (*engine.Engine, error) {
	e, err := engine.New(tg.Game)
	if err != nil {
		return nil, err
	}
	if err := e.Initialize(); err != nil {
		return nil, errors.Join(err, e.Shutdown())
	}
	return e, nil
}
