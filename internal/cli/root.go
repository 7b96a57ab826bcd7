// Package cli implements the fnio command line tool.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-fujibus/internal/config"
	"github.com/arloliu/go-fujibus/logger"
	"github.com/arloliu/go-fujibus/network"
	"github.com/arloliu/go-fujibus/transport"
)

// app holds the state shared by every subcommand once the root command's
// PersistentPreRunE has run.
type app struct {
	cfgFile  string
	logLevel string

	cfg    *config.Config
	logger logger.Logger
}

// NewRootCmd builds the fnio command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "fnio",
		Short: "Talk to a FujiNet network device over FujiBus",
		Long: `fnio drives the network device of a FujiNet over a serial line, a TCP
stream or a WebSocket bridge. It can fetch and post HTTP resources, pipe
data through a raw TCP session and run a device emulator for testing.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file, YAML or TOML (default is ~/.fujinet/fnio.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		a.newGetCmd(),
		a.newPostCmd(),
		a.newTCPCmd(),
		a.newServeCmd(),
		a.newPortsCmd(),
		newVersionCmd(),
	)

	return root
}

// Execute runs the fnio command tree with ctx and reports a failure on the
// command's error stream.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), errorStyle.Render("Error:"), err)
	}

	return err
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger.NewSlogWithOptions(logger.SlogOptions{
		Output:    cmd.ErrOrStderr(),
		Level:     level,
		AddSource: cfg.Log.AddSource,
		Console:   true,
	})
	logger.SetLogger(a.logger)

	return nil
}

// dial opens the configured transport and wraps it in a client.
func (a *app) dial(ctx context.Context) (*network.Client, transport.Port, error) {
	portCfg, err := transport.NewPortConfig(a.cfg.PortOptions(a.logger)...)
	if err != nil {
		return nil, nil, err
	}

	port, err := transport.Open(ctx, a.cfg.Kind(), a.cfg.Target(), portCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s %s: %w", a.cfg.Kind(), a.cfg.Target(), err)
	}

	client, err := network.NewClient(port, network.WithLogger(a.logger))
	if err != nil {
		_ = port.Close()
		return nil, nil, err
	}

	a.logger.Debug("transport opened", "kind", a.cfg.Kind(), "port", port.Name())

	return client, port, nil
}
