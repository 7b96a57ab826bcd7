package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-fujibus/device"
	"github.com/arloliu/go-fujibus/internal/task"
)

const shutdownTimeout = 5 * time.Second

func (a *app) newServeCmd() *cobra.Command {
	var listen, wsListen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a network device emulator",
		Long: `serve runs an emulated FujiNet network device. Clients reach it with SLIP
frames over TCP and, when a WebSocket address is configured, with one frame
per binary WebSocket message.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("listen") {
				a.cfg.Device.Listen = listen
			}
			if cmd.Flags().Changed("websocket") {
				a.cfg.Device.WebSocket = wsListen
			}

			return a.serve(cmd)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "TCP address for SLIP clients (default from config)")
	cmd.Flags().StringVar(&wsListen, "websocket", "", "address for WebSocket clients, empty to disable")

	return cmd
}

func (a *app) serve(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	dev, err := device.New(a.cfg.DeviceOptions(a.logger)...)
	if err != nil {
		return err
	}
	defer dev.Close()

	ln, err := net.Listen("tcp", a.cfg.Device.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	var wsLn net.Listener
	if a.cfg.Device.WebSocket != "" {
		wsLn, err = net.Listen("tcp", a.cfg.Device.WebSocket)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("listen websocket: %w", err)
		}
	}

	mgr := task.NewManager(ctx, a.logger)
	errCh := make(chan error, 2)

	statusLine(out, "Device", "listening on "+okStyle.Render(ln.Addr().String()))
	_ = mgr.Go("slip-listener", func(ctx context.Context) {
		errCh <- dev.ServeListener(ctx, ln)
	})

	if wsLn != nil {
		srv := &http.Server{
			Handler:           dev.WebSocketHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		statusLine(out, "WebSocket", "listening on "+okStyle.Render("ws://"+wsLn.Addr().String()))
		_ = mgr.Go("websocket-listener", func(ctx context.Context) {
			stop := context.AfterFunc(ctx, func() {
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = srv.Shutdown(sctx)
			})
			defer stop()

			err := srv.Serve(wsLn)
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			errCh <- err
		})
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	mgr.Stop()
	mgr.Wait()

	m := dev.Metrics()
	statusLine(out, "Stopped", dimStyle.Render(fmt.Sprintf("%d requests, %d opens, %d errors",
		m.RequestCount.Load(), m.OpenCount.Load(), m.StatusErrCount.Load())))

	return err
}
