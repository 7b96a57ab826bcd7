package cli

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-fujibus/fujibus"
	"github.com/arloliu/go-fujibus/network"
)

func (a *app) newTCPCmd() *cobra.Command {
	var (
		useTLS bool
		idle   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "tcp <host:port>",
		Short: "Send stdin over a device TCP session and print the reply",
		Long: `tcp opens a raw TCP (or TLS) session on the device, writes stdin to it,
half-closes the sending side and prints everything the peer returns until it
closes the connection or stays quiet for --idle.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, portStr, err := net.SplitHostPort(args[0])
			if err != nil {
				return err
			}
			port, err := strconv.ParseUint(portStr, 10, 16)
			if err != nil {
				return fmt.Errorf("invalid port %q: %w", portStr, err)
			}

			return a.stream(cmd, host, uint16(port), useTLS, idle) //nolint:gosec // parsed with bitSize 16
		},
	}
	cmd.Flags().BoolVar(&useTLS, "tls", false, "wrap the session in TLS")
	cmd.Flags().DurationVar(&idle, "idle", defaultIdle, "stop reading after this long without data")

	return cmd
}

func (a *app) stream(cmd *cobra.Command, host string, port uint16, useTLS bool, idle time.Duration) error {
	ctx := cmd.Context()

	client, p, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	var h fujibus.Handle
	if useTLS {
		url := "tcp://" + net.JoinHostPort(host, strconv.Itoa(int(port)))
		h, err = client.Open(ctx, fujibus.MethodNone, url, network.OpenTLS)
	} else {
		h, err = client.TCPOpen(ctx, host, port)
	}
	if err != nil {
		return fmt.Errorf("connect %s:%d: %w", host, port, err)
	}
	defer func() {
		if err := client.Close(ctx, h); err != nil {
			a.logger.Warn("close failed", "handle", h, "error", err)
		}
	}()

	stderr := cmd.ErrOrStderr()

	sent, err := writeBody(ctx, client, h, cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	statusLine(stderr, "Sent", fmt.Sprintf("%d bytes", sent))

	sum, err := readBody(ctx, client, h, cmd.OutOrStdout(), idle)
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}

	state := okStyle.Render("peer closed")
	if !sum.EOF {
		state = dimStyle.Render("idle")
	}
	statusLine(stderr, "Received", fmt.Sprintf("%d bytes, %s", sum.N, state))

	return nil
}
