package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-fujibus/fujibus"
	"github.com/arloliu/go-fujibus/transport"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show fnio and protocol versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fnio version %s\n", Version)
			fmt.Fprintf(out, "protocol version 0x%02x, framing %s\n", fujibus.ProtocolVersion, fujibus.Framing)

			return nil
		},
	}
}

func (a *app) newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := transport.ListSerialPorts()
			if err != nil {
				return fmt.Errorf("failed to list serial ports: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(out, dimStyle.Render("No serial ports found."))
				return nil
			}

			for _, p := range ports {
				if a.cfg.Kind() == transport.KindSerial && p == a.cfg.Target() {
					fmt.Fprintln(out, okStyle.Render(p), dimStyle.Render("(configured)"))
					continue
				}
				fmt.Fprintln(out, p)
			}

			return nil
		},
	}
}
