package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-fujibus/fujibus"
	"github.com/arloliu/go-fujibus/network"
)

type httpFlags struct {
	tls    bool
	follow bool
	output string
	idle   time.Duration
}

func (f *httpFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.tls, "tls", false, "upgrade http:// URLs to TLS on the device")
	cmd.Flags().BoolVarP(&f.follow, "location", "L", false, "follow redirects")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "write the body to a file instead of stdout")
	cmd.Flags().DurationVar(&f.idle, "idle", defaultIdle, "stop reading after this long without data")
}

func (f *httpFlags) openFlags() network.OpenFlag {
	var flags network.OpenFlag
	if f.tls {
		flags |= network.OpenTLS
	}
	if f.follow {
		flags |= network.OpenFollowRedirect
	}

	return flags
}

func (a *app) newGetCmd() *cobra.Command {
	var (
		flags httpFlags
		head  bool
	)

	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Fetch a URL through the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := fujibus.MethodGet
			if head {
				method = fujibus.MethodHead
			}

			return a.request(cmd, method, args[0], &flags, nil)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&head, "head", "I", false, "send a HEAD request")

	return cmd
}

func (a *app) newPostCmd() *cobra.Command {
	var (
		flags  httpFlags
		method string
	)

	cmd := &cobra.Command{
		Use:   "post <url>",
		Short: "Send stdin as a request body through the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := fujibus.ParseMethod(method)
			if err != nil {
				return err
			}
			if !m.HasBody() {
				return fmt.Errorf("method %s does not take a body", m)
			}

			return a.request(cmd, m, args[0], &flags, cmd.InOrStdin())
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&method, "method", "X", "POST", "request method, POST or PUT")

	return cmd
}

// request runs one HTTP exchange: open, optional body, info, then the
// response body to stdout or the output file. Status lines go to stderr.
func (a *app) request(cmd *cobra.Command, method fujibus.Method, url string, flags *httpFlags, body io.Reader) error {
	ctx := cmd.Context()

	client, port, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer port.Close()

	h, err := client.Open(ctx, method, url, flags.openFlags())
	if err != nil {
		return fmt.Errorf("open %s %s: %w", method, url, err)
	}
	defer func() {
		if err := client.Close(ctx, h); err != nil {
			a.logger.Warn("close failed", "handle", h, "error", err)
		}
	}()

	stderr := cmd.ErrOrStderr()

	if body != nil {
		sent, err := writeBody(ctx, client, h, body)
		if err != nil {
			return fmt.Errorf("write body: %w", err)
		}
		statusLine(stderr, "Sent", fmt.Sprintf("%d bytes", sent))
	}

	info, err := client.Info(ctx, h)
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}
	if info.HasStatus() {
		statusLine(stderr, "Status", httpStatusStyle(info.HTTPStatus).Render(strconv.Itoa(int(info.HTTPStatus))))
	}
	if info.HasLength() {
		statusLine(stderr, "Content-Length", strconv.FormatUint(info.ContentLength, 10))
	}

	out := cmd.OutOrStdout()
	if flags.output != "" {
		f, err := os.Create(flags.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	sum, err := readBody(ctx, client, h, out, flags.idle)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	received := fmt.Sprintf("%d bytes", sum.N)
	if sum.Truncated {
		received += " " + warnStyle.Render("(truncated by the device)")
	}
	if !sum.EOF {
		received += " " + dimStyle.Render("(idle, no EOF)")
	}
	statusLine(stderr, "Received", received)

	return nil
}
