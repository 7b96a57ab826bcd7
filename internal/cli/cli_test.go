package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-fujibus/device"
	"github.com/arloliu/go-fujibus/internal/config"
	"github.com/arloliu/go-fujibus/logger"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{config.EnvPort, config.EnvBaud, config.EnvAddr, config.EnvTransport} {
		t.Setenv(k, "")
	}
	t.Setenv("HOME", t.TempDir())
}

// startDevice serves an emulated device on a loopback listener and returns
// a config file pointing the tcp transport at it.
func startDevice(t *testing.T) string {
	t.Helper()

	dev, err := device.New(device.WithLogger(logger.NewMockLogger().AllowAll()), device.WithReadWait(20*time.Millisecond))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = dev.ServeListener(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = dev.Close()
	})

	return writeConfig(t, ln.Addr().String())
}

func writeConfig(t *testing.T, addr string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fnio.yaml")
	content := fmt.Sprintf("transport:\n  kind: tcp\n  addr: %s\n  timeout: 2s\nlog:\n  level: error\n", addr)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func run(ctx context.Context, t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr syncBuffer

	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.ExecuteContext(ctx)

	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	clearEnv(t)

	out, _, err := run(context.Background(), t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "fnio version "+Version)
	assert.Contains(t, out, "protocol version 0x01")
	assert.Contains(t, out, "param-count/xor")
}

func TestRoot_ConfigErrors(t *testing.T) {
	clearEnv(t)
	ctx := context.Background()

	_, _, err := run(ctx, t, "", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version")
	require.ErrorContains(t, err, "failed to load config")

	_, _, err = run(ctx, t, "", "--log-level", "chatty", "version")
	require.Error(t, err)
}

func TestGet(t *testing.T) {
	clearEnv(t)

	content := strings.Repeat("0123456789", 130)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, content)
	}))
	defer srv.Close()

	cfgPath := startDevice(t)
	ctx := context.Background()

	out, errOut, err := run(ctx, t, "", "--config", cfgPath, "get", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, content, out)
	assert.Contains(t, errOut, "Status:")
	assert.Contains(t, errOut, "200")
	assert.Contains(t, errOut, strconv.Itoa(len(content))+" bytes")

	out, errOut, err = run(ctx, t, "", "--config", cfgPath, "get", "-I", srv.URL)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "Content-Length:")

	file := filepath.Join(t.TempDir(), "body.txt")
	out, _, err = run(ctx, t, "", "--config", cfgPath, "get", "-o", file, srv.URL)
	require.NoError(t, err)
	assert.Empty(t, out)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestGet_UnsupportedScheme(t *testing.T) {
	clearEnv(t)

	cfgPath := startDevice(t)

	_, _, err := run(context.Background(), t, "", "--config", cfgPath, "get", "gopher://example.com/")
	require.ErrorContains(t, err, "open GET")
}

func TestPost(t *testing.T) {
	clearEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, "%s %d", r.Method, len(body))
	}))
	defer srv.Close()

	cfgPath := startDevice(t)
	ctx := context.Background()
	body := strings.Repeat("x", 2500)

	out, errOut, err := run(ctx, t, body, "--config", cfgPath, "post", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "POST 2500", out)
	assert.Contains(t, errOut, "2500 bytes")
	assert.Contains(t, errOut, "201")

	out, _, err = run(ctx, t, "", "--config", cfgPath, "post", "-X", "put", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "PUT 0", out)

	_, _, err = run(ctx, t, "", "--config", cfgPath, "post", "-X", "GET", srv.URL)
	require.ErrorContains(t, err, "does not take a body")
}

func TestTCP(t *testing.T) {
	clearEnv(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		data, _ := io.ReadAll(conn)
		_, _ = conn.Write(append([]byte("echo: "), data...))
	}()

	cfgPath := startDevice(t)

	out, errOut, err := run(context.Background(), t, "ping", "--config", cfgPath, "tcp", ln.Addr().String())
	require.NoError(t, err)
	assert.Equal(t, "echo: ping", out)
	assert.Contains(t, errOut, "peer closed")
}

func TestTCP_BadAddress(t *testing.T) {
	clearEnv(t)
	ctx := context.Background()

	_, _, err := run(ctx, t, "", "tcp", "no-port")
	require.Error(t, err)

	_, _, err = run(ctx, t, "", "tcp", "localhost:99999")
	require.ErrorContains(t, err, "invalid port")
}

func TestServe(t *testing.T) {
	clearEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "served")
	}))
	defer srv.Close()

	var stdout, stderr syncBuffer

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"--log-level", "error", "serve", "--listen", "127.0.0.1:0", "--websocket", "127.0.0.1:0"})
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	re := regexp.MustCompile(`Device: listening on (127\.0\.0\.1:\d+)`)
	var addr string
	require.Eventually(t, func() bool {
		m := re.FindStringSubmatch(stdout.String())
		if m == nil {
			return false
		}
		addr = m[1]

		return true
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, stdout.String(), "ws://127.0.0.1:")

	out, _, err := run(context.Background(), t, "", "--config", writeConfig(t, addr), "get", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "served", out)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.Contains(t, stdout.String(), "Stopped:")
	assert.Contains(t, stdout.String(), "1 opens")
}

func TestReadBody_Idle(t *testing.T) {
	clearEnv(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	hold := make(chan struct{})
	defer close(hold)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		_, _ = conn.Write([]byte("partial"))
		<-hold
	}()

	cfgPath := startDevice(t)

	out, errOut, err := run(context.Background(), t, "", "--config", cfgPath, "tcp", "--idle", "200ms", ln.Addr().String())
	require.NoError(t, err)
	assert.Equal(t, "partial", out)
	assert.Contains(t, errOut, "idle")
}
