// Command fnio talks to a FujiNet network device over FujiBus.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/arloliu/go-fujibus/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx, os.Args[1:])
	stop()

	if err != nil {
		os.Exit(1)
	}
}
