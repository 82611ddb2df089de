// Command nxcheck checks NeXus files and compares SRS .dat tables.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/nxcheck/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
