package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/grailbio/base/log"

	"peaksandprofiles/internal/cli"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
