package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	cmd := NewRootCmd()
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var failed runFailedError
		if !errors.As(err, &failed) {
			fmt.Fprintf(os.Stderr, "codetango: %v\n", err)
		}
		os.Exit(1)
	}
}
