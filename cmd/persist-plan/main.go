// Command persist-plan prints the statements generated for a mapping file.
//
//	persist-plan --dialect postgres mapping.yaml
//	persist-plan --dialect mysql --watch mapping.yaml
//	persist-plan --dsn "postgres://localhost/app?sslmode=disable" mapping.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
