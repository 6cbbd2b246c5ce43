package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lintfix/lintfix/internal/config"
	"github.com/lintfix/lintfix/internal/storage"
)

// mustOpenStore opens the suggestion store or exits. Subcommands that only
// read or manage stored records have nothing to do without one.
func mustOpenStore(ctx context.Context, cfg *config.Config) storage.Store {
	store, err := storage.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return store
}
