// Command tiercheck validates every stored item pricing configuration and
// exits non-zero when at least one item would be rejected at pricing time.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/noah-isme/backend-metrature/internal/app"
	"github.com/noah-isme/backend-metrature/internal/config"
	"github.com/noah-isme/backend-metrature/internal/obs"
)

func main() {
	warnOnly := flag.Bool("warnings", true, "print items that only carry warnings")
	timeout := flag.Duration("timeout", time.Minute, "overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	cfg.RunMigrations = false
	logger := obs.NewLogger("console", cfg.Obs.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	deps, err := app.Open(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer func() { _ = deps.Close() }()

	violations, err := deps.Provider.Audit(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("audit item configurations")
	}

	failed := 0
	for _, v := range violations {
		switch {
		case v.Err != nil:
			failed++
			fmt.Printf("ERROR %s\n", v)
		case *warnOnly:
			fmt.Printf("WARN  %s\n", v)
		default:
			continue
		}
		for _, w := range v.Warnings {
			fmt.Printf("      - %s [%s] %s\n", w.Kind, w.Mode, w.Message)
		}
	}
	fmt.Printf("%d item(s) with problems, %d rejected\n", len(violations), failed)
	if failed > 0 {
		os.Exit(1)
	}
}
