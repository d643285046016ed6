package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/alerting"
)

func handleTestAlerts(ctx context.Context) {
	fs := flag.NewFlagSet("test-alerts", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	fs.Usage = func() {
		fmt.Println("Usage: dbvigil-admin test-alerts [--config config.toml]")
		fmt.Println("Sends a synthetic info alert through every enabled channel.")
	}
	fs.Parse(os.Args[2:])

	cfg := config.NewDefaultConfig()
	if err := config.LoadConfigFromFile(*configPath, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: cannot load '%s': %v\n", *configPath, err)
		os.Exit(1)
	}
	if _, err := logger.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Warning initializing logger: %v\n", err)
	}

	dispatcher := alerting.NewDispatcher(cfg.Alerting)
	results := dispatcher.TestChannels(ctx)
	if len(results) == 0 {
		fmt.Println("No enabled alert channels configured.")
		return
	}

	failed := false
	for _, result := range results {
		if result.OK {
			fmt.Printf("  %-10s OK\n", result.Channel)
		} else {
			fmt.Printf("  %-10s FAILED: %s\n", result.Channel, result.Error)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
