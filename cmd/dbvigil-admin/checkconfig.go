package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dbvigil/dbvigil/config"
)

func handleCheckConfig() {
	fs := flag.NewFlagSet("check-config", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	fs.Usage = func() {
		fmt.Println("Usage: dbvigil-admin check-config [--config config.toml]")
		fmt.Println("Loads and validates the configuration file, then prints a summary.")
	}
	fs.Parse(os.Args[2:])

	cfg := config.NewDefaultConfig()
	if err := config.LoadConfigFromFile(*configPath, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: cannot load '%s': %v\n", *configPath, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OK: %s\n\n", *configPath)
	fmt.Printf("Databases:      %d\n", len(cfg.Databases))
	for _, dbCfg := range cfg.Databases {
		readEndpoint := "none"
		if dbCfg.Read != nil {
			readEndpoint = "configured"
		}
		fmt.Printf("  - %s (read replica: %s)\n", dbCfg.Alias, readEndpoint)
	}
	fmt.Printf("Monitoring:     enabled=%t, thresholds=%d\n", cfg.Monitor.Enabled, len(cfg.Monitor.Thresholds))
	fmt.Printf("Recovery:       enabled=%t\n", cfg.Recovery.Enabled)
	fmt.Printf("Performance:    enabled=%t\n", cfg.Performance.Enabled)
	fmt.Printf("Alerting:       enabled=%t (email=%t, webhook=%t, chat=%t)\n",
		cfg.Alerting.Enabled, cfg.Alerting.Email.Enabled,
		cfg.Alerting.Webhook.Enabled, cfg.Alerting.Chat.Enabled)
	fmt.Printf("Archive store:  enabled=%t, path=%s\n", cfg.Store.Enabled, cfg.Store.GetPath())
	fmt.Printf("HTTP API:       start=%t, addr=%s, auth=%t\n",
		cfg.API.Start, cfg.API.GetAddr(), cfg.API.APIKey != "")
}
