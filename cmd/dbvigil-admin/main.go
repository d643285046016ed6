package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		cancel()
	}()

	command := os.Args[1]
	switch command {
	case "migrate":
		handleMigrateCommand(ctx)
	case "check-config":
		handleCheckConfig()
	case "test-alerts":
		handleTestAlerts(ctx)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`DBVIGIL Admin Tool

Usage:
  dbvigil-admin <command> [options]

Commands:
  migrate       Manage the archive store schema
  check-config  Load and validate a configuration file
  test-alerts   Send a test alert through every enabled channel
  help          Show this help message

Examples:
  dbvigil-admin migrate up
  dbvigil-admin migrate version
  dbvigil-admin check-config --config /etc/dbvigil/config.toml
  dbvigil-admin test-alerts --config /etc/dbvigil/config.toml
`)
}
