package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"NftBridge/internal/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run(args []string) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}

	logger.Init(cfg.LogLevel)

	cfg.AdminKey, err = loadOrGenerateKey(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	node, err := NewNode(cfg)
	if err != nil {
		return fmt.Errorf("create node:\n%w", err)
	}

	printStartupInfo(cfg)

	return node.Run()
}

// printStartupInfo displays node configuration at startup.
func printStartupInfo(cfg *Config) {
	logger.Info("starting bridge node",
		"admin", cfg.adminAddress().String(),
		"http", cfg.HTTPAddress,
		"data", cfg.DataPath,
		"bootstrap", cfg.Bootstrap,
		"fee_collector", cfg.FeeCollector,
	)

	if cfg.Bootstrap {
		logger.Info("genesis configuration", "initial_mint", cfg.InitialMint)
	}
}
