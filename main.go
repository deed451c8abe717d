package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mitchellh/go-homedir"

	"github.com/gramvault/gramvault/internal"
	"github.com/gramvault/gramvault/pkg/logger"
)

var log = logger.Get("Main")

// main loads the user configuration, constructs the GramVault core and
// runs it until an interrupt/terminate signal arrives.
func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	verbose := flag.Bool("verbose", false, "enable verbose logging output")
	flag.Parse()

	if *verbose {
		logger.SetMinLoggingLevel(logger.VERBOSE.Level())
	} else {
		logger.SetMinLoggingLevel(logger.INFO.Level())
	}

	config := internal.GramVaultConfig{}
	if err := config.LoadFromFile(*configPath); err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := internal.New(config).Run(ctx); err != nil {
		log.Emit(logger.FATAL, "GramVault exited with error: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "GramVault shut down\n")
}

func defaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return "config.yaml"
	}

	return filepath.Join(home, ".config", "gramvault", "config.yaml")
}
