package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/soundlines/internal/client/api"
	"github.com/iudanet/soundlines/internal/client/auth"
	"github.com/iudanet/soundlines/internal/client/cli"
	"github.com/iudanet/soundlines/internal/client/iocli"
	"github.com/iudanet/soundlines/internal/client/storage/boltdb"
	"github.com/iudanet/soundlines/internal/client/sync"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "http://localhost:8080", "Server URL")
	dbPath := flag.String("db", "soundlines-client.db", "Path to local database")
	secret := flag.String("secret", "", "Device secret (not recommended, use env var or file)")
	secretFile := flag.String("secret-file", "", "Path to file containing device secret")
	verbose := flag.Bool("verbose", false, "Log sync details to stderr")

	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	stdio := iocli.NewStdio()

	// Получаем команду
	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage(stdio)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Ctrl+C прерывает watch и долгие запросы
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Открываем BoltDB storage
	boltStorage, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}

	apiClient := api.NewClient(*serverURL)
	authService := auth.NewAuthService(apiClient, boltStorage)
	syncService := sync.NewService(apiClient, boltStorage, logger)

	c := cli.New(stdio, apiClient, authService, syncService, boltStorage, cli.Secrets{
		FromFile: *secretFile,
		FromArgs: *secret,
	})

	runErr := c.Run(ctx, args)

	if err := boltStorage.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		if errors.Is(runErr, cli.ErrUnknownCommand) {
			cli.PrintUsage(stdio)
		}
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("Soundlines Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
