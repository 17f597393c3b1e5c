// Package main provides the gtfs-import command line tool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/jakesower/gtfs-import/config"
	"github.com/jakesower/gtfs-import/contracts"
	"github.com/jakesower/gtfs-import/internal/arcgis"
	"github.com/jakesower/gtfs-import/internal/archive"
	"github.com/jakesower/gtfs-import/internal/audit"
	"github.com/jakesower/gtfs-import/internal/importer"
	"github.com/jakesower/gtfs-import/internal/ledger"
)

// Exit codes.
const (
	exitOK           = 0
	exitFailed       = 1
	exitUsage        = 2
	exitPrecondition = 3
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitUsage)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runCmd(os.Args[2:]))
	case "failures":
		os.Exit(failuresCmd(os.Args[2:]))
	default:
		printUsage()
		os.Exit(exitUsage)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage:
  gtfs-import run [--config <import.json>] [--env-file <path>] [--archive <feed.zip>] [--log-level info]
  gtfs-import failures --run <run-id> [--ledger-driver sqlite] --ledger <dsn>
`)
}

// runCmd imports one archive and returns the process exit code.
func runCmd(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	file := fs.String("config", "", "Import config JSON file (optional when using environment)")
	envFile := fs.String("env-file", ".env", "dotenv file with credentials")
	archivePath := fs.String("archive", "", "Override the archive path")
	level := fs.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	fs.Parse(args)

	audit.SetLogger(audit.New(hclog.LevelFromString(*level)))

	loader := config.NewLoader()
	loader.EnvFile = *envFile
	if *archivePath != "" {
		os.Setenv(config.EnvArchive, *archivePath)
	}

	var (
		cfg *config.ImportConfig
		err error
	)
	if *file != "" {
		cfg, err = loader.LoadFromFile(*file)
	} else {
		cfg, err = loader.LoadFromEnv()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := arcgis.Connect(ctx, arcgis.Options{
		Host:     cfg.Host,
		Username: cfg.Username,
		Password: cfg.Password,
		Referer:  cfg.Referer,
		Timeout:  cfg.RequestTimeout(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailed
	}

	var store ledger.Store
	if cfg.Ledger != nil {
		store, err = ledger.Open(cfg.Ledger.Driver, cfg.Ledger.DSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFailed
		}
		defer store.Close()
	}

	imp, err := importer.New(importer.Options{
		Client:         client,
		Extractor:      archive.NewZipExtractor(),
		Ledger:         store,
		GroupID:        cfg.GroupID,
		Share:          cfg.SharePolicy(),
		MaxParallelism: cfg.MaxParallelism,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailed
	}

	runID, outcome, err := imp.Import(ctx, cfg.Archive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run_id=%s error: %v\n", runID, err)
		if errors.Is(err, contracts.ErrPrecondition) {
			return exitPrecondition
		}
		return exitFailed
	}
	if !outcome.Success() {
		fmt.Fprintf(os.Stderr, "run_id=%s %v\n", runID, outcome.Err())
		return exitFailed
	}

	fmt.Printf("run_id=%s Everything has been imported successfully.\n", runID)
	return exitOK
}

// failuresCmd lists the files of a run that need a retry.
func failuresCmd(args []string) int {
	fs := flag.NewFlagSet("failures", flag.ExitOnError)
	runID := fs.String("run", "", "Run ID")
	driver := fs.String("ledger-driver", ledger.DriverSQLite, "Ledger driver (sqlite, mysql)")
	dsn := fs.String("ledger", "", "Ledger DSN (sqlite path or mysql dsn)")
	fs.Parse(args)

	if *runID == "" || *dsn == "" {
		fmt.Fprintln(os.Stderr, "error: --run and --ledger are required")
		return exitUsage
	}

	store, err := ledger.Open(*driver, *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailed
	}
	defer store.Close()

	if err := printFailures(context.Background(), os.Stdout, store, contracts.RunID(*runID)); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailed
	}
	return exitOK
}

// printFailures writes the retry list of a run with the failing step and cause of each file.
func printFailures(ctx context.Context, w io.Writer, store ledger.Store, runID contracts.RunID) error {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	files, err := store.FailedFiles(ctx, run.ID)
	if err != nil {
		return err
	}
	chains, err := store.ListChains(ctx, run.ID)
	if err != nil {
		return err
	}
	byFile := make(map[string]ledger.ChainRecord, len(chains))
	for _, c := range chains {
		byFile[c.FileName] = c
	}

	fmt.Fprintf(w, "run_id=%s state=%s archive=%s\n", run.ID, run.State, run.Archive)
	if len(files) == 0 {
		fmt.Fprintln(w, "  no failed files")
	}
	for _, f := range files {
		c := byFile[f]
		fmt.Fprintf(w, "  %s step=%s code=%s: %s\n", f, c.FailedStep, c.ErrorCode, c.Error)
	}
	return nil
}
