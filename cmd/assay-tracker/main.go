package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/assaylab-ai/assay/internal/report"
	"github.com/assaylab-ai/assay/internal/server"
	"github.com/assaylab-ai/assay/internal/store"
)

const version = "0.2.0"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("assay-tracker %s\n", version)
			os.Exit(0)
		case "serve":
			os.Exit(runServe())
		case "report":
			os.Exit(runReport(os.Args[2:]))
		default:
			usage()
			os.Exit(1)
		}
	}
	os.Exit(runServe())
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: assay-tracker <command>")
	fmt.Fprintln(os.Stderr, "Commands: serve (default), report <trace-id>, version")
}

// runServe speaks NDJSON JSON-RPC over stdio until the client shuts the
// session down or stdin closes.
func runServe() int {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := openDatabase()
	if err != nil {
		logger.Error("failed to open database", "err", err)
		return 1
	}
	defer db.Close()

	st, err := store.New(db)
	if err != nil {
		logger.Error("failed to initialize store", "err", err)
		return 1
	}

	srv := server.NewWithConcurrency(os.Stdin, os.Stdout, logger,
		server.EnvInt("ASSAY_MAX_CONCURRENT", 1))
	if err := server.RegisterBuiltinHandlers(srv, st); err != nil {
		logger.Error("failed to register handlers", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server exited with error", "err", err)
		return 1
	}
	return 0
}

// runReport prints a Markdown assessment summary for one trace.
func runReport(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: assay-tracker report <trace-id>")
		return 1
	}
	traceID := args[0]

	db, err := openDatabase()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	st, err := store.New(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize store: %v\n", err)
		return 1
	}

	assessments, err := st.ListAssessments(traceID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load assessments: %v\n", err)
		return 1
	}

	md := &report.MarkdownReport{
		RunAt:       time.Now(),
		TraceID:     traceID,
		Assessments: assessments,
	}
	if err := report.GenerateMarkdown(os.Stdout, md); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
		return 1
	}
	return 0
}

func openDatabase() (*sql.DB, error) {
	path := databasePath()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return sql.Open("sqlite", path)
}

// databasePath returns the database path from env or default.
func databasePath() string {
	if path := os.Getenv("ASSAY_DB_PATH"); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".assay", "assay.db")
}
