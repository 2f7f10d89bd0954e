package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/jawher/mow.cli"
	"go.uber.org/zap"

	"pricewatch/config"
	"pricewatch/logger"
	"pricewatch/storage"
)

func main() {
	app := cli.App("pricewatch", "Track product prices and get an email when one hits a new low")

	var (
		configFile = app.StringOpt("c config", "", "path to a yaml config file (default ./configs/config.yaml if present)")
		envFile    = app.StringOpt("e env-file", "", "dotenv file exported before reading the config (default ./.env if present)")
	)
	opts := func() config.Options {
		return config.Options{File: *configFile, EnvFile: *envFile}
	}

	app.Command("run", "collect prices every interval until interrupted", func(cmd *cli.Cmd) {
		cmd.Action = func() { exitOn(runCmd(opts())) }
	})
	app.Command("once", "collect prices once and print a summary", func(cmd *cli.Cmd) {
		cmd.Action = func() { exitOn(onceCmd(opts())) }
	})
	app.Command("history", "print the recorded prices of one product", func(cmd *cli.Cmd) {
		name := cmd.StringArg("NAME", "", "product name or table name")
		cmd.Action = func() { exitOn(historyCmd(opts(), *name)) }
	})
	app.Command("tables", "list the tracked product tables", func(cmd *cli.Cmd) {
		cmd.Action = func() { exitOn(tablesCmd(opts())) }
	})
	app.Command("reset-seq", "rewind the id sequence of one product table", func(cmd *cli.Cmd) {
		name := cmd.StringArg("NAME", "", "product name or table name")
		cmd.Action = func() { exitOn(resetSeqCmd(opts(), *name)) }
	})

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// errAllFailed makes `once` exit non-zero without printing anything extra.
var errAllFailed = errors.New("every product failed")

func exitOn(err error) {
	if err == nil {
		return
	}
	if !errors.Is(err, errAllFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	cli.Exit(1)
}

func runCmd(opts config.Options) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.Close()

	tr, m, err := e.tracker()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if e.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv = &http.Server{Addr: e.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			e.log.Info("metrics server listening", zap.String("addr", e.cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.log.Error("metrics server failed", zap.Error(err))
				stop()
			}
		}()
	}

	err = tr.Run(ctx, e.cfg.Interval)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			e.log.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	e.log.Info("pricewatch stopped")
	return err
}

func onceCmd(opts config.Options) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.Close()

	tr, _, err := e.tracker()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := tr.RunOnce(ctx)
	if report != nil {
		printReport(os.Stdout, report)
	}
	if err != nil {
		return err
	}
	if report.AllFailed() {
		return errAllFailed
	}
	return nil
}

func historyCmd(opts config.Options, name string) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.Close()

	table := storage.SanitizeTableName(name)
	history, err := e.store.History(context.Background(), table)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Printf("no observations for %q\n", table)
		return nil
	}
	printHistory(os.Stdout, history)
	return nil
}

func tablesCmd(opts config.Options) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.Close()

	tables, err := e.store.Tables(context.Background())
	if err != nil {
		return err
	}
	for _, t := range tables {
		fmt.Println(t)
	}
	return nil
}

func resetSeqCmd(opts config.Options, name string) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.Close()

	table := storage.SanitizeTableName(name)
	if err := e.store.ResetSequence(context.Background(), table); err != nil {
		return err
	}
	e.log.Info("sequence reset", zap.String("table", table))
	return nil
}

// env is what every command needs: config, logger and an open store.
type env struct {
	cfg   *config.Config
	log   *zap.Logger
	store *storage.SQLite
}

func setup(opts config.Options) (*env, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	l, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("set up logger: %w", err)
	}
	log := l.Logger
	log.Debug("config loaded",
		zap.String("db_path", cfg.DBPath),
		zap.Int("products", len(cfg.Products)),
		zap.Bool("alerts", cfg.AlertsEnabled()),
	)

	if err := ensureDir(cfg.DBPath); err != nil {
		return nil, err
	}
	store, err := storage.NewSQLite(cfg.DBPath, log)
	if err != nil {
		logger.Flush(log)
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &env{cfg: cfg, log: log, store: store}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.log.Warn("close store", zap.Error(err))
	}
	logger.Flush(e.log)
}
