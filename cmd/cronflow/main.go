package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"cronflow/internal/api"
	"cronflow/internal/engine"
	"cronflow/internal/executor"
	"cronflow/internal/store"
)

func main() {
	var (
		addr     = flag.String("addr", ":8080", "HTTP bind address")
		dbPath   = flag.String("db", "cronflow.db", "SQLite DB path (empty disables persistence)")
		execMode = flag.String("executor", "shell", "action executor: shell or simulated")
		debug    = flag.Bool("debug", false, "enable pprof endpoints")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	var st store.Store
	if *dbPath != "" {
		dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", *dbPath)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("open db")
		}
		defer db.Close()
		db.SetMaxOpenConns(1) // SQLite single writer

		if err := store.EnsureSchema(db); err != nil {
			log.Fatal().Err(err).Msg("ensure schema")
		}
		st = store.NewSQLite(db)
	}

	var exec executor.Executor
	switch *execMode {
	case "shell":
		exec = executor.Shell{}
	case "simulated":
		exec = executor.NewSimulated()
	default:
		log.Fatal().Str("executor", *execMode).Msg("unknown executor")
	}

	eng := engine.New(exec, st)
	if err := eng.Restore(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("restore jobs")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go eng.Start(ctx)

	srv := &http.Server{Addr: *addr, Handler: api.NewServerWithDebug(eng, *debug)}
	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
