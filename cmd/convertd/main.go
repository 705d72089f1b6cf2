package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/castlemill/convertd/internal/adapter"
	"github.com/castlemill/convertd/internal/api"
	"github.com/castlemill/convertd/internal/config"
	"github.com/castlemill/convertd/internal/db"
	"github.com/castlemill/convertd/internal/dispatch"
	"github.com/castlemill/convertd/internal/engine"
	"github.com/castlemill/convertd/internal/prefs"
	"github.com/castlemill/convertd/internal/runner"
	"github.com/castlemill/convertd/internal/store"
	"github.com/castlemill/convertd/internal/watcher"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().
		Int("http_port", cfg.HTTPPort).
		Str("db_path", cfg.DBPath).
		Strs("drop_dirs", cfg.DropDirs).
		Int("max_concurrent", cfg.MaxConcurrent).
		Msg("starting convertd")

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}

	// Engines are bound up front; their heavy initialization stays lazy
	// inside the adapters.
	dispatcher := dispatch.New(
		adapter.NewImage(engine.NewImaging()),
		adapter.NewAudio(engine.NewFFmpeg(cfg.FFmpegPath)),
		adapter.NewDocument(engine.NewPandoc(cfg.PandocPath)),
	)

	var run runner.Runner
	if cfg.InlineExecution {
		run = runner.NewInline(dispatcher)
	} else {
		run = runner.NewGoroutine(dispatcher)
	}

	st := store.New(run,
		store.WithRecorder(db.NewRecorder(database)),
		store.WithMaxConcurrent(cfg.MaxConcurrent),
		store.WithLogger(log.Logger),
		store.WithDefaultSettings(adapter.Options{Mode: adapter.ModeSimple, QualityLevel: cfg.QualityLevel}),
	)

	var prefStore prefs.Store
	if cfg.PrefsBackend == "file" {
		prefStore, err = prefs.NewFileStore(cfg.PrefsDir)
		if err != nil {
			log.Fatal().Err(err).Msg("open prefs dir")
		}
	} else {
		prefStore = prefs.NewDBStore(database)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(cfg.DropDirs) > 0 {
		w, err := watcher.New(st, cfg.DropDirs, time.Duration(cfg.WatchStabilitySecs)*time.Second, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("create watcher")
		}
		defer w.Close()
		go func() {
			if err := w.Start(ctx); err != nil {
				log.Error().Err(err).Msg("watcher stopped")
			}
		}()
	}

	server := api.NewServer(st, prefStore, database)
	go func() {
		if err := http.ListenAndServe(cfg.HTTPAddr(), server.Router); err != nil {
			log.Fatal().Err(err).Msg("http server")
		}
	}()
	log.Info().Str("addr", cfg.HTTPAddr()).Msg("convertd is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")
}
