package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/bus"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/config"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/dispatch"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/llm"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/logging"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/memory"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/providers"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/router"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/voice"
)

// app holds the wired assistant for commands that dispatch utterances.
type app struct {
	cfg     *config.Config
	cfgPath string
	log     *logging.Logger

	store      *memory.Store
	settings   *config.Settings
	speaker    *voice.Speaker
	events     *bus.Bus
	router     *router.Router
	dispatcher *dispatch.Dispatcher
	sql        *providers.SQLRunner
	watcher    *config.Watcher
}

// loadConfig reads the config file named by --config (or the default) and
// applies the --db override.
func loadConfig() (*config.Config, string, error) {
	path := cfgPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, "", err
		}
		path = p
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, "", err
	}
	if dbPath != "" {
		cfg.Memory.DBPath = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// openStore opens only the memory store, for commands that never dispatch.
func openStore() (*memory.Store, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return memory.Open(cfg.Memory.DBPath, memory.WithLogger(log))
}

// newApp wires every capability. watch enables config hot reload.
func newApp(ctx context.Context, watch bool) (*app, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, cfgPath: path, log: log}

	a.store, err = memory.Open(cfg.Memory.DBPath, memory.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("open memory: %w", err)
	}

	a.settings = config.NewSettings(cfg)
	if noSpeech {
		a.settings.SetSpeechEnabled(false)
	}

	var gen llm.Generator
	gemini, err := llm.NewGemini(ctx, cfg.LLM)
	if err != nil {
		log.Warn("language model unavailable: %v", err)
		gen = llm.Unavailable{Err: err}
	} else {
		gen = llm.WithRetry(gemini, cfg.LLM.MaxRetries)
	}
	assistant := providers.NewAssistant(gen)

	a.speaker = voice.NewSpeaker(voice.New(cfg.Speech, log), log)
	a.events = bus.NewWithHistory(200)
	a.sql = providers.NewSQLRunner(cfg.MySQL, assistant)

	a.router = router.New(router.Providers{
		Math:     providers.NewMathSolver(assistant),
		Code:     providers.NewCodeGenerator(assistant),
		System:   providers.NewSystemExecutor(),
		Browser:  providers.NewWebBrowser(),
		Database: a.sql,
		Email:    providers.NewMailer(cfg.Email),
		News:     providers.NewNewsFetcher(cfg.News, assistant, log),
		Answerer: assistant,
		Speech:   a.speaker,
		Prefs:    a.store,
	}, router.WithLogger(log))

	a.dispatcher, err = dispatch.New(dispatch.Config{
		Router:         a.router,
		Memory:         a.store,
		Speaker:        a.speaker,
		Analyzer:       providers.NewDocumentReader(assistant),
		Settings:       a.settings,
		Bus:            a.events,
		Logger:         log,
		HistoryLimit:   cfg.Dispatch.HistoryLimit,
		ContextTurns:   cfg.Dispatch.ContextTurns,
		DefaultSession: cfg.Dispatch.DefaultSession,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if watch {
		a.watcher, err = config.WatchSettings(path, a.settings, log)
		if err != nil {
			log.Warn("config hot reload disabled: %v", err)
		}
	}

	log.Info("assistant ready (model=%s, speech=%v, db=%s)", gen.Name(), a.settings.SpeechEnabled(), cfg.Memory.DBPath)
	return a, nil
}

// Close shuts everything down in dependency order.
func (a *app) Close() error {
	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Close())
	}
	if a.dispatcher != nil {
		errs = append(errs, a.dispatcher.Close())
	}
	if a.speaker != nil {
		errs = append(errs, a.speaker.Close())
	}
	if a.sql != nil {
		errs = append(errs, a.sql.Close())
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil && !errors.Is(err, bus.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
