// Command ragdeck is the terminal front-end for a RAG indexing backend.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/abelbrown/ragdeck/internal/api"
	"github.com/abelbrown/ragdeck/internal/config"
	"github.com/abelbrown/ragdeck/internal/history"
	"github.com/abelbrown/ragdeck/internal/logging"
	"github.com/abelbrown/ragdeck/internal/otel"
	"github.com/abelbrown/ragdeck/internal/session"
	"github.com/abelbrown/ragdeck/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"
)

const version = "0.1.0"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, cfgPath, err := config.LoadDefault()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config %s: %v", cfgPath, err)
	}
	if cfg.UI.Trace {
		otel.EnableTrace()
	}

	dataDir, err := cfg.Dir()
	if err != nil {
		log.Fatalf("Failed to resolve data directory: %v", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	logDir, _ := cfg.LogDir()
	if err := logging.Init(logDir, version); err != nil {
		log.Printf("Warning: file logging disabled: %v", err)
	}
	defer logging.Close()

	// Event log + ring buffer for the debug overlay
	evPath, _ := cfg.EventLogPath()
	obsLog, err := otel.OpenFile(evPath)
	if err != nil {
		logging.Warn("event log disabled", "path", evPath, "err", err)
		obsLog = otel.NewNullLogger()
	}
	ring := otel.NewRingBuffer(cfg.UI.RingSize)
	obsLog.SetRingBuffer(ring)
	defer obsLog.Close()

	obsLog.Emit(otel.Event{
		Level: otel.LevelInfo,
		Kind:  otel.KindStartup,
		Comp:  "main",
		Msg:   version,
		Extra: map[string]any{"api": cfg.API.BaseURL, "config": cfgPath},
	})
	logging.Info("event session", "id", obsLog.SessionID(), "events", evPath)
	logging.Info("config loaded", "path", cfgPath, "api", cfg.API.BaseURL, "strategy", cfg.Models.ChangeStrategy)

	clientOpts := []api.Option{api.WithTimeout(cfg.Timeout()), api.WithLogger(obsLog)}
	if cfg.API.RateLimit > 0 {
		clientOpts = append(clientOpts, api.WithRateLimit(rate.Limit(cfg.API.RateLimit), cfg.API.Burst))
	}
	client := api.New(cfg.API.BaseURL, clientOpts...)

	strategy, err := session.ParseModelChangeStrategy(cfg.Models.ChangeStrategy)
	if err != nil {
		log.Fatalf("Invalid model change strategy: %v", err)
	}

	var (
		sess    *session.Session
		program *tea.Program
	)
	opts := []session.Option{
		session.WithLogger(obsLog),
		session.WithModelChangeStrategy(strategy),
		session.OnJobSettled(func(j session.Job) {
			if program != nil {
				program.Send(settledMsg(sess, j))
			}
		}),
	}

	if !cfg.Storage.DisableHistory {
		if st := openHistory(cfg, obsLog); st != nil {
			defer st.Close()
			opts = append(opts, session.WithRecorder(st))
		}
	}

	sess = session.New(client, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	cmds := commands{ctx: ctx, sess: sess, client: client, extensions: cfg.Index.Extensions}

	appCfg := cmds.appConfig()
	appCfg.MaxResults = cfg.Search.MaxResults
	appCfg.IncludeMetadata = cfg.Search.IncludeMetadata
	appCfg.Obs = ui.ObsConfig{Ring: ring, Logger: obsLog}

	program = tea.NewProgram(ui.NewApp(appCfg), tea.WithAltScreen())

	// Run UI (blocks until quit)
	if _, err := program.Run(); err != nil {
		logging.Error("program exited", "err", err)
		obsLog.Error(otel.KindError, "main", err)
		log.Printf("Error running program: %v", err)
	}

	// Graceful shutdown: cancel in-flight requests, then wait for refreshes.
	cancel()
	sess.Close()
	obsLog.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindShutdown, Comp: "main", Count: int(obsLog.Dropped())})
}

// openHistory opens and prunes the history database. Failures disable
// history rather than the app.
func openHistory(cfg *config.Config, obs *otel.Logger) *history.Store {
	path, err := cfg.HistoryPath()
	if err != nil {
		logging.Warn("history disabled", "err", err)
		return nil
	}
	st, err := history.Open(path)
	if err != nil {
		logging.Warn("history disabled", "path", path, "err", err)
		obs.Warn(otel.KindStoreError, "history", "disabled: "+err.Error())
		return nil
	}
	if cfg.Storage.HistoryDays > 0 {
		n, err := st.Prune(time.Duration(cfg.Storage.HistoryDays) * 24 * time.Hour)
		if err != nil {
			logging.Warn("history prune failed", "err", err)
		} else if n > 0 {
			logging.Debug("history pruned", "rows", n)
		}
	}
	return st
}
