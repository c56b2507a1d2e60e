package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/abelbrown/ragdeck/internal/api"
	"github.com/abelbrown/ragdeck/internal/config"
	"github.com/abelbrown/ragdeck/internal/history"
	"github.com/abelbrown/ragdeck/internal/logging"
	"github.com/abelbrown/ragdeck/internal/otel"
	"github.com/abelbrown/ragdeck/internal/session"
	"github.com/charmbracelet/log"
	"github.com/fatih/color"
	"golang.org/x/time/rate"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen, color.Bold).SprintFunc()
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// env is everything a subcommand needs to talk to the backend.
type env struct {
	ctx    context.Context
	stop   context.CancelFunc
	cfg    *config.Config
	client *api.Client
	sess   *session.Session
	obs    *otel.Logger
	hist   *history.Store
}

// loadConfig resolves configuration the same way the TUI does.
func loadConfig() *config.Config {
	if err := config.LoadDotEnv(); err != nil {
		fatalf("load .env: %v", err)
	}
	cfg, _, err := config.LoadDefault()
	if err != nil {
		fatalf("load config: %v", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		fatalf("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("invalid config: %v", err)
	}
	return cfg
}

// setup builds the client and session. Events go to the shared event log
// so 'ragctl events' shows CLI activity next to TUI sessions.
func setup() *env {
	cfg := loadConfig()
	logging.InitWriter(os.Stderr, log.WarnLevel)

	obs := otel.NewNullLogger()
	if p, err := cfg.EventLogPath(); err == nil {
		if l, err := otel.OpenFile(p); err == nil {
			obs = l
		} else {
			logging.Warn("event log disabled", "err", err)
		}
	}

	obs.Info(otel.KindStartup, "ragctl", os.Args[0])

	opts := []api.Option{api.WithTimeout(cfg.Timeout()), api.WithLogger(obs)}
	if cfg.API.RateLimit > 0 {
		opts = append(opts, api.WithRateLimit(rate.Limit(cfg.API.RateLimit), cfg.API.Burst))
	}
	client := api.New(cfg.API.BaseURL, opts...)

	strategy, err := session.ParseModelChangeStrategy(cfg.Models.ChangeStrategy)
	if err != nil {
		fatalf("%v", err)
	}
	sessOpts := []session.Option{session.WithLogger(obs), session.WithModelChangeStrategy(strategy)}

	var hist *history.Store
	if !cfg.Storage.DisableHistory {
		if p, err := cfg.HistoryPath(); err == nil {
			if st, err := history.Open(p); err == nil {
				hist = st
				sessOpts = append(sessOpts, session.WithRecorder(st))
			} else {
				logging.Warn("history disabled", "err", err)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	return &env{
		ctx:    ctx,
		stop:   stop,
		cfg:    cfg,
		client: client,
		sess:   session.New(client, sessOpts...),
		obs:    obs,
		hist:   hist,
	}
}

func (e *env) close() {
	e.sess.Close()
	e.stop()
	if e.hist != nil {
		e.hist.Close()
	}
	e.obs.Close()
}

// check exits with the error's display message. Exit codes: 1 validation,
// 2 server, 3 network.
func (e *env) check(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", red("error:"), api.Message(err))
	code := 1
	switch api.KindOf(err) {
	case api.KindServer:
		code = 2
	case api.KindNetwork:
		code = 3
		fmt.Fprintf(os.Stderr, "  backend: %s\n", e.cfg.API.BaseURL)
	}
	e.close()
	os.Exit(code)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", red("error:"), fmt.Sprintf(format, args...))
	os.Exit(1)
}

// parseArgs parses flags that may appear before or after positional
// arguments and returns the positionals.
func parseArgs(fs *flag.FlagSet, args []string) []string {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			os.Exit(2)
		}
		args = fs.Args()
		if len(args) == 0 {
			return pos
		}
		pos = append(pos, args[0])
		args = args[1:]
	}
}

// splitList turns ".go, .py" into [".go" ".py"].
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func daysToDuration(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
