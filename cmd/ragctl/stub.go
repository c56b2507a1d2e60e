package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/abelbrown/ragdeck/internal/backendtest"
)

// runStub serves the in-memory backend so ragdeck can run without a real
// RAG server.
func runStub() {
	fs := flag.NewFlagSet("stub", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8000", "Listen address")
	seed := fs.Bool("seed", false, "Start with two sample projects")
	quiet := fs.Bool("quiet", false, "Do not log requests")
	parseArgs(fs, os.Args[1:])

	b := backendtest.New()
	if *seed {
		b.AddProject("/srv/demo/api", backendtest.DefaultModel, 42, 310)
		b.AddProject("/srv/demo/web", backendtest.DefaultModel, 17, 96)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           b.Handler(!*quiet),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("%s stub backend on http://%s\n", green("●"), *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatalf("serve: %v", err)
	}
}
