package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/abelbrown/ragdeck/internal/history"
)

func runHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of rows to show")
	jobs := fs.Bool("jobs", false, "Show index jobs instead of queries")
	path := fs.String("path", "", "Filter jobs by project path")
	prune := fs.Int("prune", 0, "Delete rows older than N days, then exit")
	parseArgs(fs, os.Args[1:])

	cfg := loadConfig()
	dbPath, err := cfg.HistoryPath()
	if err != nil {
		fatalf("%v", err)
	}
	st, err := history.Open(dbPath)
	if err != nil {
		fatalf("open history: %v", err)
	}
	defer st.Close()

	if *prune > 0 {
		n, err := st.Prune(daysToDuration(*prune))
		if err != nil {
			fatalf("prune: %v", err)
		}
		fmt.Printf("%s pruned %d rows\n", green("✓"), n)
		return
	}

	if *jobs {
		printJobs(st, *path, *limit)
		return
	}

	entries, err := st.Queries(*limit)
	if err != nil {
		fatalf("read history: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println(faint("No queries recorded yet."))
		return
	}
	for _, q := range entries {
		status := green("ok ")
		if q.Err != "" {
			status = red("err")
		}
		fmt.Printf("%s %s  %-50s %3d chunks %6d tok  %s\n",
			faint(q.Issued.Local().Format("01-02 15:04:05")), status, truncate(q.Text, 50),
			q.ContextChunks, q.TokenCount, faint(q.Path))
		if q.Err != "" {
			fmt.Printf("    %s\n", red(q.Err))
		}
	}
}

func printJobs(st *history.Store, path string, limit int) {
	entries, err := st.Jobs(path, limit)
	if err != nil {
		fatalf("read history: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println(faint("No index jobs recorded yet."))
		return
	}
	for _, j := range entries {
		status := green(j.Status)
		if j.Status != "succeeded" {
			status = red(j.Status)
		}
		kind := "index"
		switch {
		case j.ModelChange:
			kind = "model"
		case j.Force:
			kind = "reindex"
		}
		fmt.Printf("%s %-9s %-7s %s %s\n",
			faint(j.Started.Local().Format("01-02 15:04:05")), status, kind, j.Path, cyan(j.Model))
		if j.Status != "succeeded" && j.Message != "" {
			fmt.Printf("    %s\n", j.Message)
		}
	}
}
