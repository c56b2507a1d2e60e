package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/abelbrown/ragdeck/internal/session"
)

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	maxN := fs.Int("max", 0, "Maximum context chunks, 1-20 (default: config)")
	path := fs.String("path", "", "Project to query (default: backend's current)")
	noMeta := fs.Bool("no-meta", false, "Omit project metadata")
	rawJSON := fs.Bool("json", false, "Print the raw response as JSON")
	promptOnly := fs.Bool("prompt", false, "Print only the optimized prompt")
	args := parseArgs(fs, os.Args[1:])
	if len(args) == 0 {
		fatalf("usage: ragctl search <query> [--max n] [--path p] [--no-meta]")
	}

	e := setup()
	defer e.close()

	q := session.Query{
		Text:            strings.Join(args, " "),
		MaxResults:      e.cfg.Search.MaxResults,
		IncludeMetadata: e.cfg.Search.IncludeMetadata && !*noMeta,
		Path:            *path,
	}
	if *maxN != 0 {
		q.MaxResults = *maxN
	}

	res, err := e.sess.Queries.Search(e.ctx, q)
	e.check(err)

	switch {
	case *rawJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.QueryResult); err != nil {
			fatalf("encode: %v", err)
		}
		return
	case *promptOnly:
		fmt.Println(res.OptimizedPrompt)
		return
	}

	fmt.Printf("%s %d chunks, %d tokens %s\n",
		bold("Context:"), res.ContextChunks, res.TokenCount, faint("("+res.Dur.Round(time.Millisecond).String()+")"))
	if m := res.Metadata; m != nil {
		fmt.Printf("%s %s (%d files, %d chunks, %s)\n",
			bold("Project:"), m.QueriedProject, m.IndexedFiles, m.TotalChunks, cyan(m.EmbeddingModel))
	}
	fmt.Println()
	fmt.Println(res.OptimizedPrompt)
}
