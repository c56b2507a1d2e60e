package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/abelbrown/ragdeck/internal/session"
)

func runIndex(force bool) {
	name := "index"
	if force {
		name = "reindex"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	ext := fs.String("ext", "", "Comma-separated file extensions (default: backend defaults)")
	model := fs.String("model", "", "Embedding model (must match the project's current model)")
	forceFlag := fs.Bool("force", false, "Discard the existing index first")
	args := parseArgs(fs, os.Args[1:])
	if len(args) != 1 {
		fatalf("usage: ragctl %s <path> [--ext .go,.py] [--model m]", name)
	}

	e := setup()
	defer e.close()

	exts := splitList(*ext)
	if len(exts) == 0 {
		exts = e.cfg.Index.Extensions
	}
	req := session.StartRequest{
		Path:       args[0],
		Extensions: exts,
		Model:      *model,
		Force:      force || *forceFlag,
	}

	job, err := e.sess.Indexer.Start(e.ctx, req)
	e.check(err)

	fmt.Printf("%s %s\n", green("✓"), job.Message)
	if job.Force {
		fmt.Println(faint("  existing index discarded"))
	}
	if st, ok := e.sess.Registry.LastStats(job.Path); ok {
		fmt.Printf("  %d files, %d chunks, model %s\n", st.IndexedFiles, st.TotalChunks, cyan(st.EmbeddingModel))
	}
	fmt.Println(faint(fmt.Sprintf("  job %s in %s", job.ID, job.Duration().Round(time.Millisecond))))
}
