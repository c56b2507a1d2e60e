package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/abelbrown/ragdeck/internal/session"
)

func runModels() {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	parseArgs(fs, os.Args[1:])

	e := setup()
	defer e.close()

	models, err := e.sess.Models.Available(e.ctx)
	e.check(err)

	fmt.Println(bold(fmt.Sprintf("%-40s %-7s %-7s %-13s %s", "MODEL", "SIZE", "SPEED", "LANGUAGE", "QUALITY")))
	for _, m := range models {
		info, _ := session.LookupModel(m)
		fmt.Printf("%-40s %-7s %-7s %-13s %s\n", m, info.Size, info.Speed, info.Language, info.Quality)
	}
}

// runModel shows a project's model, or with 'change' switches it after
// confirmation.
func runModel() {
	if len(os.Args) > 1 && os.Args[1] == "change" {
		os.Args = os.Args[1:]
		runModelChange()
		return
	}

	fs := flag.NewFlagSet("model", flag.ExitOnError)
	args := parseArgs(fs, os.Args[1:])
	if len(args) != 1 {
		fatalf("usage: ragctl model <path> | ragctl model change <path> <model>")
	}

	e := setup()
	defer e.close()

	m, err := e.sess.Models.Current(e.ctx, args[0])
	e.check(err)
	fmt.Println(m)
}

func runModelChange() {
	fs := flag.NewFlagSet("model change", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Skip confirmation")
	args := parseArgs(fs, os.Args[1:])
	if len(args) != 2 {
		fatalf("usage: ragctl model change <path> <model> [--yes]")
	}
	path, model := args[0], args[1]

	e := setup()
	defer e.close()

	d, err := e.sess.Models.RequestChange(e.ctx, path, model)
	e.check(err)
	if d.Kind == session.NoOp {
		fmt.Printf("%s already uses %s\n", path, cyan(d.CurrentModel))
		return
	}

	fmt.Printf("Project:  %s\n", path)
	fmt.Printf("From:     %s\n", d.CurrentModel)
	fmt.Printf("To:       %s\n", cyan(d.PendingModel))
	if info, ok := session.LookupModel(d.PendingModel); ok {
		fmt.Printf("          %s, %s, %s\n", info.Size, info.Speed, info.Quality)
	}
	fmt.Println(yellow("This discards the index and reindexes the whole project."))
	if !*yes && !confirm("Continue?") {
		fmt.Println(faint("cancelled"))
		return
	}

	pc, err := d.Confirm()
	e.check(err)
	job, err := e.sess.Indexer.ApplyModelChange(e.ctx, pc)
	e.check(err)
	fmt.Printf("%s %s\n", green("✓"), job.Message)
}
