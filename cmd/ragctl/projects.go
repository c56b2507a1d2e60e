package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/abelbrown/ragdeck/internal/api"
	"github.com/abelbrown/ragdeck/internal/session"
	"golang.org/x/sync/errgroup"
)

func runHealth() {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	parseArgs(fs, os.Args[1:])

	e := setup()
	defer e.close()

	// Independent reads, fetched concurrently.
	var (
		health api.Health
		list   api.ProjectList
		models []string
	)
	g, ctx := errgroup.WithContext(e.ctx)
	g.Go(func() (err error) { health, err = e.client.Health(ctx); return err })
	g.Go(func() (err error) { list, err = e.client.ListProjects(ctx); return err })
	g.Go(func() (err error) { models, err = e.client.Models(ctx); return err })
	e.check(g.Wait())

	fmt.Printf("Backend:          %s\n", e.cfg.API.BaseURL)
	fmt.Printf("Status:           %s\n", green(health.Status))
	fmt.Printf("Version:          %s\n", health.Version)
	fmt.Printf("Vector DB:        %s\n", health.VectorDBStatus)
	fmt.Printf("Projects:         %d\n", list.TotalProjects)
	if list.CurrentProject != "" {
		fmt.Printf("Current:          %s\n", list.CurrentProject)
	}
	fmt.Printf("Models:           %d available\n", len(models))
}

func runProjects() {
	fs := flag.NewFlagSet("projects", flag.ExitOnError)
	parseArgs(fs, os.Args[1:])

	e := setup()
	defer e.close()

	list, err := e.sess.Registry.List(e.ctx)
	e.check(err)

	if len(list.Projects) == 0 {
		fmt.Println(faint("No projects indexed. Run 'ragctl index <path>'."))
		return
	}
	fmt.Println(bold(fmt.Sprintf("  %-20s %7s %8s  %-38s %s", "NAME", "FILES", "CHUNKS", "MODEL", "PATH")))
	for _, p := range list.Projects {
		mark := " "
		if p.Path == list.CurrentProject {
			mark = green("●")
		}
		fmt.Printf("%s %-20s %7d %8d  %-38s %s\n",
			mark, truncate(p.Name, 20), p.IndexedFiles, p.TotalChunks, truncate(p.EmbeddingModel, 38), faint(p.Path))
	}
}

func runSwitch() {
	fs := flag.NewFlagSet("switch", flag.ExitOnError)
	args := parseArgs(fs, os.Args[1:])
	if len(args) != 1 {
		fatalf("usage: ragctl switch <path>")
	}

	e := setup()
	defer e.close()

	resp, err := e.sess.Registry.Select(e.ctx, args[0])
	if err != nil && session.SwitchConfirmed(err) {
		// Switched, but the follow-up list refresh failed.
		fmt.Fprintf(os.Stderr, "%s %s\n", yellow("warning:"), api.Message(err))
		err = nil
	}
	e.check(err)
	fmt.Printf("%s %s\n", green("✓"), resp.Message)
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	args := parseArgs(fs, os.Args[1:])
	path := ""
	if len(args) > 0 {
		path = args[0]
	}

	e := setup()
	defer e.close()

	st, err := e.sess.Registry.Stats(e.ctx, path)
	e.check(err)

	current := ""
	if st.IsCurrent {
		current = green(" (current)")
	}
	fmt.Printf("Project:          %s%s\n", st.ProjectRoot, current)
	fmt.Printf("Indexed files:    %d\n", st.IndexedFiles)
	fmt.Printf("Total chunks:     %d\n", st.TotalChunks)
	fmt.Printf("Vector DB size:   %s\n", st.VectorDBSize)
	fmt.Printf("Embedding model:  %s\n", st.EmbeddingModel)
	if len(st.AllProjects) > 1 {
		fmt.Printf("All projects:     %s\n", strings.Join(st.AllProjects, ", "))
	}
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	all := fs.Bool("all", false, "Clear every project")
	yes := fs.Bool("yes", false, "Skip confirmation")
	args := parseArgs(fs, os.Args[1:])

	if *all == (len(args) == 1) || len(args) > 1 {
		fatalf("usage: ragctl clear <path> | ragctl clear --all")
	}

	e := setup()
	defer e.close()

	target := "every project"
	if !*all {
		target = args[0]
	}
	if !*yes && !confirm(fmt.Sprintf("Delete the index for %s?", bold(target))) {
		fmt.Println(faint("cancelled"))
		return
	}

	var (
		resp api.StatusResponse
		err  error
	)
	if *all {
		resp, err = e.sess.Registry.ClearAll(e.ctx)
	} else {
		resp, err = e.sess.Registry.Clear(e.ctx, args[0])
	}
	e.check(err)
	fmt.Printf("%s %s\n", green("✓"), resp.Message)
}

// confirm asks a y/N question on stdin.
func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
