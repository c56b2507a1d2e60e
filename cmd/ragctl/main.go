// Command ragctl is the scriptable CLI for a RAG indexing backend.
//
// Usage:
//
//	ragctl                          Show help
//	ragctl health                   Backend health summary
//	ragctl projects                 List indexed projects
//	ragctl switch <path>            Make a project current
//	ragctl stats [path]             Project statistics
//	ragctl clear [path] [--all]     Delete a project's index
//	ragctl index <path>             Index a project
//	ragctl reindex <path>           Discard and rebuild a project's index
//	ragctl models                   List embedding models
//	ragctl model <path>             Show a project's model
//	ragctl model change <path> <m>  Change a project's model (confirms first)
//	ragctl search <query>           Build an optimized prompt
//	ragctl history                  Local query and job history
//	ragctl events                   JSONL event log viewer
//	ragctl stub                     Serve an in-memory fake backend
package main

import (
	"fmt"
	"os"
)

const usage = `ragctl - RAG backend CLI

Usage:
  ragctl <command> [flags]

Commands:
  health      Backend health, projects and models at a glance
  projects    List indexed projects
  switch      Make a project current
  stats       Project statistics (default: current project)
  clear       Delete a project's index (--all clears every project)
  index       Index a project (--ext .go,.py --model m)
  reindex     Force a full reindex of a project
  models      List available embedding models
  model       Show a project's model; 'model change <path> <model>' changes it
  search      Build an optimized prompt for a query
  history     Local query and index job history
  events      JSONL event log viewer
  stub        Serve an in-memory fake backend (offline demos)

Environment:
  RAGDECK_API_URL      Backend base URL (default: http://localhost:8000)
  VITE_API_URL         Fallback base URL
  RAGDECK_API_TIMEOUT  Request timeout, seconds or duration (default: 30)
  RAGDECK_MODEL_CHANGE index | model-endpoint (default: index)

Run 'ragctl <command> -h' for command-specific help.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	// Strip the program name + subcommand so flag sets see only their flags
	os.Args = os.Args[1:]

	switch cmd {
	case "health":
		runHealth()
	case "projects", "ls":
		runProjects()
	case "switch":
		runSwitch()
	case "stats":
		runStats()
	case "clear":
		runClear()
	case "index":
		runIndex(false)
	case "reindex":
		runIndex(true)
	case "models":
		runModels()
	case "model":
		runModel()
	case "search", "query":
		runSearch()
	case "history":
		runHistory()
	case "events":
		runEvents()
	case "stub":
		runStub()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "ragctl: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
}
