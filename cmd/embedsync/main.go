// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/poiesic/embedsync"
	"github.com/poiesic/embedsync/config"
	"github.com/poiesic/embedsync/core"
	"github.com/poiesic/embedsync/planner"
	"github.com/poiesic/embedsync/search"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "embedsync",
		Usage: "Keep a vector store of software documentation in sync with its catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "config.yaml",
				EnvVars: []string{"EMBEDSYNC_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs to this file with size-based rotation instead of stderr",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Pull state, refresh the catalog, embed pending artifacts, push state",
				Action: runCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "iterations",
						Usage: "Number of embedding loops (0 uses pipeline.iterations)",
					},
					&cli.IntFlag{
						Name:  "per-loop",
						Usage: "Artifacts embedded per loop (0 uses pipeline.per_loop)",
					},
					&cli.StringFlag{
						Name:  "plan",
						Usage: "Embed the entries of this published plan instead of the pending work",
					},
					&cli.BoolFlag{
						Name:  "sync-state",
						Usage: "With --plan, pull the state store before and push it after",
					},
					&cli.BoolFlag{
						Name:  "skip-discovery",
						Usage: "Do not refresh entities and artifacts before embedding",
					},
				},
			},
			{
				Name:   "refresh",
				Usage:  "Refresh entities and artifacts and push the state store",
				Action: refreshCommand,
			},
			{
				Name:   "plan",
				Usage:  "Reserve pending work and write plan files for worker processes",
				Action: planCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "package-size",
						Usage: "Number of work items per plan file",
						Value: planner.DefaultPackageSize,
					},
					&cli.IntFlag{
						Name:     "packages",
						Usage:    "Number of plan files to create",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "golive",
						Usage: "Push the reservation and upload the plan files",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show state store counts and vector collection size",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pull",
						Usage: "Pull the remote state store first",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Run a similarity query against the vector collection",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   5,
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Drop results below this similarity",
					},
				},
			},
			{
				Name:   "recreate-collection",
				Usage:  "Drop and recreate the vector collection at the model's dimension",
				Action: recreateCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm that every stored vector will be deleted",
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	var out io.Writer = os.Stderr
	if path := c.String("log-file"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(c.String("log-format")) {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", c.String("log-format"))
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// openWorkflow loads the configuration and wires a Workflow. A missing
// configuration file exits with status 1.
func openWorkflow(c *cli.Context) (*embedsync.Workflow, *config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if errors.Is(err, config.ErrConfigNotFound) {
		return nil, nil, cli.Exit(fmt.Sprintf(
			"%s not found. Please copy config_example.yaml to %s and fill in the required settings.", path, path), 1)
	}
	if err != nil {
		return nil, nil, err
	}
	w, err := embedsync.New(cfg, embedsync.WithLogger(slog.Default()))
	if err != nil {
		return nil, nil, err
	}
	return w, cfg, nil
}

func runCommand(c *cli.Context) error {
	w, _, err := openWorkflow(c)
	if err != nil {
		return err
	}
	defer w.Close()

	var result embedsync.RunResult
	if name := c.String("plan"); name != "" {
		result, err = w.RunPlan(c.Context, name, embedsync.PlanRunOptions{SyncState: c.Bool("sync-state")})
		if errors.Is(err, planner.ErrPlanNotFound) {
			return cli.Exit(err.Error(), 1)
		}
	} else {
		result, err = w.Run(c.Context, embedsync.RunOptions{
			Iterations:    c.Int("iterations"),
			PerLoop:       c.Int("per-loop"),
			SkipDiscovery: c.Bool("skip-discovery"),
		})
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "iterations: %d\nprocessed: %d\ncommits: %s\n",
		result.Iterations, result.Processed, strings.Join(result.Commits, ", "))
	printCounts(c.App.Writer, result.Final)
	return nil
}

func refreshCommand(c *cli.Context) error {
	w, _, err := openWorkflow(c)
	if err != nil {
		return err
	}
	defer w.Close()

	result, err := w.Refresh(c.Context)
	if err != nil {
		return err
	}
	printCounts(c.App.Writer, result.Final)
	return nil
}

func planCommand(c *cli.Context) error {
	if c.Int("package-size") < 1 {
		return fmt.Errorf("package-size must be positive")
	}
	if c.Int("packages") < 1 {
		return fmt.Errorf("packages must be positive")
	}

	w, _, err := openWorkflow(c)
	if err != nil {
		return err
	}
	defer w.Close()

	result, err := w.Plan(c.Context, embedsync.PlanOptions{
		PackageSize: c.Int("package-size"),
		Packages:    c.Int("packages"),
		Publish:     c.Bool("golive"),
	})
	if embedsync.IsStateNotFound(err) {
		return cli.Exit(err.Error(), 1)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "pending: %d\nplanned: %d\n", result.Pending, result.Planned)
	for _, f := range result.Files {
		fmt.Fprintln(c.App.Writer, f)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	w, cfg, err := openWorkflow(c)
	if err != nil {
		return err
	}
	defer w.Close()

	report, err := w.Status(c.Context, c.Bool("pull"))
	if err != nil {
		return err
	}

	out := c.App.Writer
	printCounts(out, report.Counts)
	for _, s := range []core.Status{core.StatusOK, core.StatusPlanned, core.StatusFailedTimeout, core.StatusFailedTooLarge} {
		fmt.Fprintf(out, "status %s: %d\n", s, report.Statuses[s])
	}
	fmt.Fprintf(out, "entities with artifacts: %d %v\n", report.EntitiesWithArtifacts, report.Sample)
	if report.PointsErr != nil {
		fmt.Fprintf(out, "collection %s: unavailable (%v)\n", cfg.Qdrant.Collection, report.PointsErr)
	} else {
		fmt.Fprintf(out, "collection %s: %d points\n", cfg.Qdrant.Collection, report.Points)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("a query is required")
	}

	w, _, err := openWorkflow(c)
	if err != nil {
		return err
	}
	defer w.Close()

	results, err := w.Search(c.Context, query, c.Int("limit"), search.WithMinScore(float32(c.Float64("min-score"))))
	if err != nil {
		return err
	}
	for i, r := range results {
		fmt.Fprintf(c.App.Writer, "%d. [%.3f] %v %v\n   %s\n",
			i+1, r.Score, r.Metadata["entity_id"], r.Metadata["artifact_key"], snippet(r.Content, 240))
	}
	return nil
}

func recreateCommand(c *cli.Context) error {
	if !c.Bool("yes") {
		return fmt.Errorf("refusing to drop the collection without --yes")
	}
	w, _, err := openWorkflow(c)
	if err != nil {
		return err
	}
	defer w.Close()

	dim, err := w.RecreateCollection(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "collection recreated with dimension %d\n", dim)
	return nil
}

func printCounts(w io.Writer, counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s: %d\n", name, counts[name])
	}
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
