// Command plan runs a single capacity-planning scenario from a file and
// prints the best plan found.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/copyleftdev/gridplan/internal/logging"
	"github.com/copyleftdev/gridplan/internal/runner"
	"github.com/copyleftdev/gridplan/internal/scenario"
	"github.com/copyleftdev/gridplan/internal/storage"
)

func main() {
	var (
		file       = flag.String("f", "", "scenario file (YAML or JSON)")
		iterations = flag.Int("iterations", -1, "override master.iterations")
		seed       = flag.Int64("seed", 0, "override algorithm.seed")
		popSize    = flag.Int("pop_size", 0, "override algorithm.pop_size")
		processes  = flag.Int("processes", -1, "worker processes for fitness evaluation, 0 scores in-process")
		output     = flag.String("output", "", "sqlite database to record the run in")
		logLevel   = flag.String("log-level", "info", "log level (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "text", "log format (json, text)")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: plan -f scenario.yaml [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  *logLevel,
		Format: *logFormat,
		Output: "stderr",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	zlog := logging.NewZapLogger(logger.WithFields(map[string]interface{}{"service": "gridplan-cli"}))
	defer func() { _ = zlog.Sync() }()

	sc, err := scenario.LoadFile(*file, scenario.WithLogger(zlog))
	if err != nil {
		logger.Fatal("Failed to load scenario", map[string]interface{}{"file": *file, "error": err.Error()})
	}
	if *iterations >= 0 {
		sc.Master.Iterations = *iterations
	}
	if *seed != 0 {
		sc.Algorithm.Seed = *seed
	}
	if *popSize > 0 {
		sc.Algorithm.PopSize = *popSize
	}
	if *processes >= 0 {
		sc.Algorithm.Processes = *processes
	}

	plan, err := sc.Build()
	if err != nil {
		logger.Fatal("Failed to build scenario", map[string]interface{}{"file": *file, "error": err.Error()})
	}

	kind, dsn := "memory", ""
	if *output != "" {
		kind, dsn = "sqlite", "file:"+*output
	}
	store, err := storage.NewStore(kind, dsn)
	if err != nil {
		logger.Fatal("Failed to create store", map[string]interface{}{"error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Init(ctx); err != nil {
		logger.Fatal("Failed to initialize store", map[string]interface{}{"error": err.Error()})
	}
	defer store.Close()

	r := runner.New(store, runner.WithLogger(zlog))
	run, err := r.Execute(ctx, r.NewRun(plan.Name), plan)
	if err != nil {
		logger.Error("Run did not complete", map[string]interface{}{
			"run_id": run.ID,
			"status": string(run.Status),
			"error":  err.Error(),
		})
		store.Close()
		os.Exit(1)
	}

	res := run.Result
	fmt.Printf("run:        %s\n", run.ID)
	fmt.Printf("seed:       %d\n", run.Seed)
	fmt.Printf("best score: %g\n", res.Best.Score)
	fmt.Printf("best gene:  %v\n", res.Best.Values)
	if res.Breakdown != nil {
		fmt.Print(res.Breakdown.Summary())
	}
}
