// Command analyze runs the batch energy workflow once: load, preprocess,
// describe, train both models and export the dashboard summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"energyflow/config"
	"energyflow/db"
	"energyflow/eda"
	"energyflow/logging"
	"energyflow/monitoring"
	"energyflow/source"
	"energyflow/workflow"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file path")
	input := flag.String("input", "", "CSV source, overrides source.path")
	noStore := flag.Bool("no_store", false, "skip recording runs in the database")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *input != "" {
		cfg.Source.Path = *input
		cfg.Source.APIURL = ""
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := workflow.Deps{Logger: logger, Metrics: monitoring.NewMetrics()}
	if !*noStore {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			logger.Fatal("Failed to open database", zap.Error(err))
		}
		defer store.Close()
		deps.Store = store
	}
	if deps.Loader, err = source.NewCachedLoader(cfg.Source.CacheSize, source.Options{Charset: cfg.Source.Charset}, logger); err != nil {
		logger.Fatal("Failed to build source loader", zap.Error(err))
	}

	report, err := workflow.Run(ctx, cfg, deps)
	if err != nil {
		logger.Fatal("Workflow failed", zap.Error(err))
	}
	if err := printReport(os.Stdout, report); err != nil {
		logger.Fatal("Failed to print report", zap.Error(err))
	}
}

func printReport(w io.Writer, r *workflow.Report) error {
	fmt.Fprintf(w, "run %s (%s) in %s\n\n", r.RunID, r.Source, r.Elapsed.Round(time.Millisecond))

	fmt.Fprintln(w, "Missing values:")
	names := make([]string, 0, len(r.Missing))
	for name := range r.Missing {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %d\n", name, r.Missing[name])
	}
	fmt.Fprintln(w)

	if err := eda.WriteSummary(w, r.Summary); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nanomalies removed: %d\n", r.Pipeline.AnomaliesRemoved)
	fmt.Fprintf(w, "peak usage hour: %d (mean %.2f)\n", r.PeakHour, r.PeakUsage)

	if r.Regression != nil {
		fmt.Fprintf(w, "\nlinear regression on %s: mse=%.4f (train=%d test=%d)\n",
			r.Regression.Target, r.Regression.MSE, r.Regression.TrainRows, r.Regression.TestRows)
	}
	if r.Classification != nil {
		fmt.Fprintf(w, "\nrandom forest on %s:\n%s\n", r.Classification.Target, r.Classification.Report)
	}
	return nil
}
