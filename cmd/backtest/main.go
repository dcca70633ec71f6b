package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	pyroscope "github.com/grafana/pyroscope-go"

	"backtest/internal/engine"
	"backtest/internal/ops"
)

type emptyLogger struct{}

func (emptyLogger) Infof(string, ...interface{})  {}
func (emptyLogger) Debugf(string, ...interface{}) {}
func (emptyLogger) Errorf(string, ...interface{}) {}

func main() {
	configPath := flag.String("config", "", "Path to run configuration (yaml/json/toml)")
	journalPath := flag.String("journal", "", "Journal output path (overrides config)")
	snapshotPath := flag.String("snapshot", "", "Snapshot output path (overrides config)")
	verifySnapshot := flag.String("verify-snapshot", "", "Compare the run outcome against a previous snapshot")
	profileAddr := flag.String("profile-addr", "", "Pyroscope server address (empty=disabled)")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("missing -config")
	}

	if *profileAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "backtest",
			ServerAddress:   *profileAddr,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *journalPath, *snapshotPath, *verifySnapshot); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}

func run(ctx context.Context, configPath, journalPath, snapshotPath, verifySnapshot string) error {
	cfg, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	if journalPath != "" {
		cfg.Journal = journalPath
	}
	if snapshotPath != "" {
		cfg.Snapshot = snapshotPath
	}

	loaded, err := ops.Build(cfg)
	if err != nil {
		return err
	}

	report, err := loaded.Engine.Run(ctx, loaded.Strategies...)
	if err != nil {
		return err
	}
	log.Printf("run %s: state=%s iterations=%d fingerprint=%08x fills=%d",
		report.RunID, report.State, report.Iterations, report.Fingerprint, report.Metrics.Fills)
	for venue, balances := range report.Balances {
		for _, m := range balances {
			log.Printf("balance %s: %s", venue, m)
		}
	}

	snap := loaded.Engine.Snapshot(report)
	if loaded.SnapshotPath != "" {
		if err := engine.WriteSnapshot(loaded.SnapshotPath, snap); err != nil {
			return err
		}
		log.Printf("snapshot written: %s", loaded.SnapshotPath)
	}
	if verifySnapshot != "" {
		expected, err := engine.ReadSnapshot(verifySnapshot)
		if err != nil {
			return err
		}
		if err := engine.CompareSnapshots(expected, snap); err != nil {
			return err
		}
		log.Printf("snapshot verified: %s", verifySnapshot)
	}
	return nil
}
