// Command schedsim is the CLI runner: it wires a Platform JSON and a
// Scenario JSON through the engine with the scheduler, allocator,
// DVFS/DPM policy, reclamation policy, and admission test named on the
// command line, then writes a JSON-lines trace (and optionally a
// SQLite trace store and a read-only run API) over the finished run.
//
// Exit codes: 0 success, 1 loader error, 2 invalid configuration,
// 3 runtime assertion failure.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/fillien/schedsim-go/internal/config"
	"github.com/fillien/schedsim-go/internal/factory"
	"github.com/fillien/schedsim-go/internal/runapi"
	"github.com/fillien/schedsim-go/internal/tracedb"
	"github.com/fillien/schedsim-go/pkg/allocator"
	"github.com/fillien/schedsim-go/pkg/engine"
	"github.com/fillien/schedsim-go/pkg/ioformat"
	"github.com/fillien/schedsim-go/pkg/simerr"
	"github.com/fillien/schedsim-go/pkg/units"
)

const (
	exitOK             = 0
	exitLoaderError    = 1
	exitConfigError    = 2
	exitAssertionError = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.ParseFlags(flag.NewFlagSet("schedsim", flag.ContinueOnError), args)
	if err != nil {
		log.Printf("invalid configuration: %v", err)
		return exitConfigError
	}

	runID := uuid.NewString()
	log.Printf("run %s: %s", runID, cfg.String())

	exitCode := exitOK
	func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(*simerr.AssertionError); ok {
					log.Printf("run %s: assertion failed: %v", runID, r)
					exitCode = exitAssertionError
					return
				}
				panic(r)
			}
		}()
		exitCode = doRun(runID, cfg)
	}()
	return exitCode
}

func doRun(runID string, cfg *config.RunConfig) int {
	platformDoc, err := ioformat.ReadPlatformFile(cfg.PlatformPath)
	if err != nil {
		log.Printf("run %s: loading platform: %v", runID, err)
		return exitLoaderError
	}
	scenarioDoc, err := ioformat.ReadScenarioFile(cfg.ScenarioPath)
	if err != nil {
		log.Printf("run %s: loading scenario: %v", runID, err)
		return exitLoaderError
	}

	admission, err := factory.Admission(cfg.Admission)
	if err != nil {
		log.Printf("run %s: %v", runID, err)
		return exitConfigError
	}
	deadlineMiss, err := factory.DeadlineMiss(cfg.DeadlineMiss)
	if err != nil {
		log.Printf("run %s: %v", runID, err)
		return exitConfigError
	}
	newReclamation, err := factory.NewReclamation(cfg.Reclamation)
	if err != nil {
		log.Printf("run %s: %v", runID, err)
		return exitConfigError
	}
	allocPolicy, err := factory.Allocator(cfg.Allocator)
	if err != nil {
		log.Printf("run %s: %v", runID, err)
		return exitConfigError
	}

	var fileSink *ioformat.JSONLinesTrace
	if cfg.TracePath != "" {
		f, err := os.Create(cfg.TracePath)
		if err != nil {
			log.Printf("run %s: opening trace file: %v", runID, err)
			return exitLoaderError
		}
		defer f.Close()
		fileSink = ioformat.NewJSONLinesTrace(f)
		defer fileSink.Close()
	}

	var repo *tracedb.Repository
	var dbSink *tracedb.Sink
	if cfg.DBPath != "" {
		db, err := tracedb.NewDatabase(cfg.DBPath)
		if err != nil {
			log.Printf("run %s: opening trace database: %v", runID, err)
			return exitLoaderError
		}
		defer db.Close()
		repo = tracedb.NewRepository(db)
		if err := repo.CreateRun(&tracedb.Run{
			ID:           runID,
			PlatformPath: cfg.PlatformPath,
			ScenarioPath: cfg.ScenarioPath,
			Scheduler:    cfg.Scheduler,
			Allocator:    cfg.Allocator,
			Policy:       cfg.Policy,
			Admission:    cfg.Admission,
			Reclamation:  cfg.Reclamation,
			DeadlineMiss: cfg.DeadlineMiss,
			Seed:         cfg.Seed,
			Status:       "running",
		}); err != nil {
			log.Printf("run %s: recording run: %v", runID, err)
			return exitLoaderError
		}
		dbSink = tracedb.NewSink(repo, runID)
		defer dbSink.Close()
	}

	var sink engine.Sink
	switch {
	case fileSink != nil && dbSink != nil:
		sink = ioformat.NewFanoutSink(fileSink, dbSink)
	case fileSink != nil:
		sink = fileSink
	case dbSink != nil:
		sink = dbSink
	}

	eng := engine.New(nil, sink)
	platform, clusters, err := ioformat.BuildPlatform(platformDoc, ioformat.BuildOptions{
		Engine:             eng,
		Admission:          admission,
		DeadlineMissPolicy: deadlineMiss,
		NewReclamation:     newReclamation,
	})
	if err != nil {
		log.Printf("run %s: building platform: %v", runID, err)
		return exitLoaderError
	}
	eng.BindPlatform(platform)

	for _, c := range clusters {
		// One policy instance per cluster: the timer-deferred variants
		// carry per-domain pending state.
		dvfsPolicy, err := factory.DVFS(cfg.Policy, units.Duration(cfg.CooldownSeconds))
		if err != nil {
			log.Printf("run %s: %v", runID, err)
			return exitConfigError
		}
		if dvfsPolicy != nil {
			c.Scheduler.SetDVFSPolicy(dvfsPolicy)
		}
	}

	if _, err := allocator.New(eng, platform, ioformat.SchedulerClusters(clusters), allocPolicy); err != nil {
		log.Printf("run %s: installing allocator: %v", runID, err)
		return exitConfigError
	}

	loaded, err := ioformat.LoadTasks(platform, scenarioDoc)
	if err != nil {
		log.Printf("run %s: loading tasks: %v", runID, err)
		return exitLoaderError
	}
	ioformat.PostArrivals(eng, loaded)

	eng.RunUntil(units.TimePoint(cfg.Until))

	eng.Trace(eng.Now(), "sim_finished", func(sk engine.Sink) {
		sk.Field("run_id", runID)
	})

	if repo != nil {
		if err := repo.EndRun(runID, "completed", ""); err != nil {
			log.Printf("run %s: finalizing run record: %v", runID, err)
		}
	}

	log.Printf("run %s: finished at t=%g", runID, float64(eng.Now()))

	if cfg.ServeAddr != "" {
		if repo == nil {
			log.Printf("run %s: --serve requires --db (no trace store to serve)", runID)
			return exitConfigError
		}
		log.Printf("run %s: serving run API on %s", runID, cfg.ServeAddr)
		if err := runapi.NewServer(repo, cfg.ServeAddr).Start(); err != nil {
			log.Printf("run %s: run API exited: %v", runID, err)
			return exitLoaderError
		}
	}

	return exitOK
}
