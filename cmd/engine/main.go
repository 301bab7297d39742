package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aquilax/go-perlin"

	"fluxgrid.dev/internal/config"
	"fluxgrid.dev/internal/device"
	"fluxgrid.dev/internal/persistence/indexdb"
	ticklog "fluxgrid.dev/internal/persistence/log"
	"fluxgrid.dev/internal/sim/grid"
	"fluxgrid.dev/internal/spatial"
	"fluxgrid.dev/internal/transport/observer"
)

func main() {
	var (
		cfgPath   = flag.String("config", "", "engine config yaml (optional; defaults apply)")
		addr      = flag.String("addr", "", "http listen address (overrides config)")
		dataDir   = flag.String("data", "", "runtime data directory (overrides config)")
		ticks     = flag.Uint64("ticks", 0, "stop after N ticks (0 = run until signalled)")
		snapPath  = flag.String("snapshot", "", "snapshot to restore at startup (optional)")
		disableDB = flag.Bool("disable_db", false, "disable the snapshot/tick index db")
		noSeed    = flag.Bool("no_seed", false, "skip the initial noise stimulus")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)

	prog, err := device.LookupProgram(device.ProgramID(cfg.Engine.Program), cfg.Engine.Dims)
	if err != nil {
		logger.Fatalf("kernel program: %v", err)
	}
	queue := device.NewPool(prog, device.Options{Workers: cfg.Workers})
	defer queue.Close()

	eng, err := grid.New(cfg.Grid(), queue)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	defer eng.Close()

	var idx *indexdb.Index
	if !*disableDB {
		idx, err = indexdb.Open(filepath.Join(cfg.DataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
	}

	tlog := ticklog.NewTickLogger(cfg.DataDir)
	defer tlog.Close()

	switch {
	case *snapPath != "":
		if err := restoreSnapshot(eng, *snapPath); err != nil {
			logger.Fatalf("restore %s: %v", *snapPath, err)
		}
		logger.Printf("restored snapshot %s at generation %d", *snapPath, eng.Generation())
	case !*noSeed:
		n := seedNoise(eng, cfg)
		logger.Printf("seeded %d cells of %s stimulus", n, cfg.Engine.Program)
	}

	obs := observer.NewServer(eng, cfg.TickRateHz, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observe", obs.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "ok gen=%d\n", eng.Generation())
	})
	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		logger.Printf("observer listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runLoop(ctx, logger, eng, cfg, *ticks, tlog, idx)

	shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutCtx)
}

func runLoop(ctx context.Context, logger *log.Logger, eng *grid.Engine, cfg config.Config,
	maxTicks uint64, tlog *ticklog.TickLogger, idx *indexdb.Index) {

	interval := time.Second / time.Duration(cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Printf("shutting down at generation %d", eng.Generation())
			return
		case <-ticker.C:
		}

		start := time.Now()
		res, err := eng.Step(ctx)
		if err != nil {
			var de *grid.DispatchError
			if errors.As(err, &de) {
				// The grid stands at the last published generation; skip
				// this tick and try again.
				logger.Printf("tick %d: dispatch failed (%d chunks), retrying next tick: %v",
					de.Tick, len(de.Keys), de.Err)
				continue
			}
			logger.Printf("tick aborted: %v", err)
			return
		}

		entry := ticklog.TickEntry{
			Tick:         res.Tick,
			Generation:   res.Generation,
			ActiveChunks: res.ActiveChunks,
			Batches:      res.Batches,
			Chunks:       eng.ChunkCount(),
			DurationUS:   time.Since(start).Microseconds(),
		}
		if err := tlog.Write(entry); err != nil {
			logger.Printf("tick log: %v", err)
		}
		if idx != nil {
			idx.RecordTick(entry)
		}

		if cfg.SnapshotEveryTicks > 0 && res.Tick%uint64(cfg.SnapshotEveryTicks) == 0 {
			writeSnapshot(logger, eng, cfg.DataDir, res, idx)
		}
		if maxTicks > 0 && res.Tick >= maxTicks {
			logger.Printf("reached %d ticks at generation %d", res.Tick, res.Generation)
			return
		}
	}
}

func writeSnapshot(logger *log.Logger, eng *grid.Engine, dataDir string, res grid.StepResult, idx *indexdb.Index) {
	path := filepath.Join(dataDir, "snapshots", fmt.Sprintf("gen-%012d.fgs", res.Generation))
	if err := eng.WriteSnapshotFile(path); err != nil {
		logger.Printf("snapshot write: %v", err)
		return
	}
	logger.Printf("snapshot gen=%d -> %s", res.Generation, path)
	if idx != nil {
		idx.RecordSnapshot(indexdb.SnapshotRow{
			Generation: res.Generation,
			Tick:       res.Tick,
			Path:       path,
			Chunks:     eng.ChunkCount(),
			Digest:     eng.StateDigest(),
		})
	}
}

func restoreSnapshot(eng *grid.Engine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return eng.RestoreSnapshot(f)
}

// seedNoise injects the initial stimulus: perlin noise over a box at the
// domain origin. Returns the number of cells written.
func seedNoise(eng *grid.Engine, cfg config.Config) int {
	p := perlin.NewPerlin(2, 2, int32(cfg.Seed.Octaves), cfg.Seed.Noise)
	extent := cfg.Seed.Extent
	scale := cfg.Seed.Scale
	dims := cfg.Engine.Dims

	n := 0
	write := func(c spatial.Coord, v float64) {
		var cell grid.Cell
		cell[0] = float32(v)
		if eng.Write(c, cell) == nil {
			n++
		}
	}
	if dims == 2 {
		for y := 0; y < extent; y++ {
			for x := 0; x < extent; x++ {
				write(spatial.Coord{X: x, Y: y}, p.Noise2D(float64(x)/scale, float64(y)/scale))
			}
		}
		return n
	}
	for z := 0; z < extent; z++ {
		for y := 0; y < extent; y++ {
			for x := 0; x < extent; x++ {
				write(spatial.Coord{X: x, Y: y, Z: z},
					p.Noise3D(float64(x)/scale, float64(y)/scale, float64(z)/scale))
			}
		}
	}
	return n
}
