package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "voxelcore.ai/internal/persistence/log"
	"voxelcore.ai/internal/persistence/superchunk"
	"voxelcore.ai/internal/persistence/worldmeta"
	"voxelcore.ai/internal/protocol"
	"voxelcore.ai/internal/sim/catalogs"
	"voxelcore.ai/internal/sim/tuning"
	"voxelcore.ai/internal/sim/world"
	"voxelcore.ai/internal/sim/world/terrain/gen"
	"voxelcore.ai/internal/sim/world/terrain/store"
	"voxelcore.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id (directory under <data>/worlds)")
		seed       = flag.Int64("seed", 0, "world seed for a fresh world (0: use tuning)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (superchunk saves + block edits)")
		outQueue   = flag.Int("out_queue", 1024, "per-session outbound frame queue")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	worldLogger := log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds)
	genLogger := log.New(os.Stdout, "[gen] ", log.LstdFlags|log.Lmicroseconds)
	storeLogger := log.New(os.Stdout, "[superchunk] ", log.LstdFlags|log.Lmicroseconds)
	wsLogger := log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if tune.ProtocolVersion != protocol.Version {
		logger.Fatalf("tuning protocol_version=%d but server speaks %d", tune.ProtocolVersion, protocol.Version)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatalf("world dir: %v", err)
	}

	cfg, err := worldConfig(worldDir, tune, cats, *seed, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	g, err := gen.New(cfg.Generator, gen.Params{Seed: cfg.Seed, SeaLevel: cfg.SeaLevel}, cats)
	if err != nil {
		logger.Fatalf("generator: %v", err)
	}
	pool := world.NewGeneratorPool(g, tune.GeneratorWorkers, genLogger)
	defer pool.Close()

	sc, err := superchunk.NewStore(filepath.Join(worldDir, "superchunks"), tune.SuperchunkCacheMax, storeLogger)
	if err != nil {
		logger.Fatalf("superchunk store: %v", err)
	}

	// Optional read-model index. The world never reads it back.
	idx, err := openRuntimeIndex(worldDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		sc.SetObserver(idx)
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	editLog := persistlog.NewEditLogger(worldDir)
	defer editLog.Close()

	w, err := world.New(cfg, cats, pool, sc, worldLogger)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	edits := multiEditLogger{a: editLog}
	if idx != nil {
		edits.b = idx
	}
	w.SetEditLogger(edits)

	ctx, cancel := signalContext()
	defer cancel()

	pool.Start(ctx)
	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("world stopped: %v", err)
		}
		cancel()
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, *worldID, w.Metrics(), idx)
	})

	if envBool("VC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID  string             `json:"world_id"`
				GameTime uint64             `json:"gametime"`
				Seed     int64              `json:"seed"`
				Metrics  world.WorldMetrics `json:"metrics"`
			}{
				WorldID:  *worldID,
				GameTime: w.CurrentGameTime(),
				Seed:     cfg.Seed,
				Metrics:  w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
	} else {
		logger.Printf("admin endpoints disabled (VC_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("VC_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, ws.ServerConfig{OutQueue: *outQueue}, wsLogger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s seed=%d generator=%s gametime=%d", *addr, *worldID, cfg.Seed, cfg.Generator, cfg.GameTime)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
		cancel()
	}
	<-worldDone
	logger.Printf("stopped at gametime=%d", w.CurrentGameTime())
}

// worldConfig builds the world config from tuning, resuming seed, generator
// and gametime from world.json when the world already exists.
func worldConfig(worldDir string, tune tuning.Tuning, cats *catalogs.BlockCatalog, seedFlag int64, logger *log.Logger) (world.Config, error) {
	cfg := world.Config{
		Seed:             tune.Seed,
		Generator:        tune.Generator,
		SeaLevel:         tune.SeaLevel,
		ViewRadius:       tune.ViewRadius,
		MaxSubscriptions: tune.MaxSubscriptions,
		TickRateHz:       tune.TickRateHz,
		SaveInterval:     tune.SaveInterval(),
		MetaDir:          worldDir,
		RateLimits: world.RateLimitConfig{
			SetBlockPerSec:  tune.RateLimits.SetBlockPerSec,
			SetBlockBurst:   tune.RateLimits.SetBlockBurst,
			SubscribePerSec: tune.RateLimits.SubscribePerSec,
			SubscribeBurst:  tune.RateLimits.SubscribeBurst,
		},
	}
	if seedFlag != 0 {
		cfg.Seed = seedFlag
	}

	meta, err := worldmeta.Load(worldDir)
	switch {
	case err == nil:
		if meta.PaletteDigest != "" && meta.PaletteDigest != cats.PaletteDigest {
			return cfg, fmt.Errorf("block palette changed since last save (world=%s current=%s)", meta.PaletteDigest, cats.PaletteDigest)
		}
		if seedFlag != 0 && seedFlag != meta.Seed {
			logger.Printf("warn: -seed=%d ignored; world.json has seed=%d", seedFlag, meta.Seed)
		}
		cfg.Seed = meta.Seed
		cfg.Generator = meta.Generator
		if meta.SeaLevel != 0 {
			cfg.SeaLevel = meta.SeaLevel
		}
		cfg.GameTime = meta.GameTime
		logger.Printf("resumed world.json saved_at=%s gametime=%d", meta.SavedAt, meta.GameTime)
	case os.IsNotExist(err):
		logger.Printf("fresh world in %s", worldDir)
	default:
		return cfg, fmt.Errorf("world.json: %w", err)
	}
	return cfg, nil
}

func writeMetrics(rw http.ResponseWriter, worldID string, m world.WorldMetrics, idx runtimeIndex) {
	fmt.Fprintf(rw, "# HELP voxelcore_world_gametime Current world gametime.\n")
	fmt.Fprintf(rw, "# TYPE voxelcore_world_gametime gauge\n")
	fmt.Fprintf(rw, "voxelcore_world_gametime{world=%q} %d\n", worldID, m.GameTime)

	fmt.Fprintf(rw, "# HELP voxelcore_world_sessions Connected sessions.\n")
	fmt.Fprintf(rw, "# TYPE voxelcore_world_sessions gauge\n")
	fmt.Fprintf(rw, "voxelcore_world_sessions{world=%q} %d\n", worldID, m.Sessions)

	fmt.Fprintf(rw, "# HELP voxelcore_world_columns Loaded columns by pipeline status.\n")
	fmt.Fprintf(rw, "# TYPE voxelcore_world_columns gauge\n")
	for s := store.StatusRequested; s <= store.StatusMeshed; s++ {
		fmt.Fprintf(rw, "voxelcore_world_columns{world=%q,status=%q} %d\n", worldID, s.String(), m.StatusCount(s))
	}

	fmt.Fprintf(rw, "# HELP voxelcore_world_pending_requests Columns waiting on the generator.\n")
	fmt.Fprintf(rw, "# TYPE voxelcore_world_pending_requests gauge\n")
	fmt.Fprintf(rw, "voxelcore_world_pending_requests{world=%q} %d\n", worldID, m.PendingRequests)

	fmt.Fprintf(rw, "# HELP voxelcore_world_dirty_columns Edited columns not yet written to a superchunk.\n")
	fmt.Fprintf(rw, "# TYPE voxelcore_world_dirty_columns gauge\n")
	fmt.Fprintf(rw, "voxelcore_world_dirty_columns{world=%q} %d\n", worldID, m.DirtyColumns)

	fmt.Fprintf(rw, "# HELP voxelcore_superchunk_regions Cached superchunk regions.\n")
	fmt.Fprintf(rw, "# TYPE voxelcore_superchunk_regions gauge\n")
	fmt.Fprintf(rw, "voxelcore_superchunk_regions{world=%q,state=%q} %d\n", worldID, "cached", m.CachedRegions)
	fmt.Fprintf(rw, "voxelcore_superchunk_regions{world=%q,state=%q} %d\n", worldID, "dirty", m.DirtyRegions)

	fmt.Fprintf(rw, "# HELP voxelcore_world_events_total World loop counters.\n")
	fmt.Fprintf(rw, "# TYPE voxelcore_world_events_total counter\n")
	for _, c := range []struct {
		name string
		v    uint64
	}{
		{"generated", m.GeneratedTotal},
		{"loaded", m.LoadedTotal},
		{"discarded", m.DiscardedTotal},
		{"gen_error", m.GenErrorTotal},
		{"propagated", m.PropagatedTotal},
		{"edit", m.EditTotal},
		{"edit_dropped", m.EditDroppedTotal},
		{"kick", m.KickTotal},
	} {
		fmt.Fprintf(rw, "voxelcore_world_events_total{world=%q,event=%q} %d\n", worldID, c.name, c.v)
	}

	fmt.Fprintf(rw, "# HELP voxelcore_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE voxelcore_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "voxelcore_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "voxelcore_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "voxelcore_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP voxelcore_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE voxelcore_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "voxelcore_index_queue_depth{world=%q} %d\n", worldID, s.QueueDepth)
	fmt.Fprintf(rw, "# HELP voxelcore_index_dropped_total Index rows dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE voxelcore_index_dropped_total counter\n")
	fmt.Fprintf(rw, "voxelcore_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "edit", s.DropEditTotal)
	fmt.Fprintf(rw, "voxelcore_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "superchunk", s.DropSuperchunkTotal)
	fmt.Fprintf(rw, "# HELP voxelcore_index_write_errors_total Failed index writes.\n")
	fmt.Fprintf(rw, "# TYPE voxelcore_index_write_errors_total counter\n")
	fmt.Fprintf(rw, "voxelcore_index_write_errors_total{world=%q} %d\n", worldID, s.WriteErrorTotal)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

type multiEditLogger struct {
	a world.EditLogger
	b world.EditLogger
}

func (m multiEditLogger) WriteEdit(entry world.EditEntry) error {
	var errs []error
	if m.a != nil {
		errs = append(errs, m.a.WriteEdit(entry))
	}
	if m.b != nil {
		errs = append(errs, m.b.WriteEdit(entry))
	}
	return errors.Join(errs...)
}
