package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/graymamba/internal/audit"
	"github.com/marmos91/graymamba/internal/logger"
	"github.com/marmos91/graymamba/internal/mountproc"
	"github.com/marmos91/graymamba/internal/namespace"
	"github.com/marmos91/graymamba/internal/nfsproc"
	"github.com/marmos91/graymamba/internal/portmap"
	"github.com/marmos91/graymamba/internal/server"
	"github.com/marmos91/graymamba/internal/store"
	"github.com/marmos91/graymamba/internal/store/badger"
	"github.com/marmos91/graymamba/internal/store/redisstore"
	"github.com/marmos91/graymamba/internal/telemetry"
	"github.com/marmos91/graymamba/internal/vfs"
	"github.com/marmos91/graymamba/pkg/config"
	"github.com/marmos91/graymamba/pkg/metrics"
	promMetrics "github.com/marmos91/graymamba/pkg/metrics/prometheus"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `graymamba - NFSv3 gateway over a pluggable, erasure-coded backing store

Usage:
  graymamba <command> [flags]

Commands:
  init     Write a sample configuration file
  start    Start the NFSv3/MOUNT/PORTMAP server
  logs     Tail server logs (requires logging.output to be a file path)
  version  Show version information

Flags:
  --config string    Path to config file (default: $XDG_CONFIG_HOME/graymamba/config.yaml)
  --force            Force overwrite existing config file (init command only)

Environment Variables:
  All configuration options can be overridden using environment variables.
  Format: GRAYMAMBA_<SECTION>_<KEY> (use underscores for nested keys)

  Examples:
    GRAYMAMBA_LOGGING_LEVEL=DEBUG
    GRAYMAMBA_SERVER_NFS_ADDR=:3049
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit()
	case "start":
		runStart()
	case "logs":
		runLogs()
	case "help", "--help", "-h":
		fmt.Print(usage)
		os.Exit(0)
	case "version", "--version", "-v":
		fmt.Printf("graymamba %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runInit() {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := initFlags.String("config", "", "Path to config file")
	force := initFlags.Bool("force", false, "Force overwrite existing config file")
	if err := initFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	path := *configFile
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	if !*force {
		if _, err := os.Stat(path); err == nil {
			log.Fatalf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), path); err != nil {
		log.Fatalf("failed to write config: %v", err)
	}
	fmt.Printf("configuration file created at: %s\n", path)
	fmt.Println("edit it, then start the server with: graymamba start")
}

func runStart() {
	startFlags := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := startFlags.String("config", "", "Path to config file")
	if err := startFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	cfg, err := config.MustLoad(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	loggerCfg := logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}
	if err := logger.Init(loggerCfg); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "graymamba",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "graymamba",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		log.Fatalf("failed to initialize profiling: %v", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	}
	nfsMetrics := promMetrics.NewNFSMetrics()

	st, err := openStore(cfg.Store)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	scope := namespace.Scope{Community: cfg.Namespace.Community, NamespaceID: cfg.Namespace.NamespaceID}

	vfsCfg := vfs.DefaultConfig()
	vfsCfg.LargeSequentialMarkers = cfg.Server.LargeSequentialMarkers
	vfsCfg.WriteIdleTimeout = cfg.Coalescer.IdleTimeout
	vfsCfg.CommitParallelism = cfg.Coalescer.CommitParallelism
	vfsCfg.CodecParams.Required = cfg.Codec.Required
	vfsCfg.CodecParams.Total = cfg.Codec.Total

	pipeline := audit.NewPipeline(cfg.Audit.WindowSize, func(commit audit.WindowCommit) {
		logger.Info("audit window committed",
			"window_id", commit.WindowID,
			"root", fmt.Sprintf("%x", commit.Root))
	})
	go pipeline.Run(ctx)
	defer pipeline.Wait()

	v := vfs.New(st, scope, vfsCfg, pipeline)
	defer v.Shutdown()

	nfsHandler := nfsproc.NewHandler(v)
	nfsHandler.SetMetrics(nfsMetrics)
	mountHandler := mountproc.NewHandler(v)

	srv := server.New(server.Config{Addr: cfg.Server.NFSAddr}, nfsHandler, mountHandler)

	nfsPort := portFrom(cfg.Server.NFSAddr)
	registry := portmap.NewRegistry(nfsPort, nfsPort)
	portmapSrv := portmap.NewServer(registry)

	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.Serve(ctx) }()

	portmapDone := make(chan error, 1)
	go func() { portmapDone <- portmapSrv.Serve(ctx, cfg.Server.PortmapAddr) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("graymamba is running", "nfs_addr", cfg.Server.NFSAddr, "portmap_addr", cfg.Server.PortmapAddr)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		<-portmapDone
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("graymamba stopped")
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "redis":
		return redisstore.New(redisstore.Config{
			Addrs:       cfg.Redis.Addrs,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			ClusterMode: cfg.Redis.ClusterMode,
		})
	case "badger":
		return badger.Open(cfg.Badger.Dir)
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Backend)
	}
}

// portFrom extracts the numeric port the combined NFS/MOUNT listener
// binds to, for PORTMAP's GETPORT replies.
func portFrom(addr string) uint32 {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			var port uint32
			fmt.Sscanf(addr[i+1:], "%d", &port)
			return port
		}
	}
	return 0
}
