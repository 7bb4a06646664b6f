// Package main is the entry point for the selfimprove control-plane daemon.
//
// Usage:
//
//	selfimprove start      — run the orchestrator loop until signalled
//	selfimprove status     — check daemon health over HTTP
//	selfimprove stop       — signal a running daemon to shut down
//	selfimprove version    — print version
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/selfimprove/control-plane/internal/agentmemory"
	"github.com/selfimprove/control-plane/internal/budget"
	"github.com/selfimprove/control-plane/internal/config"
	"github.com/selfimprove/control-plane/internal/deploy"
	"github.com/selfimprove/control-plane/internal/gate"
	"github.com/selfimprove/control-plane/internal/observability"
	"github.com/selfimprove/control-plane/internal/orchestrator"
	"github.com/selfimprove/control-plane/internal/stagedeploy"
	"github.com/selfimprove/control-plane/internal/taskgen"
)

const (
	version = "0.1.0"
	appName = "selfimprove"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		runDaemon()
	case "status":
		runStatus()
	case "stop":
		runStop()
	case "version":
		fmt.Printf("%s v%s\n", appName, version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s v%s — self-improvement control plane daemon

Usage:
  %s start       run the orchestrator loop until signalled
  %s status      check daemon health over HTTP
  %s stop        signal a running daemon to shut down
  %s version     print version
`, appName, version, appName, appName, appName, appName)
}

// daemonConfig is the subset of process-level wiring that does not belong
// in config.Full (it is about where the process runs, not how the
// subsystems it hosts behave).
type daemonConfig struct {
	DataDir    string
	HTTPAddr   string
	ConfigPath string
}

func loadDaemonConfig() daemonConfig {
	dataDir := os.Getenv("SELFIMPROVE_DATA")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("cannot determine home directory: %v", err)
		}
		dataDir = filepath.Join(home, ".selfimprove")
	}
	addr := os.Getenv("SELFIMPROVE_HTTP_ADDR")
	if addr == "" {
		addr = "127.0.0.1:9191"
	}
	configPath := os.Getenv("SELFIMPROVE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join(dataDir, "config.toml")
	}
	return daemonConfig{DataDir: dataDir, HTTPAddr: addr, ConfigPath: configPath}
}

// runDaemon wires every subsystem together and runs the orchestrator loop
// until SIGINT/SIGTERM, following the teacher's signal.Notify →
// context-cancel shutdown shape.
func runDaemon() {
	dcfg := loadDaemonConfig()
	if err := os.MkdirAll(dcfg.DataDir, 0o755); err != nil {
		log.Fatalf("[daemon] cannot create data dir: %v", err)
	}

	pidFile := deploy.NewPIDFile(dcfg.DataDir)
	if err := pidFile.Guard(); err != nil {
		log.Fatalf("[daemon] %v", err)
	}
	defer pidFile.Remove()

	full, err := config.Load(dcfg.ConfigPath)
	if err != nil {
		log.Fatalf("[daemon] config: %v", err)
	}

	logger := observability.NewLogger("orchestrator", nil)
	metrics := observability.NewMetricsCollector(10_000)

	bus := orchestrator.NewTelemetryBus()
	detector := orchestrator.NewThresholdDetector()
	controller := &orchestrator.NoopController{}

	taskGen := taskgen.New(full.TaskGen)

	memBackend, err := agentmemory.NewSQLiteBackend(filepath.Join(dcfg.DataDir, "memory.db"))
	if err != nil {
		log.Fatalf("[daemon] open memory database: %v", err)
	}
	defer memBackend.Close()
	memory := agentmemory.New(full.AgentMemory, memBackend)

	var pipe *stagedeploy.Pipeline
	var runner gate.CheckRunner
	if full.GateEnabled {
		g := gate.New(full.Gate)
		pipe = stagedeploy.New(g)
		pipe.WithAuditLogger(stagedeploy.NewAuditLogger(stagedeploy.NewMemoryAuditStore()))
		pipe.AddTarget(stagedeploy.NewInMemoryParamTarget("orchestrator-params"))
		runner = gate.ShellCheckRunner{}
	}

	var budgetChecker *orchestrator.BudgetCheckCollaborator
	if full.Budget.Enabled {
		tracker := budget.New(full.Budget.DailyLimitUSD, full.Budget.MonthlyLimitUSD)
		budgetChecker = orchestrator.NewBudgetCheckCollaborator(tracker, full.Budget.Backend, full.Budget.DailyLimitUSD)
	}

	orch := orchestrator.New(full.Orchestrator, bus, detector, controller, taskGen, memory, pipe, runner, budgetChecker, logger, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("[daemon] shutting down...")
		cancel()
	}()

	go runHealthServer(ctx, dcfg.HTTPAddr, orch)

	log.Printf("[daemon] %s v%s started, data_dir=%s http_addr=%s", appName, version, dcfg.DataDir, dcfg.HTTPAddr)
	orch.Run(ctx)
	log.Printf("[daemon] shutdown complete")
}

// runHealthServer exposes a minimal /healthz and /status endpoint, mirroring
// the teacher's runStatus daemon-health-check habit.
func runHealthServer(ctx context.Context, addr string, orch *orchestrator.Orchestrator) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.StatusSnapshot())
	})
	mux.HandleFunc("/memory/export", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.MemoryHandle().ExportJSON())
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("[daemon] health server error: %v", err)
	}
}

// runStatus checks if the daemon is running by hitting the health endpoint.
func runStatus() {
	dcfg := loadDaemonConfig()
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/healthz", dcfg.HTTPAddr))
	if err != nil {
		fmt.Printf("daemon is NOT running at %s: %v\n", dcfg.HTTPAddr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		fmt.Printf("daemon is running at %s\n", dcfg.HTTPAddr)
	} else {
		fmt.Printf("daemon returned status %d\n", resp.StatusCode)
		os.Exit(1)
	}
}

// runStop signals a running daemon (found via its PID file) to shut down.
func runStop() {
	dcfg := loadDaemonConfig()
	if err := deploy.StopDaemon(dcfg.DataDir); err != nil {
		log.Fatalf("[stop] %v", err)
	}
	fmt.Println("sent shutdown signal")
}
