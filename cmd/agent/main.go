package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/api"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/diag"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/printer"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/queue"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/store"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/tui"
)

// Version is set during build via ldflags
var Version = "dev"

func main() {
	port := getPort()
	dataDir := getDataDir()
	headless := hasFlag("--headless")

	diagLog, err := diag.New(filepath.Join(dataDir, "diagnostics.json"))
	if err != nil {
		log.Fatalf("Failed to open diagnostics log: %v", err)
	}

	labels, err := store.NewFileLabelStore(filepath.Join(dataDir, "labels"))
	if err != nil {
		log.Fatalf("Failed to open label store: %v", err)
	}

	manager, err := printer.NewManager(filepath.Join(dataDir, "printer_settings.json"), printer.Deps{
		Labels: labels,
		Log:    diagLog,
	})
	if err != nil {
		log.Fatalf("Failed to create printer manager: %v", err)
	}
	defer manager.Shutdown()

	q, err := queue.NewManager(context.Background(), queue.NewFileQueueStore(filepath.Join(dataDir, "print_queue.json")), diagLog)
	if err != nil {
		log.Fatalf("Failed to load print queue: %v", err)
	}

	server := api.NewServer(manager, q, diagLog)

	serverErrChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("0.0.0.0:%s", port)
		if err := server.Run(addr); err != nil {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if headless {
		diagLog.Info(fmt.Sprintf("agent %s started headless on port %s", Version, port))
		select {
		case err := <-serverErrChan:
			log.Fatalf("Server error: %v", err)
		case <-sigChan:
			os.Exit(0)
		}
	}

	app := tui.NewApp(manager, q, diagLog, port)

	// Fan progress out to both the dashboard and WebSocket clients
	broadcast := server.BroadcastProgress
	hook := app.ProgressHook()
	q.OnProgress = func(p queue.Progress) {
		broadcast(p)
		hook(p)
	}

	tuiDone := make(chan struct{})
	go func() {
		if err := app.Run(); err != nil {
			log.Printf("TUI error: %v", err)
		}
		close(tuiDone)
	}()

	select {
	case err := <-serverErrChan:
		log.Fatalf("Server error: %v", err)
	case <-sigChan:
		os.Exit(0)
	case <-tuiDone:
		os.Exit(0)
	}
}

func getPort() string {
	if port := os.Getenv("AGENT_PORT"); port != "" {
		return port
	}

	for i, arg := range os.Args {
		if arg == "--port" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
	}

	return "12212"
}

func hasFlag(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}

// getDataDir returns the directory holding settings, the queue, the
// label records and the diagnostics trail. It tries the user config
// directory first and falls back to the working directory.
func getDataDir() string {
	var configDir string
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			configDir = filepath.Join(appData, "label-agent")
		}
	} else {
		if home := os.Getenv("HOME"); home != "" {
			configDir = filepath.Join(home, ".config", "label-agent")
		}
	}

	if configDir != "" {
		if err := os.MkdirAll(configDir, 0755); err == nil {
			return configDir
		}
	}

	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}
