package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/Fooderapp/WheelerHost-V1/pkg/config"
	"github.com/Fooderapp/WheelerHost-V1/pkg/logging"
	"github.com/Fooderapp/WheelerHost-V1/pkg/sessionloop"
	"github.com/Fooderapp/WheelerHost-V1/pkg/udpendpoint"
	"github.com/Fooderapp/WheelerHost-V1/pkg/verbose"
)

var (
	configPath  = flag.String("config", "config.yaml", "Configuration file path")
	pidFilePath = flag.String("pidfile", "", "PID file path (default: /var/run/wheelerhostd.pid or ./wheelerhostd.pid)")
	version     = flag.Bool("version", false, "Show version information")
	verboseFlag = flag.Bool("verbose", false, "Enable verbose logging")
)

const (
	Version = "0.1.0-dev"
	Build   = "development"
)

func getDefaultPidFile() string {
	systemPidFile := "/var/run/wheelerhostd.pid"
	if dir := filepath.Dir(systemPidFile); isWritableDir(dir) {
		return systemPidFile
	}
	return "./wheelerhostd.pid"
}

func isWritableDir(dir string) bool {
	if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
		testFile := filepath.Join(dir, ".wheelerhostd_write_test")
		if f, err := os.Create(testFile); err == nil {
			f.Close()
			os.Remove(testFile)
			return true
		}
	}
	return false
}

func createPidFile(pidFile string) error {
	if err := checkExistingPid(pidFile); err != nil {
		return err
	}

	if dir := filepath.Dir(pidFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create PID file directory: %v", err)
		}
	}

	pid := os.Getpid()
	content := fmt.Sprintf("%d\n", pid)
	if err := os.WriteFile(pidFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %v", err)
	}
	return nil
}

func checkExistingPid(pidFile string) error {
	data, err := os.ReadFile(pidFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read existing PID file: %v", err)
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		os.Remove(pidFile)
		return nil
	}

	if isProcessRunning(pid) {
		return fmt.Errorf("wheelerhostd is already running with PID %d", pid)
	}

	os.Remove(pidFile)
	return nil
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func removePidFile(pidFile string) {
	if pidFile != "" {
		if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to remove PID file %s: %v", pidFile, err)
		}
	}
}

// Process exit codes.
const (
	exitOK              = 0
	exitGenericFailure  = 1
	exitConfigInvalid   = 2
	exitUDPBindFailure  = 3
	exitBridgeExhausted = 4
)

func main() {
	flag.Parse()

	verbose.SetEnabled(*verboseFlag)

	if *version {
		fmt.Printf("wheelerhostd version %s (%s)\n", Version, Build)
		os.Exit(exitOK)
	}

	var actualPidFile string
	if *pidFilePath != "" {
		actualPidFile = *pidFilePath
	} else {
		actualPidFile = getDefaultPidFile()
	}

	if err := createPidFile(actualPidFile); err != nil {
		log.Fatalf("Failed to create PID file: %v", err)
	}
	defer removePidFile(actualPidFile)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(exitConfigInvalid)
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		os.Exit(exitConfigInvalid)
	}

	if err := logging.InitGlobalLogger(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseGlobalLogger()

	logging.Info("main", fmt.Sprintf("wheelerhostd version %s starting...", Version))
	logging.Info("main", fmt.Sprintf("PID: %d, PID file: %s", os.Getpid(), actualPidFile))
	logging.Info("main", fmt.Sprintf("UDP listen port: %d", cfg.UDP.Port))
	logging.Info("main", fmt.Sprintf("Bridge target: %s (%s)", cfg.Bridge.Target, cfg.Bridge.Exe))
	logging.Info("main", fmt.Sprintf("Diagnostics: http://%s", cfg.Diag.ListenAddr))

	daemon, err := NewWheelerHostDaemon(cfg)
	if err != nil {
		logging.Error("main", fmt.Sprintf("Failed to create daemon: %v", err))
		if errors.Is(err, udpendpoint.ErrBind) {
			os.Exit(exitUDPBindFailure)
		}
		os.Exit(exitGenericFailure)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := daemon.Start(); err != nil {
		logging.Error("main", fmt.Sprintf("Failed to start daemon: %v", err))
		os.Exit(exitGenericFailure)
	}

	logging.Info("main", "wheelerhostd started successfully")

	select {
	case <-sigChan:
		logging.Info("main", "Shutting down...")
	case <-daemon.ctx.Done():
		logging.Info("main", "Daemon stopped itself")
	}

	if err := daemon.Stop(); err != nil {
		logging.Error("main", fmt.Sprintf("Error during shutdown: %v", err))
	}

	if runErr := daemon.Err(); runErr != nil {
		logging.Error("main", fmt.Sprintf("wheelerhostd exiting: %v", runErr))
		if errors.Is(runErr, sessionloop.ErrBridgeUnavailable) {
			os.Exit(exitBridgeExhausted)
		}
		os.Exit(exitGenericFailure)
	}

	logging.Info("main", "wheelerhostd stopped")
}
