package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"capture-colorspace/capture"
	"capture-colorspace/config"

	"go.uber.org/zap/zaptest"
)

func TestPruneLogs(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, fmt.Sprintf("%s-20240101-00000%d.log", logFilePrefix, i))
		if err := os.WriteFile(name, nil, 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	pruneLogs(dir, 3)

	files, _ := filepath.Glob(filepath.Join(dir, logFilePrefix+"-*.log"))
	if len(files) != 2 {
		t.Fatalf("files after prune = %d, want 2", len(files))
	}
	if filepath.Base(files[0]) != logFilePrefix+"-20240101-000003.log" {
		t.Errorf("oldest kept file = %s", filepath.Base(files[0]))
	}
}

func TestCreateLogger(t *testing.T) {
	dir := t.TempDir()
	logger, err := createLogger("debug", config.LoggingConfig{Directory: dir, MaxLogFiles: 5})
	if err != nil {
		t.Fatalf("createLogger failed: %v", err)
	}
	logger.Info("hello")
	logger.Sync()

	files, _ := filepath.Glob(filepath.Join(dir, logFilePrefix+"-*.log"))
	if len(files) != 1 {
		t.Errorf("log files = %d, want 1", len(files))
	}
}

func TestApplicationStartStop(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Enabled = false
	cfg.Cameras[0].ColorSpace = "hlg_bt2020"
	cfg.Monitor.Enabled = true
	cfg.Monitor.Schedule = "@every 1h"

	app := NewApplication(cfg, zaptest.NewLogger(t))
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cam, err := app.cameraManager.GetCamera("camera1")
	if err != nil {
		t.Fatalf("GetCamera failed: %v", err)
	}
	if got := cam.Device.ActiveColorSpace(); got != capture.ColorSpaceHLGBT2020 {
		t.Errorf("color space after start = %s, want HLG_BT2020", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestRunOnce(t *testing.T) {
	app := NewApplication(config.Default(), zaptest.NewLogger(t))
	if code := app.RunOnce(true, true); code != 0 {
		t.Errorf("RunOnce exit code = %d, want 0", code)
	}
}
