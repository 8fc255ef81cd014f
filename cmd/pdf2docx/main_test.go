package main

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"pdf2docx/internal/config"
	"pdf2docx/internal/infra/metrics"
	"pdf2docx/internal/staging"
)

func TestStartServer_GracefulShutdownOnSignal(t *testing.T) {
	app := fiber.New()
	var cfg config.Config
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = ":0"

	idleConnsClosed := make(chan struct{})
	go startServer(app, cfg, idleConnsClosed)

	time.Sleep(100 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("failed to send SIGTERM: %v", err)
	}

	select {
	case <-idleConnsClosed:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for graceful shutdown")
	}
}

func TestSweepStaging_RemovesOrphans(t *testing.T) {
	dir := t.TempDir()
	area, err := staging.NewArea(dir)
	if err != nil {
		t.Fatalf("NewArea: %v", err)
	}

	old := time.Now().Add(-2 * time.Hour)
	for _, name := range []string{
		"temp_input_a.pdf",
		"converted_output_a.docx",
		"keep.txt",
	} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	sweepStaging(area, time.Hour, m)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "keep.txt" {
		t.Fatalf("expected only keep.txt to remain, got %v", entries)
	}

	const want = `
# HELP pdf2docx_swept_files_total Orphaned staged files removed by the startup sweep
# TYPE pdf2docx_swept_files_total counter
pdf2docx_swept_files_total 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "pdf2docx_swept_files_total"); err != nil {
		t.Fatalf("unexpected metric: %v", err)
	}
}

func TestNewResultCache(t *testing.T) {
	cfg := config.Default()
	if rc := newResultCache(cfg); rc != nil {
		t.Fatalf("expected nil cache when disabled")
	}

	cfg.Cache.Enabled = true
	cfg.Cache.RedisHost = "127.0.0.1:1"
	if rc := newResultCache(cfg); rc != nil {
		t.Fatalf("expected nil cache when redis is unreachable")
	}

	mr := miniredis.RunT(t)
	cfg.Cache.RedisHost = mr.Addr()
	if rc := newResultCache(cfg); rc == nil {
		t.Fatalf("expected cache with reachable redis")
	}
}

func TestSetupLogging_CreatesLogDir(t *testing.T) {
	cfg := config.Default()
	cfg.Logger.Dir = filepath.Join(t.TempDir(), "nested", "logs")
	setupLogging(cfg)

	if st, err := os.Stat(cfg.Logger.Dir); err != nil || !st.IsDir() {
		t.Fatalf("expected log directory to be created, err=%v", err)
	}
}
