package app

import (
	"testing"
	"time"

	"speech-transcribe-service/internal/config"
)

func TestNew_SetsConfig(t *testing.T) {
	cfg := config.Load()
	a := New(cfg)

	if a.Cfg != cfg {
		t.Error("expected application to keep the provided config")
	}
	if a.Uptime() != 0 {
		t.Errorf("expected zero uptime before Start, got %v", a.Uptime())
	}
}

func TestStart_RecordsStartupTime(t *testing.T) {
	a := New(config.Load())
	before := time.Now().UTC()

	if err := a.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.StartupTime.Before(before) {
		t.Errorf("startup time %v is before %v", a.StartupTime, before)
	}
	if a.Uptime() < 0 {
		t.Error("expected non-negative uptime")
	}
	a.Shutdown()
}
