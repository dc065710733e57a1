package logger

import (
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestSourceReadCounters(t *testing.T) {
	RecordSourceRead("binance", 3, 1024)
	RecordSourceRead("binance", 2, 512)

	v, ok := sources.Load("binance")
	if !ok {
		t.Fatalf("expected binance source stats")
	}
	ss := v.(*sourceStat)
	if ss.records < 5 {
		t.Fatalf("expected at least 5 records, got %d", ss.records)
	}
}
