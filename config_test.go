package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
operators:
  - id: op1
    callsign: BA1ABC
    grid: PM95
    frequency: 14074000
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("Listen = %q", cfg.Server.Listen)
	}
	if cfg.Engine.Mode != "FT8" {
		t.Errorf("Mode = %q", cfg.Engine.Mode)
	}
	if cfg.Engine.WorkedQueryTimeoutMs != 1000 {
		t.Errorf("WorkedQueryTimeoutMs = %d", cfg.Engine.WorkedQueryTimeoutMs)
	}
	if cfg.Prometheus.Path != "/metrics" {
		t.Errorf("Prometheus.Path = %q", cfg.Prometheus.Path)
	}

	op := cfg.Operators[0]
	if op.Mode != "FT8" {
		t.Errorf("operator mode = %q", op.Mode)
	}
	if len(op.TransmitCycles) != 1 || op.TransmitCycles[0] != 0 {
		t.Errorf("TransmitCycles = %v", op.TransmitCycles)
	}
	if op.MaxQSOTimeoutCycles != 3 || op.MaxCallAttempts != 5 {
		t.Errorf("timeouts = %d/%d", op.MaxQSOTimeoutCycles, op.MaxCallAttempts)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad mode", `
engine:
  mode: JT65
`},
		{"missing callsign", `
operators:
  - id: op1
    frequency: 14074000
`},
		{"duplicate id", `
operators:
  - id: op1
    callsign: BA1ABC
  - id: op1
    callsign: BA2XYZ
`},
		{"bad grid", `
operators:
  - id: op1
    callsign: BA1ABC
    grid: ZZZZ
`},
		{"mqtt enabled without broker", `
mqtt:
  enabled: true
`},
	}
	for _, tt := range tests {
		path := writeConfig(t, tt.content)
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("%s: accepted", tt.name)
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestOperatorModeInheritsEngineMode(t *testing.T) {
	path := writeConfig(t, `
engine:
  mode: FT4
operators:
  - id: op1
    callsign: BA1ABC
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Operators[0].Mode != "FT4" {
		t.Errorf("operator mode = %q, want FT4", cfg.Operators[0].Mode)
	}
}
