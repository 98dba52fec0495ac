// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   LogLevel
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{"warn", LevelWarn, true},
		{"error", LevelError, true},
		{"critical", LevelFatal, true},
		{" info ", LevelInfo, true},
		{"loud", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	if LevelWarn.String() != "WARN" {
		t.Errorf("LevelWarn.String() = %q", LevelWarn.String())
	}
	if LogLevel(42).String() != "UNKNOWN" {
		t.Errorf("unexpected string for unknown level: %q", LogLevel(42).String())
	}
}

func TestSetLevelFiltersSubsystems(t *testing.T) {
	var buf bytes.Buffer
	old := setOutput(&buf)
	t.Cleanup(func() {
		setOutput(old)
		SetLevel(LevelInfo)
	})

	l := Logger("TEST")
	if Logger("TEST") != l {
		t.Fatal("Logger should return the cached instance")
	}

	SetLevel(LevelWarn)
	l.Infof("hidden %d", 1)
	l.Warnf("shown %d", 2)
	if strings.Contains(buf.String(), "hidden 1") {
		t.Errorf("info message logged at warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown 2") {
		t.Errorf("warn message missing: %q", buf.String())
	}

	buf.Reset()
	SetLevel(LevelDebug)
	Debugf("debug %s", "visible")
	if !strings.Contains(buf.String(), "debug visible") {
		t.Errorf("debug message missing after SetLevel(LevelDebug): %q", buf.String())
	}
	if GetLevel() != LevelDebug {
		t.Errorf("GetLevel() = %v, want %v", GetLevel(), LevelDebug)
	}
}

func TestSetLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "player.log")
	if err := SetLogFile(path); err != nil {
		t.Fatalf("SetLogFile: %v", err)
	}
	Infof("written to file")
	if err := Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := SetLogFile(""); err != nil {
		t.Errorf("SetLogFile(\"\") should be a no-op, got %v", err)
	}
}
