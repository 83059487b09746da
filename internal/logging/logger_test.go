package logging_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"abide2nidm/internal/config"
	"abide2nidm/internal/logging"
)

func TestNewJSONWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "out.log")
	logger, closer, err := logging.New(logging.Options{Level: "debug", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("site processed", logging.Site("ABIDEII-KKI_1"))
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("expected single json line, got %q: %v", data, err)
	}
	if entry["msg"] != "site processed" {
		t.Fatalf("unexpected msg %v", entry["msg"])
	}
	if entry["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", entry["level"])
	}
	if entry["site"] != "ABIDEII-KKI_1" {
		t.Fatalf("expected site attribute, got %v", entry["site"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatal("expected ts key")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleFormatIncludesComponentPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	logger, closer, err := logging.New(logging.Options{Level: "info", Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.NewComponentLogger(logger, "pipeline").Info("conversion finished", logging.String("output", "bni_1_nidm.ttl"))
	logger.Debug("hidden")
	_ = closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "INFO pipeline: conversion finished") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if !strings.Contains(line, "output=bni_1_nidm.ttl") {
		t.Fatalf("expected key=value attribute, got %q", line)
	}
	if strings.Contains(line, "hidden") {
		t.Fatalf("debug line should be filtered at info level: %q", line)
	}
}

func TestNewSiteLoggerTeesToSiteFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	sharedPath := filepath.Join(cfg.Paths.LogDir, "shared.log")

	shared, sharedCloser, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{sharedPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer sharedCloser.Close()

	siteLogger, siteCloser, err := logging.NewSiteLogger(shared, &cfg, "ABIDEII-BNI_1")
	if err != nil {
		t.Fatalf("NewSiteLogger returned error: %v", err)
	}
	siteLogger.Info("starting site")
	if err := siteCloser.Close(); err != nil {
		t.Fatalf("close site log: %v", err)
	}

	siteData, err := os.ReadFile(logging.SiteLogPath(&cfg, "ABIDEII-BNI_1"))
	if err != nil {
		t.Fatalf("read site log: %v", err)
	}
	if !strings.Contains(string(siteData), "starting site") || !strings.Contains(string(siteData), "site=ABIDEII-BNI_1") {
		t.Fatalf("unexpected site log %q", siteData)
	}
	sharedData, err := os.ReadFile(sharedPath)
	if err != nil {
		t.Fatalf("read shared log: %v", err)
	}
	if !strings.Contains(string(sharedData), "site=ABIDEII-BNI_1") {
		t.Fatalf("shared stream should carry site tag, got %q", sharedData)
	}
}

func TestCleanupOldLogsRemovesExpiredMatches(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "ABIDEII-BNI_1_processing.log")
	fresh := filepath.Join(dir, "ABIDEII-KKI_1_processing.log")
	other := filepath.Join(dir, "history.db")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	past := time.Now().AddDate(0, 0, -30)
	for _, p := range []string{old, other} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 7, logging.RetentionTarget{Dir: dir, Pattern: "*_processing.log"})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, err=%v", err)
	}
	for _, p := range []string{fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s kept: %v", p, err)
		}
	}
}

func TestCleanupOldLogsDisabled(t *testing.T) {
	if removed := logging.CleanupOldLogs(nil, 0, logging.RetentionTarget{Dir: t.TempDir()}); removed != 0 {
		t.Fatalf("expected no removals, got %d", removed)
	}
}
