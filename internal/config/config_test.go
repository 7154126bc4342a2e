package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultTemplateParses(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("default template: %v", err)
	}
	if cfg.Engine.Retry.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d", cfg.Engine.Retry.MaxAttempts)
	}
	if cfg.Server.RequestTimeout.Duration != 15*time.Second {
		t.Fatalf("request timeout = %s", cfg.Server.RequestTimeout)
	}
}

func TestFromTOML(t *testing.T) {
	data := []byte(`
[database]
driver = "postgres"
dsn = "postgres://localhost/bidline"

[engine.retry]
max_attempts = 5
base_delay = "10ms"
max_delay = "1s"

[relay.kafka]
brokers = ["localhost:9092"]
topic = "bidline.events"
`)
	cfg, err := FromTOML(data)
	if err != nil {
		t.Fatalf("parse toml: %v", err)
	}
	if cfg.Database.Driver != "postgres" || cfg.Engine.Retry.MaxAttempts != 5 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Engine.Retry.BaseDelay.Duration != 10*time.Millisecond {
		t.Fatalf("base delay = %s", cfg.Engine.Retry.BaseDelay)
	}
	if cfg.Server.BasePath != "/v1" {
		t.Fatalf("defaults should survive partial files, base path = %q", cfg.Server.BasePath)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"driver":   "database:\n  driver: mysql\n",
		"postgres": "database:\n  driver: postgres\n",
		"retry":    "engine:\n  retry:\n    max_attempts: 0\n",
		"kafka":    "relay:\n  kafka:\n    brokers: [localhost:9092]\n",
		"webhook":  "relay:\n  webhooks:\n    - name: empty\n",
		"level":    "log:\n  level: loud\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if cfg.Database.Workspace != dir {
		t.Fatalf("workspace = %q", cfg.Database.Workspace)
	}
	if !strings.HasPrefix(cfg.DocumentsRoot(), dir) {
		t.Fatalf("documents root %q outside workspace", cfg.DocumentsRoot())
	}

	if err := os.WriteFile(filepath.Join(dir, "bidline.toml"), []byte("[log]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load toml: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("toml not applied: %q", cfg.Log.Level)
	}

	if err := os.WriteFile(Path(dir), []byte("log:\n  level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("yaml should win, got %q", cfg.Log.Level)
	}
}
