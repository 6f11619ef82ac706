package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maruel/insertd/internal/capability"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(Path(dir), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_Missing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Quotas != DefaultQuotas() {
		t.Errorf("Quotas = %+v, want defaults", cfg.Quotas)
	}
	if cfg.RateLimits != DefaultRateLimits() {
		t.Errorf("RateLimits = %+v, want defaults", cfg.RateLimits)
	}
	if cfg.Allow != nil || cfg.Unsafe {
		t.Error("defaults must not grant access")
	}
}

func TestLoad_Empty(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Quotas.MaxBatchRows != 10000 {
		t.Errorf("MaxBatchRows = %d, want 10000", cfg.Quotas.MaxBatchRows)
	}
}

func TestLoad_Full(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
databases:
  data: data.db
create_databases: true
cors: true
allow:
  bot: test
permissions:
  - action: insert:insert-update
    database: data
    table: dogs
    allow: true
tokens:
  - token: secret
    actor:
      bot: test
quotas:
  max_request_body_bytes: 1 MiB
  max_batch_rows: 5
rate_limits:
  write_rate_per_min: 30
metrics:
  backend: datadog
  tags: [region:eu]
  flush_interval: 30s
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Databases["data"] != "data.db" || !cfg.CreateDatabases || !cfg.CORS {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Quotas.MaxRequestBodyBytes != 1<<20 {
		t.Errorf("MaxRequestBodyBytes = %d, want %d", cfg.Quotas.MaxRequestBodyBytes, 1<<20)
	}
	if cfg.Quotas.MaxBatchRows != 5 {
		t.Errorf("MaxBatchRows = %d, want 5", cfg.Quotas.MaxBatchRows)
	}
	if cfg.RateLimits.WriteRatePerMin != 30 {
		t.Errorf("WriteRatePerMin = %d, want 30", cfg.RateLimits.WriteRatePerMin)
	}
	if cfg.Metrics.FlushInterval != 30*time.Second {
		t.Errorf("FlushInterval = %v, want 30s", cfg.Metrics.FlushInterval)
	}
	if len(cfg.Permissions) != 1 || cfg.Permissions[0].Action != capability.ActionInsertUpdate {
		t.Errorf("Permissions = %+v", cfg.Permissions)
	}

	// The loaded policies grant insert:all to the configured token's actor.
	ctx := context.Background()
	actor, err := cfg.Authenticator().Resolve("secret")
	if err != nil {
		t.Fatalf("Resolve() = %v", err)
	}
	gate := capability.NewGate(cfg.Policies()...)
	if caps := gate.Resolve(ctx, actor, "data", "dogs"); caps != capability.All() {
		t.Errorf("Resolve(bot) = %+v, want all", caps)
	}
	caps := gate.Resolve(ctx, nil, "data", "dogs")
	if !caps.WriteExisting || caps.CreateTable || caps.WidenSchema {
		t.Errorf("Resolve(anonymous) = %+v, want write only", caps)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "colour: blue\n", "colour"},
		{"bad yaml", "quotas: [\n", "failed to parse"},
		{"bad size", "quotas:\n  max_request_body_bytes: lots\n", "failed to parse"},
		{"negative rows", "quotas:\n  max_batch_rows: -1\n", "max_batch_rows"},
		{"negative rate", "rate_limits:\n  write_rate_per_min: -1\n", "write_rate_per_min"},
		{"bad action", "permissions:\n  - action: insert:drop\n", "unknown action"},
		{"token without actor", "tokens:\n  - token: x\n", "actor is required"},
		{"token and hash", "tokens:\n  - token: x\n    hash: y\n    actor: {id: a}\n", "exactly one"},
		{"short secret", "jwt_secret: short\n", "jwt_secret"},
		{"bad backend", "metrics:\n  backend: statsd\n", "unknown backend"},
		{"bad database name", "databases:\n  a/b: x.db\n", "invalid name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
	}{
		{"max_request_body_bytes: 1024", 1024},
		{"max_request_body_bytes: 10 MiB", 10 << 20},
		{"max_request_body_bytes: 1kB", 1000},
		{`max_request_body_bytes: "2048"`, 2048},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, "quotas:\n  "+tt.in+"\n")
			cfg, err := Load(dir)
			if err != nil {
				t.Fatalf("Load() = %v", err)
			}
			if cfg.Quotas.MaxRequestBodyBytes != tt.want {
				t.Errorf("MaxRequestBodyBytes = %d, want %d", cfg.Quotas.MaxRequestBodyBytes, tt.want)
			}
		})
	}
	if got := ByteSize(10 << 20).String(); got != "10 MiB" {
		t.Errorf("String() = %q, want %q", got, "10 MiB")
	}
}

func TestSchema(t *testing.T) {
	b, err := Schema()
	if err != nil {
		t.Fatalf("Schema() = %v", err)
	}
	for _, want := range []string{`"max_request_body_bytes"`, `"permissions"`, `"prometheus"`, `"insert:create-table"`} {
		if !strings.Contains(string(b), want) {
			t.Errorf("schema lacks %s", want)
		}
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan *ServerConfig, 4)
	if err := Watch(ctx, dir, func(c *ServerConfig) { got <- c }); err != nil {
		t.Fatalf("Watch() = %v", err)
	}

	// Changes to other files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, "unsafe: true\n")
	select {
	case c := <-got:
		if !c.Unsafe {
			t.Error("reloaded config lacks unsafe: true")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after writing the config")
	}

	// An invalid edit is ignored; the next valid one is delivered.
	writeConfig(t, dir, "quotas: [\n")
	time.Sleep(3 * settle)
	writeConfig(t, dir, "cors: true\n")
	select {
	case c := <-got:
		if !c.CORS {
			t.Errorf("reloaded config = %+v, want cors", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after fixing the config")
	}
}
