package config

import (
	"strings"
	"testing"
	"time"
)

// env returns a LookupFunc backed by m.
func env(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{"DATABASE_URL": "postgres://localhost/picking"}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Ingest.MaxConcurrent != 4 {
		t.Errorf("Ingest.MaxConcurrent = %d, want 4", cfg.Ingest.MaxConcurrent)
	}
	if cfg.Ingest.Timeout != 2*time.Minute {
		t.Errorf("Ingest.Timeout = %v, want 2m", cfg.Ingest.Timeout)
	}
	if cfg.Ingest.MaxBodySize != 32<<20 {
		t.Errorf("Ingest.MaxBodySize = %d, want %d", cfg.Ingest.MaxBodySize, 32<<20)
	}
	if cfg.Retention.Enabled {
		t.Error("Retention.Enabled should default to false")
	}
	if cfg.Retention.Days != 30 {
		t.Errorf("Retention.Days = %d, want 30", cfg.Retention.Days)
	}
	if !cfg.Database.AutoMigrate {
		t.Error("Database.AutoMigrate should default to true")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want /metrics", cfg.Metrics.Path)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"DATABASE_URL":          "postgres://localhost/picking",
		"SERVER_PORT":           "9090",
		"INGEST_MAX_CONCURRENT": "8",
		"INGEST_TIMEOUT":        "45s",
		"LOG_LEVEL":             "debug",
		"TRUSTED_PROXIES":       "10.0.0.0/8, 192.168.0.0/16,",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Ingest.MaxConcurrent != 8 {
		t.Errorf("Ingest.MaxConcurrent = %d, want 8", cfg.Ingest.MaxConcurrent)
	}
	if cfg.Ingest.Timeout != 45*time.Second {
		t.Errorf("Ingest.Timeout = %v, want 45s", cfg.Ingest.Timeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	want := []string{"10.0.0.0/8", "192.168.0.0/16"}
	if len(cfg.Security.TrustedProxies) != len(want) {
		t.Fatalf("TrustedProxies = %v, want %v", cfg.Security.TrustedProxies, want)
	}
	for i := range want {
		if cfg.Security.TrustedProxies[i] != want[i] {
			t.Errorf("TrustedProxies[%d] = %q, want %q", i, cfg.Security.TrustedProxies[i], want[i])
		}
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{"DB_URL": "postgres://alt/picking"}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Database.URL != "postgres://alt/picking" {
		t.Errorf("Database.URL = %q, want value from DB_URL", cfg.Database.URL)
	}
}

func TestLoad_CollectsAllErrors(t *testing.T) {
	_, err := LoadFrom(env(map[string]string{
		"SERVER_PORT":    "eighty",
		"INGEST_TIMEOUT": "soon",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"DATABASE_URL", "SERVER_PORT", "INGEST_TIMEOUT"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoad_SQLite(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"DATABASE_URL": "sqlite:/var/lib/picking/data.db",
		"DB_MAX_CONNS": "0",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if !cfg.Database.IsSQLite() {
		t.Fatal("IsSQLite() = false")
	}
	if got := cfg.Database.SQLitePath(); got != "/var/lib/picking/data.db" {
		t.Errorf("SQLitePath() = %q", got)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadFrom(env(map[string]string{"DATABASE_URL": "postgres://localhost/picking"}))
		if err != nil {
			t.Fatalf("LoadFrom() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "SERVER_PORT"},
		{"max below min conns", func(c *Config) { c.Database.MaxConns, c.Database.MinConns = 1, 5 }, "DB_MAX_CONNS"},
		{"empty sqlite path", func(c *Config) { c.Database.URL = "sqlite:" }, "needs a path"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"bad zone", func(c *Config) { c.Ingest.Location = "Mars/Olympus" }, "INGEST_TIMEZONE"},
		{"retention without days", func(c *Config) { c.Retention.Enabled, c.Retention.Days = true, 0 }, "RETENTION_DAYS"},
		{"retention disabled ignores days", func(c *Config) { c.Retention.Days = 0 }, ""},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "METRICS_PATH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			switch {
			case tt.wantErr == "" && err != nil:
				t.Errorf("Validate() unexpected error: %v", err)
			case tt.wantErr != "" && err == nil:
				t.Errorf("Validate() = nil, want error mentioning %s", tt.wantErr)
			case tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr):
				t.Errorf("Validate() = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestServerAddr(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 8000}
	if got := c.Addr(); got != "127.0.0.1:8000" {
		t.Errorf("Addr() = %q", got)
	}
	c.Host = ""
	if got := c.Addr(); got != ":8000" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestConfigString_MasksCredentials(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{URL: "postgres://picker:s3cret@db:5432/picking"}}
	s := cfg.String()
	if strings.Contains(s, "s3cret") {
		t.Errorf("String() leaks password: %s", s)
	}
	if !strings.Contains(s, "db:5432") {
		t.Errorf("String() should keep host: %s", s)
	}
}
