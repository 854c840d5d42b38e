package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/registry-core/internal/auth"
)

const testSecret = "test-secret-for-development-only-0123456789"

// writeConfig writes a minimal valid config using dbPath and returns its path.
func writeConfig(t *testing.T, dbPath string, port int) string {
	t.Helper()

	content := fmt.Sprintf(`
site:
  id: test-site

database:
  path: %q
  wal_mode: true
  busy_timeout: 5

registry:
  access_mode: owner_only
  max_devices: 10

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stderr

api:
  host: "127.0.0.1"
  port: %d

security:
  jwt:
    secret: %q
    access_token_ttl: 15
  api_keys:
    enabled: true
`, dbPath, port, testSecret)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// execute runs the command tree with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, "/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingSecret verifies config validation stops startup.
func TestRun_MissingSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "site:\n  id: test-site\ndatabase:\n  path: \"" + filepath.Join(t.TempDir(), "r.db") + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("REGISTRY_JWT_SECRET", "")

	err := run(context.Background(), path)
	if err == nil {
		t.Fatal("run() should fail without a JWT secret")
	}
	if !strings.Contains(err.Error(), "security.jwt.secret") {
		t.Errorf("error = %v, want mention of security.jwt.secret", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("REGISTRY_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("REGISTRY_CONFIG", "/etc/registry/config.yaml")
	if got := getConfigPath(); got != "/etc/registry/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env value", got)
	}
}

// TestRun_ServesUntilCancelled starts the full service with MQTT and
// InfluxDB disabled, waits for the health endpoint, then shuts down.
func TestRun_ServesUntilCancelled(t *testing.T) {
	port := freePort(t)
	cfgPath := writeConfig(t, filepath.Join(t.TempDir(), "registry.db"), port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfgPath) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url) //nolint:noctx // test polling
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("health status = %d, want 200", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("server never became healthy: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() returned %v on shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestTokenCmd(t *testing.T) {
	cfgPath := writeConfig(t, filepath.Join(t.TempDir(), "registry.db"), 8080)

	out, err := execute(t, "--config", cfgPath, "token", "--identity", "alice")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out), testSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Identity() != "alice" {
		t.Errorf("Identity() = %q, want alice", claims.Identity())
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != 15*time.Minute {
		t.Errorf("ttl = %v, want configured 15m", ttl)
	}
}

func TestTokenCmd_RequiresIdentity(t *testing.T) {
	cfgPath := writeConfig(t, filepath.Join(t.TempDir(), "registry.db"), 8080)

	if _, err := execute(t, "--config", cfgPath, "token"); err == nil {
		t.Fatal("token without --identity should fail")
	}
}

func TestAPIKeyCmd_RoundTrip(t *testing.T) {
	cfgPath := writeConfig(t, filepath.Join(t.TempDir(), "registry.db"), 8080)

	raw, err := execute(t, "--config", cfgPath, "apikey", "create", "sensor-gw", "--name", "gateway")
	if err != nil {
		t.Fatalf("apikey create: %v", err)
	}
	parts := strings.Split(strings.TrimSpace(raw), "_")
	if len(parts) != 3 || parts[0] != "rk" {
		t.Fatalf("raw key = %q, want rk_<id>_<secret>", raw)
	}
	id := parts[1]

	out, err := execute(t, "--config", cfgPath, "apikey", "list")
	if err != nil {
		t.Fatalf("apikey list: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "sensor-gw") || !strings.Contains(out, "false") {
		t.Errorf("list output missing new key:\n%s", out)
	}

	if _, err := execute(t, "--config", cfgPath, "apikey", "revoke", id); err != nil {
		t.Fatalf("apikey revoke: %v", err)
	}
	out, err = execute(t, "--config", cfgPath, "apikey", "list")
	if err != nil {
		t.Fatalf("apikey list: %v", err)
	}
	if !strings.Contains(out, "true") {
		t.Errorf("revoked key not reported as revoked:\n%s", out)
	}

	if _, err := execute(t, "--config", cfgPath, "apikey", "revoke", "missing"); err == nil {
		t.Error("revoking an unknown key should fail")
	}
}

func TestMigrateCmd(t *testing.T) {
	cfgPath := writeConfig(t, filepath.Join(t.TempDir(), "registry.db"), 8080)

	out, err := execute(t, "--config", cfgPath, "migrate", "status")
	if err != nil {
		t.Fatalf("migrate status: %v", err)
	}
	if !strings.Contains(out, "pending") || strings.Contains(out, "applied") {
		t.Errorf("fresh database should only have pending migrations:\n%s", out)
	}

	if _, err := execute(t, "--config", cfgPath, "migrate", "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	out, err = execute(t, "--config", cfgPath, "migrate", "status")
	if err != nil {
		t.Fatalf("migrate status: %v", err)
	}
	if strings.Contains(out, "pending") || !strings.Contains(out, "applied") {
		t.Errorf("all migrations should be applied:\n%s", out)
	}

	if _, err := execute(t, "--config", cfgPath, "migrate", "down"); err != nil {
		t.Fatalf("migrate down: %v", err)
	}
	out, err = execute(t, "--config", cfgPath, "migrate", "status")
	if err != nil {
		t.Fatalf("migrate status: %v", err)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("rolled-back migration should be pending again:\n%s", out)
	}
}
