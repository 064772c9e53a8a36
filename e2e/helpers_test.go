package e2e_test

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sagarc03/filekeep"
	"github.com/sagarc03/filekeep/token"
)

var (
	binaryPath     string
	binaryBuildErr error
	binaryOnce     sync.Once
	sharedTempDir  string
)

const (
	testKeyID  = "e2e"
	testSecret = "e2e-secret-that-is-long-enough-for-hs256"
)

// TestMain sets up and tears down shared test resources.
func TestMain(m *testing.M) {
	var err error
	sharedTempDir, err = os.MkdirTemp("", "filekeep-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	_ = os.RemoveAll(sharedTempDir)
	if testCleanup != nil {
		testCleanup()
	}

	os.Exit(code)
}

// ServerConfig holds configuration for starting the filekeep server.
type ServerConfig struct {
	Port        int
	DBType      string // sqlite, postgres
	DBDSN       string
	StoragePath string
	// ReconcileEnabled turns on the background loop. Off by default so tests
	// control every pass.
	ReconcileEnabled bool
}

// buildBinary compiles the filekeep binary once per test run.
func buildBinary(t *testing.T) string {
	t.Helper()

	binaryOnce.Do(func() {
		binaryPath = filepath.Join(sharedTempDir, "filekeep")

		cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/filekeep")
		cmd.Dir = getProjectRoot(t)
		output, err := cmd.CombinedOutput()
		if err != nil {
			binaryBuildErr = fmt.Errorf("build binary: %w\nOutput: %s", err, output)
			return
		}
	})

	if binaryBuildErr != nil {
		t.Fatalf("failed to build binary: %v", binaryBuildErr)
	}

	return binaryPath
}

// getProjectRoot returns the directory holding go.mod.
func getProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err, "get working directory")

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// createConfigFile writes a config file for the server and returns its path.
func createConfigFile(t *testing.T, cfg ServerConfig) string {
	t.Helper()

	var sb strings.Builder
	fmt.Fprintf(&sb, `server:
  port: %d

database:
  type: %s
  dsn: "%s"

storage:
  backend: filesystem
  path: "%s"

auth:
  issuer: filekeep-e2e
  keys:
    inline:
      - kid: %s
        secret: %s

reconcile:
  enabled: %t
  stale_after: 1h

log:
  level: error
`,
		cfg.Port,
		cfg.DBType,
		cfg.DBDSN,
		cfg.StoragePath,
		testKeyID,
		testSecret,
		cfg.ReconcileEnabled,
	)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(sb.String()), 0o600), "write config file")

	return configPath
}

// runBinary runs a one-shot filekeep command and returns its stdout.
func runBinary(t *testing.T, configPath string, args ...string) string {
	t.Helper()

	binary := buildBinary(t)
	cmd := exec.Command(binary, append(args, "--config", configPath)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	require.NoError(t, err, "filekeep %s: %s", strings.Join(args, " "), stderr.String())

	return stdout.String()
}

// startServer migrates the database and starts filekeep serve.
// Returns the base URL, the config path and a cleanup function.
func startServer(t *testing.T, cfg ServerConfig) (string, string, func()) {
	t.Helper()

	configPath := createConfigFile(t, cfg)
	runBinary(t, configPath, "migrate", "up")

	cmd := exec.Command(buildBinary(t), "serve", "--config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	require.NoError(t, cmd.Start(), "start server")

	baseURL := fmt.Sprintf("http://localhost:%d", cfg.Port)
	waitForServer(t, baseURL, 10*time.Second)

	cleanup := func() {
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
			_ = cmd.Wait()
		}
	}

	return baseURL, configPath, cleanup
}

// waitForServer polls the health endpoint until it answers or times out.
func waitForServer(t *testing.T, baseURL string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 1 * time.Second}

	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/healthz")
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("server failed to start within %v", timeout)
}

// getOpenPort finds an available TCP port.
func getOpenPort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err, "find open port")

	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close(), "close port")

	return port
}

// mintToken signs a token the server started by startServer accepts.
func mintToken(t *testing.T, subject string, scopes ...filekeep.Scope) string {
	t.Helper()

	if len(scopes) == 0 {
		scopes = []filekeep.Scope{filekeep.ScopeRead, filekeep.ScopeWrite}
	}
	signed, err := token.IssueFor("filekeep-e2e", "", testKeyID, testSecret, subject, scopes, time.Hour, time.Now())
	require.NoError(t, err)
	return signed
}

// do sends a request with an optional bearer token.
func do(t *testing.T, method, url, bearer string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}
