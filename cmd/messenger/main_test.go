package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-messenger/core"
	sqlstore "github.com/goliatone/go-messenger/store/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoadConfig_LayersFileAndEnvFile(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "messenger.yaml", `
service_name: pages
hub_verify_token: from-file
request_timeout: 3s
queue:
  workers: 3
  retry_delay: 250ms
bots:
  - page_id: "123"
    access_token: tok
    bot: echo
    greeting: Hello
`)
	envPath := writeFile(t, dir, ".env", "MESSENGER_HTTP_ADDR=:9999\n")
	t.Cleanup(func() { _ = os.Unsetenv(core.EnvHTTPAddr) })

	opts := &rootOptions{configPath: configPath, envFile: envPath}
	cfg, err := opts.loadConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "pages", cfg.ServiceName)
	assert.Equal(t, "from-file", cfg.VerifyToken)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.Queue.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.RetryDelay)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	require.Len(t, cfg.Bots, 1)
	assert.Equal(t, "Hello", cfg.Bots[0].Greeting)
}

func TestLoadConfig_ExampleFile(t *testing.T) {
	opts := &rootOptions{configPath: filepath.Join("..", "..", "messenger.example.yaml")}
	cfg, err := opts.loadConfig(context.Background())
	require.NoError(t, err)

	assert.True(t, cfg.UseMessageQueue)
	assert.Equal(t, core.QueueTransportSQL, cfg.Queue.Transport)
	assert.Equal(t, time.Minute, cfg.Queue.MaxRetryDelay)
	assert.Equal(t, core.SessionBackendSQL, cfg.Session.Backend)
	require.Len(t, cfg.Bots, 1)
	assert.Equal(t, "echo: ", cfg.Bots[0].Args["prefix"])
	require.Len(t, cfg.Bots[0].PersistentMenu, 1)
}

func TestLoadConfig_MissingExplicitFileFails(t *testing.T) {
	opts := &rootOptions{configPath: filepath.Join(t.TempDir(), "absent.yaml")}
	_, err := opts.loadConfig(context.Background())
	require.Error(t, err)
}

func TestLoadEnvFile_MissingFileIsIgnored(t *testing.T) {
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), ".env")))
	require.NoError(t, loadEnvFile(""))
}

func TestMigrateList(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "messenger.yaml", "hub_verify_token: x\n")
	out, err := executeCmd(t, "migrate", "--list", "--config", configPath, "--env-file", "")
	require.NoError(t, err)
	assert.Equal(t, "00001_messenger_queue\n00002_messenger_sessions\n", out)
}

func TestMigrateAppliesToSQLite(t *testing.T) {
	dir := t.TempDir()
	dsn := "file:" + filepath.Join(dir, "messenger.db") + "?_foreign_keys=on"
	configPath := writeFile(t, dir, "messenger.yaml", "hub_verify_token: x\ndatabase:\n  driver: sqlite3\n  dsn: \""+dsn+"\"\n")

	out, err := executeCmd(t, "migrate", "--config", configPath, "--env-file", "")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied (sqlite)")

	client, err := openDatabase(core.DatabaseConfig{Driver: core.DatabaseDriverSQLite, DSN: dsn})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	var name string
	require.NoError(t, client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", "messenger_sessions",
	).Scan(context.Background(), &name))
	assert.Equal(t, "messenger_sessions", name)
}

func TestConfigureReportsPerChannel(t *testing.T) {
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("access_token") == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"message":"bad token","code":190}}`)
			return
		}
		_, _ = io.WriteString(w, `{"result":"success"}`)
	}))
	defer graph.Close()

	dir := t.TempDir()
	configPath := writeFile(t, dir, "messenger.yaml", strings.Join([]string{
		"hub_verify_token: x",
		"graph_url: " + graph.URL,
		"bots:",
		"  - page_id: good",
		"    access_token: ok",
		"  - page_id: broken",
		"    access_token: bad",
	}, "\n"))

	out, err := executeCmd(t, "configure", "--config", configPath, "--env-file", "", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Contains(t, out, "✓ good")
	assert.Contains(t, out, "✗ broken")
}

func TestNewContainer_SQLBackends(t *testing.T) {
	dir := t.TempDir()
	cfg := core.DefaultConfig()
	cfg.VerifyToken = "x"
	cfg.UseMessageQueue = true
	cfg.Queue.Transport = core.QueueTransportSQL
	cfg.Session.Backend = core.SessionBackendSQL
	cfg.Database.DSN = "file:" + filepath.Join(dir, "container.db") + "?_foreign_keys=on"

	logger := newConsoleLogger(io.Discard, "error")
	container, err := NewContainer(context.Background(), cfg, logger, namedProvider{base: logger})
	require.NoError(t, err)
	defer func() { _ = container.Close() }()

	require.NotNil(t, container.database.client)
	require.NoError(t, container.database.client.Migrate(context.Background()))

	_, cached := container.Hub().Sessions().Backend().(*sqlstore.CachedSessionStore)
	assert.True(t, cached)

	s := container.Hub().Sessions().Session("page", "user")
	require.NoError(t, s.Set(context.Background(), "k", "v"))
	_, found, err := s.Lookup(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestNewContainer_MemoryDefaultsOpenNothing(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.VerifyToken = "x"
	logger := newConsoleLogger(io.Discard, "error")
	container, err := NewContainer(context.Background(), cfg, logger, namedProvider{base: logger})
	require.NoError(t, err)
	assert.Nil(t, container.database.client)
	assert.Nil(t, container.redis.client)
	require.NoError(t, container.Close())
}

func TestConsoleLogger_LevelsAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := newConsoleLogger(&buf, "warn")
	logger.Info("hidden")
	namedProvider{base: logger}.GetLogger("gateway").Warn("shown", "channel_id", "p1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "component=gateway")
	assert.Contains(t, out, "channel_id=p1")
}
