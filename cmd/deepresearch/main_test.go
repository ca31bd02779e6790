package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"deepresearch/internal/config"
	"deepresearch/internal/server/bootstrap"
	"deepresearch/internal/server/ports"
)

func loadTestConfig(t *testing.T, overrides map[string]any) config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, _, err := config.Load(
		config.WithEnv(func(string) (string, bool) { return "", false }),
		config.WithOverrides(overrides),
	)
	require.NoError(t, err)
	return cfg
}

func startTestServer(t *testing.T, cfg config.Config) (*bootstrap.Server, *httptest.Server) {
	t.Helper()
	srv, err := bootstrap.BuildServer(context.Background(), cfg, "test")
	require.NoError(t, err)
	httpServer := httptest.NewServer(srv.Router)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Close()
		assert.NoError(t, srv.Shutdown(ctx, nil))
	})
	return srv, httpServer
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCommand(&out, &errOut)
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestRunCommand_OfflineServer(t *testing.T) {
	cfg := loadTestConfig(t, map[string]any{"pipeline.offline": true})
	_, httpServer := startTestServer(t, cfg)

	out, err := execute(t, "--server", httpServer.URL, "run", "--interval", "10ms", "--mode", "heavy", "grid", "batteries")
	require.NoError(t, err)
	assert.Contains(t, out, "task ")
	assert.Contains(t, out, "Research: grid batteries [heavy] done")
	assert.Contains(t, out, "Summary")
	assert.Contains(t, out, "Sources")
	assert.Contains(t, out, "[ev-1]")

	out, err = execute(t, "--server", httpServer.URL, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "grid batteries")
}

func TestStatusCommand_Formats(t *testing.T) {
	cfg := loadTestConfig(t, map[string]any{"pipeline.offline": true})
	srv, httpServer := startTestServer(t, cfg)

	task, err := srv.Service.CreateTask(context.Background(), "heat pumps", ports.ResearchModeQuick)
	require.NoError(t, err)
	srv.Service.Wait()

	out, err := execute(t, "--server", httpServer.URL, "status", task.ID, "--output", "json")
	require.NoError(t, err)
	var decoded ports.ResearchTask
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, ports.TaskStatusDone, decoded.Status)

	out, err = execute(t, "--server", httpServer.URL, "status", task.ID, "--output", "yaml")
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &generic))
	assert.Equal(t, "done", generic["status"])
	assert.Contains(t, generic, "evidence")

	_, err = execute(t, "--server", httpServer.URL, "status", task.ID, "--output", "xml")
	assert.ErrorContains(t, err, "unsupported output format")

	_, err = execute(t, "--server", httpServer.URL, "status", "missing-task")
	assert.ErrorIs(t, err, ports.ErrTaskNotFound)
}

func TestCancelCommand(t *testing.T) {
	cfg := loadTestConfig(t, map[string]any{"pipeline.offline": true})
	srv, httpServer := startTestServer(t, cfg)

	task, err := srv.Service.CreateTask(context.Background(), "heat pumps", ports.ResearchModeQuick)
	require.NoError(t, err)
	srv.Service.Wait()

	_, err = execute(t, "--server", httpServer.URL, "cancel", task.ID)
	assert.ErrorIs(t, err, ports.ErrTaskFrozen)

	out, err := execute(t, "--server", httpServer.URL, "cancel", "--delete", task.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DEEPRESEARCH_LLM_API_KEY", "sk-live-1234567890")

	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# env: DEEPRESEARCH_LLM_API_KEY")
	assert.Contains(t, out, "sk-****7890")
	assert.NotContains(t, out, "sk-live-1234567890")
	assert.True(t, strings.Contains(out, "server:"), out)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "tvl****cdef", maskSecret("tvly-0123456789abcdef"))
}
