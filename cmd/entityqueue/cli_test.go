package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kapetan-io/entityqueue"
	"github.com/kapetan-io/entityqueue/daemon"
	"github.com/kapetan-io/entityqueue/transport"
	"github.com/kapetan-io/tackle/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// syncBuffer is written to by the daemon logger from multiple goroutines
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startDaemon(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d, err := daemon.NewDaemon(ctx, daemon.Config{
		Log:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		ListenAddress: "localhost:0",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = d.Shutdown(context.Background())
	})
	return "http://" + d.Listener.Addr().String()
}

// runCLI executes the root command with args against the endpoint
func runCLI(t *testing.T, endpoint string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	cmd := newRootCommand()
	cmd.SetArgs(append([]string{"--endpoint", endpoint, "--actor", "editor"}, args...))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func randomQueueID() string {
	return strings.ToLower(random.String("queue_", 10))
}

func TestServerCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entityqueue.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: info
  handler: text
listen-address: localhost:0
queues:
  - id: featured_articles
    label: Featured Articles
    target-type: node
    handler: simple
`), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- startServer(ctx, &FlagParams{ConfigFile: path}, &out)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "HTTP Listening")
	}, 10*time.Second, 50*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for server to shutdown")
	}
	assert.Contains(t, out.String(), "Loaded config from file")
	assert.Contains(t, out.String(), "entityqueue "+entityqueue.Version)
}

func TestServerCommandInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entityqueue.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
queue-storage:
  driver: mongo
`), 0o600))

	err := startServer(context.Background(), &FlagParams{ConfigFile: path}, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo")

	err = startServer(context.Background(), &FlagParams{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")},
		io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "while reading config file")
}

func TestQueueCommands(t *testing.T) {
	endpoint := startDaemon(t)

	t.Run("CreateInfoUpdateDelete", func(t *testing.T) {
		id := randomQueueID()
		_, stderr, err := runCLI(t, endpoint, "create", id, "--label", "Front Page", "--max-size", "5")
		require.NoError(t, err)
		assert.Contains(t, stderr, fmt.Sprintf("Successfully created queue '%s'", id))

		stdout, _, err := runCLI(t, endpoint, "info", id, "--json")
		require.NoError(t, err)
		var info transport.QueueInfo
		require.NoError(t, json.Unmarshal([]byte(stdout), &info))
		assert.Equal(t, "Front Page", info.Label)
		assert.Equal(t, "node", info.TargetType)
		assert.Equal(t, "simple", info.Handler)
		assert.Equal(t, 5, info.MaxSize)
		assert.Equal(t, transport.Bool(true), info.Status)
		assert.Equal(t, []string{"node"}, info.Dependencies.Module)

		_, stderr, err = runCLI(t, endpoint, "update", id, "--label", "Home Page", "--disabled")
		require.NoError(t, err)
		assert.Contains(t, stderr, "Successfully updated queue")

		stdout, _, err = runCLI(t, endpoint, "info", id)
		require.NoError(t, err)
		assert.Contains(t, stdout, "Home Page")
		assert.Contains(t, stdout, "disabled")
		// Flags which were not provided are left unchanged
		assert.Contains(t, stdout, "Max size")
		assert.Contains(t, stdout, " 5 ")

		_, stderr, err = runCLI(t, endpoint, "delete", id)
		require.NoError(t, err)
		assert.Contains(t, stderr, "Successfully deleted 1 queue(s)")

		_, _, err = runCLI(t, endpoint, "info", id)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue does not exist")
	})

	t.Run("UpdateWithoutFlags", func(t *testing.T) {
		_, _, err := runCLI(t, endpoint, "update", "featured")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no update flags provided")
	})

	t.Run("CreateInvalidID", func(t *testing.T) {
		_, _, err := runCLI(t, endpoint, "create", "Not-Valid")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue id is invalid")
	})

	t.Run("CreateUnknownTargetType", func(t *testing.T) {
		_, _, err := runCLI(t, endpoint, "create", randomQueueID(), "--target-type", "spaceship")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "entity type 'spaceship' does not exist")
	})

	t.Run("ListAndExport", func(t *testing.T) {
		first := "export_a_" + randomQueueID()
		second := "export_b_" + randomQueueID()
		_, _, err := runCLI(t, endpoint, "create", first, "--target-type", "user", "--handler", "multiple")
		require.NoError(t, err)
		_, _, err = runCLI(t, endpoint, "create", second, "--setting", "color=blue")
		require.NoError(t, err)

		stdout, stderr, err := runCLI(t, endpoint, "list")
		require.NoError(t, err)
		assert.Contains(t, stdout, first)
		assert.Contains(t, stdout, second)
		assert.Contains(t, stderr, "Found")

		stdout, _, err = runCLI(t, endpoint, "list", "--target-type", "user", "--json")
		require.NoError(t, err)
		var list transport.QueuesListResponse
		require.NoError(t, json.Unmarshal([]byte(stdout), &list))
		require.NotEmpty(t, list.Items)
		for _, q := range list.Items {
			assert.Equal(t, "user", q.TargetType)
		}

		stdout, _, err = runCLI(t, endpoint, "export", first, second)
		require.NoError(t, err)
		var file exportFile
		require.NoError(t, yaml.Unmarshal([]byte(stdout), &file))
		require.Len(t, file.Queues, 2)
		assert.Equal(t, first, file.Queues[0].ID)
		assert.Equal(t, "multiple", file.Queues[0].Handler)
		assert.Equal(t, "user", file.Queues[0].TargetType)
		assert.Equal(t, second, file.Queues[1].ID)
		assert.Equal(t, map[string]string{"color": "blue"}, file.Queues[1].HandlerConfiguration)

		// Exporting without ids includes every queue
		stdout, _, err = runCLI(t, endpoint, "export")
		require.NoError(t, err)
		file = exportFile{}
		require.NoError(t, yaml.Unmarshal([]byte(stdout), &file))
		var ids []string
		for _, q := range file.Queues {
			ids = append(ids, q.ID)
		}
		assert.Contains(t, ids, first)
		assert.Contains(t, ids, second)
	})
}

func TestSubqueueCommands(t *testing.T) {
	endpoint := startDaemon(t)

	t.Run("Multiple", func(t *testing.T) {
		id := randomQueueID()
		_, _, err := runCLI(t, endpoint, "create", id, "--handler", "multiple")
		require.NoError(t, err)

		_, stderr, err := runCLI(t, endpoint, "subqueues", "create", id, id+"_north", "--label", "North")
		require.NoError(t, err)
		assert.Contains(t, stderr, "Successfully created subqueue")

		stdout, _, err := runCLI(t, endpoint, "subqueues", "list", id, "--json")
		require.NoError(t, err)
		var list transport.SubqueuesListResponse
		require.NoError(t, json.Unmarshal([]byte(stdout), &list))
		require.Len(t, list.Items, 1)
		assert.Equal(t, id+"_north", list.Items[0].Name)
		assert.Equal(t, "North", list.Items[0].Label)
		assert.Equal(t, "editor", list.Items[0].UID)

		_, _, err = runCLI(t, endpoint, "subqueues", "delete", id, id+"_north")
		require.NoError(t, err)

		stdout, _, err = runCLI(t, endpoint, "subqueues", "list", id)
		require.NoError(t, err)
		assert.Contains(t, stdout, "No subqueues found")
	})

	t.Run("SimpleRefusesSecondSubqueue", func(t *testing.T) {
		id := randomQueueID()
		_, _, err := runCLI(t, endpoint, "create", id)
		require.NoError(t, err)

		stdout, _, err := runCLI(t, endpoint, "subqueues", "list", id)
		require.NoError(t, err)
		assert.Contains(t, stdout, id)

		_, _, err = runCLI(t, endpoint, "subqueues", "create", id, id+"_extra")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not support multiple subqueues")
	})
}

func TestRegistryCommands(t *testing.T) {
	endpoint := startDaemon(t)

	t.Run("Handlers", func(t *testing.T) {
		stdout, _, err := runCLI(t, endpoint, "handlers")
		require.NoError(t, err)
		assert.Contains(t, stdout, "simple")
		assert.Contains(t, stdout, "multiple")
	})

	t.Run("EntityTypes", func(t *testing.T) {
		stdout, _, err := runCLI(t, endpoint, "entity-types", "--json")
		require.NoError(t, err)
		var list transport.EntityTypesListResponse
		require.NoError(t, json.Unmarshal([]byte(stdout), &list))
		assert.Contains(t, list.Items, transport.EntityType{
			ID: "taxonomy_term", Label: "Taxonomy term", Provider: "taxonomy"})
	})

	t.Run("Checksum", func(t *testing.T) {
		before, _, err := runCLI(t, endpoint, "checksum", "config:entity_queue_list")
		require.NoError(t, err)

		_, _, err = runCLI(t, endpoint, "create", randomQueueID())
		require.NoError(t, err)

		after, _, err := runCLI(t, endpoint, "checksum", "config:entity_queue_list")
		require.NoError(t, err)
		assert.NotEqual(t, before, after)
	})

	t.Run("UninstallModule", func(t *testing.T) {
		_, _, err := runCLI(t, endpoint, "create", randomQueueID(), "--target-type", "media")
		require.NoError(t, err)

		_, _, err = runCLI(t, endpoint, "uninstall-module", "media")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "module 'media' is required by queues")

		_, stderr, err := runCLI(t, endpoint, "uninstall-module", "comment")
		require.NoError(t, err)
		assert.Contains(t, stderr, "Successfully uninstalled module 'comment'")

		stdout, _, err := runCLI(t, endpoint, "entity-types")
		require.NoError(t, err)
		assert.NotContains(t, stdout, "comment")
	})
}
