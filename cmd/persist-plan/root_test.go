package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mapping = `
entities:
  - name: User
    id: {name: id, type: int64}
    lock: version
    properties:
      - {name: email, type: string}
      - {name: version, type: int64, version: true}
  - name: Event
    id: {name: id, type: int64}
    properties:
      - {name: name, type: string}
`

func writeMapping(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPrintPlans(t *testing.T) {
	path := writeMapping(t, mapping)
	out, err := execute(t, "--dialect", "postgres", "--id", "Event=identity", path)
	require.NoError(t, err)
	assert.Contains(t, out, "-- Event\n")
	assert.Contains(t, out, "-- User\n")
	assert.Less(t, strings.Index(out, "-- Event"), strings.Index(out, "-- User"), "entities are printed by name")
	assert.Contains(t, out, `INSERT INTO "users" ("email", "version", "id") VALUES ($1, $2, $3);`)
	assert.Contains(t, out, `RETURNING "id"`)

	out, err = execute(t, "--dialect", "mysql", path)
	require.NoError(t, err)
	assert.Contains(t, out, "INSERT INTO `users`")
}

func TestPrintPlansErrors(t *testing.T) {
	path := writeMapping(t, mapping)
	_, err := execute(t, "--dialect", "oracle", path)
	assert.Error(t, err)

	_, err = execute(t, "--dialect", "postgres", "--id", "Event=snowflake", path)
	assert.ErrorContains(t, err, "unknown identifier generator")

	_, err = execute(t, "--dialect", "postgres", writeMapping(t, "entities:\n  - name: Loose\n"))
	assert.Error(t, err, "an entity without identifier is rejected")

	_, err = execute(t, "--dialect", "postgres")
	assert.Error(t, err, "the mapping file is required")
}

func TestConfigFileAndPing(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "persist.yaml")
	require.NoError(t, os.WriteFile(config, []byte("dialect: sqlite\nbatch_size: 20\n"), 0o600))
	path := writeMapping(t, mapping)

	out, err := execute(t, "--config", config, "--dsn", filepath.Join(dir, "app.db"), path)
	require.NoError(t, err)
	assert.Contains(t, out, `INSERT INTO "users" ("email", "version", "id") VALUES (?, ?, ?);`)
}

// syncBuffer guards a buffer written by the watch loop.
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

func TestWatch(t *testing.T) {
	path := writeMapping(t, mapping)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out, errOut syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, &out, &errOut, path, options{dialect: "postgres", watch: true, logLevel: "info"})
	}()
	require.Eventually(t, func() bool {
		return strings.Contains(errOut.String(), "watching mapping")
	}, 5*time.Second, 10*time.Millisecond)

	changed := strings.ReplaceAll(mapping, "name: Event", "name: Audit")
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o600))
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "-- Audit")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
