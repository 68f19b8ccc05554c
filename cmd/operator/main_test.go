package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruteri/azure-storage-migration-kit/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

type exitRecorder struct {
	code int
}

// run executes the operator with a fresh factory and returns stdout.
func run(t *testing.T, exit *exitRecorder, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(_ *cli.Context, err error) {
		if coder, ok := err.(cli.ExitCoder); ok && exit != nil {
			exit.code = coder.ExitCode()
		}
	}
	err := app.Run(append([]string{"operator"}, args...))
	return stdout.String(), err
}

func memoryService(t *testing.T, account string) *storage.MemoryService {
	t.Helper()
	svc, err := clientFactory(slog.New(slog.NewTextHandler(io.Discard, nil))).ServiceFor(context.Background(), "memory://"+account)
	require.NoError(t, err)
	return svc.(*storage.MemoryService)
}

func resetFactory(t *testing.T) {
	t.Helper()
	factory = nil
	entityMetricsSrv = nil
	t.Cleanup(func() {
		factory = nil
		entityMetricsSrv = nil
	})
}

func TestCheckBlobMigration(t *testing.T) {
	resetFactory(t)
	target := memoryService(t, "target")
	target.PutBlob("c1", "a", nil, map[string]string{"migrated": "true"})
	target.PutBlob("c2", "a", nil, map[string]string{"migrated": "true"})

	out, err := run(t, nil, "check-blob-migration",
		"--id", "scan-1",
		"--stateful-storage", "memory://state",
		"--target-storage", "memory://target",
		"--tag-name", "migrated", "--tag-value", "true")
	require.NoError(t, err)
	assert.Contains(t, out, "scanned 2 blobs in 2 containers (0 skipped) of target")

	target.PutBlob("c3", "a", nil, map[string]string{"migrated": "false"})
	exit := &exitRecorder{}
	_, err = run(t, exit, "check-blob-migration",
		"--id", "scan-1",
		"--stateful-storage", "memory://state",
		"--target-storage", "memory://target",
		"--tag-name", "migrated", "--tag-value", "true")
	require.Error(t, err)
	assert.Equal(t, exitMigrationIncomplete, exit.code)
	assert.Contains(t, err.Error(), "c3/a")
}

func TestCheckBlobMigration_TagFlagsTogether(t *testing.T) {
	resetFactory(t)
	exit := &exitRecorder{}
	_, err := run(t, exit, "check-blob-migration",
		"--id", "scan-1",
		"--stateful-storage", "memory://state",
		"--target-storage", "memory://target",
		"--tag-name", "migrated")
	require.Error(t, err)
	assert.Equal(t, 1, exit.code)
}

func TestBlobCommands(t *testing.T) {
	resetFactory(t)
	memoryService(t, "new").PutBlob("docs", "new.json", []byte(`{"v":2}`), nil)
	memoryService(t, "old").PutBlob("docs-v1", "old.json", []byte(`{"v":1}`), nil)

	common := []string{"--new-storage", "memory://new", "--old-storage", "memory://old", "--container", "docs", "--fallback-container", "docs-v1"}

	out, err := run(t, nil, append([]string{"blob-exists", "--blob", "old.json"}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, err = run(t, nil, append([]string{"blob-exists", "--blob", "missing.json"}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)

	out, err = run(t, nil, append([]string{"get-blob", "--blob", "new.json"}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, out)

	path := filepath.Join(t.TempDir(), "old.json")
	_, err = run(t, nil, append([]string{"get-blob", "--blob", "old.json", "--output", path}, common...)...)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(data))

	out, err = run(t, nil, append([]string{"get-blob", "--blob", "old.json", "--sas"}, common...)...)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "memory://old/docs-v1/old.json?"), out)
	assert.Contains(t, out, "sp=r")

	exit := &exitRecorder{}
	_, err = run(t, exit, "blob-exists", "--container", "docs", "--blob", "a")
	require.Error(t, err)
	assert.Equal(t, 1, exit.code)
}

func TestEntityCommands(t *testing.T) {
	resetFactory(t)
	common := []string{"--new-storage", "memory://new", "--old-storage", "memory://old", "--table", "users"}

	out, err := run(t, nil, append([]string{"create-entity", "--partition-key", "tenant", "--row-key", "1", "--properties", `{"email":"a@example.com"}`}, common...)...)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))

	_, err = run(t, nil, "create-entity", "--old-storage", "memory://old", "--table", "users", "--partition-key", "tenant", "--row-key", "2")
	require.NoError(t, err)

	out, err = run(t, nil, append([]string{"list-entities"}, common...)...)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2, "entity 1 exists on both tables and is listed once")

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, map[string]any{"PartitionKey": "tenant", "RowKey": "1", "email": "a@example.com"}, first)

	exit := &exitRecorder{}
	_, err = run(t, exit, append([]string{"create-entity", "--partition-key", "tenant", "--row-key", "3", "--properties", `[1]`}, common...)...)
	require.Error(t, err)
	assert.Equal(t, 1, exit.code)
}

func TestCreateEntity_CountsLegacyWriteFailures(t *testing.T) {
	resetFactory(t)
	entity := []string{"create-entity", "--table", "users", "--partition-key", "tenant", "--row-key", "1"}

	_, err := run(t, nil, append(entity, "--old-storage", "memory://old")...)
	require.NoError(t, err)

	// the legacy table already holds the entity, so only the new table accepts it
	out, err := run(t, nil, append(entity, "--new-storage", "memory://new", "--old-storage", "memory://old")...)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))

	m, err := entityMetrics()
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rr.Body.String(), `azure_migration_kit_secondary_entity_write_failures_total{table="users"} 1`)
}
