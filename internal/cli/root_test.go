package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func memoryEnv(t *testing.T) {
	t.Setenv("LOCAL_STORE", "memory")
	t.Setenv("SYNC_POLICY_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("GCP_PROJECT_ID", "")
	t.Setenv("ELASTIC_URL", "")
	t.Setenv("LOG_FILE_PATH", filepath.Join(t.TempDir(), "app.log"))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd("test")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	root := NewRootCmd("1.2.3")
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "sync", "sync-all", "audit", "cleanup"})
	assert.Equal(t, "1.2.3", root.Version)
}

func TestAuditCommand_JSON(t *testing.T) {
	memoryEnv(t)
	out, err := run(t, "audit", "u1")
	require.NoError(t, err)

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "u1", report["user_id"])
	assert.Equal(t, false, report["remote_checked"])
}

func TestAuditCommand_XLSX(t *testing.T) {
	memoryEnv(t)
	path := filepath.Join(t.TempDir(), "audit.xlsx")
	out, err := run(t, "audit", "u1", "--xlsx", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Summary")
}

func TestCleanupCommand_DryRunByDefault(t *testing.T) {
	memoryEnv(t)
	out, err := run(t, "cleanup", "u1")
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, true, result["dry_run"])
}

func TestCleanupCommand_RejectsUnknownMode(t *testing.T) {
	memoryEnv(t)
	_, err := run(t, "cleanup", "u1", "--mode", "aggressive")
	assert.Error(t, err)
}

func TestSyncCommand_RequiresUser(t *testing.T) {
	_, err := run(t, "sync")
	assert.Error(t, err)
}
