package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return Execute(context.Background())
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadLinesSkipsBlank(t *testing.T) {
	path := writeTemp(t, "receipt.txt", "ACME FOODS\n\n  Tel (555) 010-2000  \n")
	lines, err := readLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME FOODS", "Tel (555) 010-2000"}, lines)

	_, err = readLines(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestParseBatchID(t *testing.T) {
	_, err := parseBatchID("nope")
	assert.Error(t, err)
	id, err := parseBatchID("6f1c1d5e-2b9a-4a47-9a53-0c1a8c0f6e11")
	require.NoError(t, err)
	assert.Equal(t, "6f1c1d5e-2b9a-4a47-9a53-0c1a8c0f6e11", id.String())
}

func TestDetectRunsWithoutStore(t *testing.T) {
	path := writeTemp(t, "orders.csv", "order_id,product_name,quantity,unit_price\n1001,Latte,2,4.50\n")
	require.NoError(t, execute(t, "detect", path))
	assert.Nil(t, conn)
}

func TestMemoryStoreCommands(t *testing.T) {
	require.NoError(t, execute(t, "--memory", "batches"))
	require.NotNil(t, service)

	assert.ErrorIs(t, execute(t, "--memory", "migrate", "version"), errNoDatabase)
	assert.Error(t, execute(t, "--memory", "status", "not-a-uuid"))
}
