package authz

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KenIjiwoye/immune-me-sub004/pkg/logger"
)

func writeTestDocuments(t *testing.T, dir string) {
	t.Helper()
	for name, data := range testDocuments(t) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644))
	}
}

func TestFileConfigStoreGetDocument(t *testing.T) {
	dir := t.TempDir()
	writeTestDocuments(t, dir)
	store := NewFileConfigStore(dir, logger.NewNop())

	data, err := store.GetDocument(context.Background(), DocTeamStructure)
	require.NoError(t, err)
	assert.Contains(t, string(data), "facilityTeamPrefix")
}

func TestFileConfigStoreMissingDocument(t *testing.T) {
	store := NewFileConfigStore(t.TempDir(), logger.NewNop())

	_, err := store.GetDocument(context.Background(), DocPermissionMatrix)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestFileConfigStoreBacksMatrixLoader(t *testing.T) {
	dir := t.TempDir()
	writeTestDocuments(t, dir)

	loader := NewMatrixLoader(NewFileConfigStore(dir, logger.NewNop()), logger.NewNop())
	require.NoError(t, loader.Initialize(context.Background()))

	_, ok := loader.Rule("patients", "read")
	assert.True(t, ok)
}

func TestFileConfigStoreWatchFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	writeTestDocuments(t, dir)
	store := NewFileConfigStore(dir, logger.NewNop())
	defer store.Close()

	changes := make(chan string, 16)
	require.NoError(t, store.Watch(func(document string) {
		changes <- document
	}))

	docs := testDocuments(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DocFacilityMappings+".json"), docs[DocFacilityMappings], 0o644))

	require.Eventually(t, func() bool {
		select {
		case name := <-changes:
			return name == DocFacilityMappings
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)
}
