package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistDownload(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "out.bin")
	data := []byte{0x00, 0xff, 0x10, 0x00}

	require.NoError(t, PersistDownload(target, data))

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, data, content)

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestPersistDownloadOverwrites(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(target, []byte("old content"), 0644))

	require.NoError(t, PersistDownload(target, []byte("new")))

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))
}

func TestPersistDownloadEmpty(t *testing.T) {
	target := filepath.Join(t.TempDir(), "empty")

	require.NoError(t, PersistDownload(target, []byte{}))

	fi, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, int64(0), fi.Size())
}

func TestPersistDownloadIntoFileFails(t *testing.T) {
	dir := t.TempDir()
	blocker := writeFile(t, dir, "blocker", []byte("x"))

	err := PersistDownload(filepath.Join(blocker, "out.txt"), []byte("data"))
	assert.Error(t, err)
}

func TestUniqueDownloadPath(t *testing.T) {
	dir := t.TempDir()

	first := UniqueDownloadPath(dir, "report.pdf")
	assert.Equal(t, filepath.Join(dir, "report.pdf"), first)

	writeFile(t, dir, "report.pdf", []byte("x"))

	second := UniqueDownloadPath(dir, "report.pdf")
	assert.NotEqual(t, first, second)
	assert.Regexp(t, `report_\d+\.pdf$`, second)

	// names from the wire never escape dir
	assert.Equal(t, filepath.Join(dir, "passwd"), UniqueDownloadPath(dir, "../../etc/passwd"))
}
