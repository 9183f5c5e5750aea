package blob

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutOpenList(t *testing.T) {
	fs := LocalFS{Root: t.TempDir()}

	rel, err := fs.Put("labels/b.zpl", strings.NewReader("^XA^XZ"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("labels", "b.zpl"), rel)
	_, err = fs.Put("labels/a.zpl", strings.NewReader("first"))
	require.NoError(t, err)

	assert.True(t, fs.Exists("labels/b.zpl"))
	assert.False(t, fs.Exists("labels/c.zpl"))

	f, err := fs.Open("labels/b.zpl")
	require.NoError(t, err)
	defer f.Close()
	raw, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "^XA^XZ", string(raw))

	files, err := fs.List("labels")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("labels", "a.zpl"), filepath.Join("labels", "b.zpl")}, files)
}

func TestListMissingDir(t *testing.T) {
	files, err := LocalFS{Root: t.TempDir()}.List("labels")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRejectsEscapingPaths(t *testing.T) {
	fs := LocalFS{Root: t.TempDir()}
	for _, p := range []string{"../x", "/etc/passwd", "labels/../../x"} {
		_, err := fs.Put(p, strings.NewReader("x"))
		assert.Error(t, err, p)
		assert.False(t, fs.Exists(p), p)
	}
}
