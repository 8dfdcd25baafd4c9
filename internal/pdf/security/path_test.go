package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) (*PathValidator, string) {
	t.Helper()
	dir := t.TempDir()
	v, err := NewPathValidator(dir)
	require.NoError(t, err)
	return v, v.Root()
}

func TestNewPathValidator(t *testing.T) {
	_, err := NewPathValidator("")
	assert.Error(t, err)

	v, err := NewPathValidator("/non/existent/path")
	require.NoError(t, err)
	assert.Equal(t, "/non/existent/path", v.Root())
}

func TestPathValidator_Resolve(t *testing.T) {
	v, root := newValidator(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "week"), 0o755))

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "relative", path: "bulletin.pdf", want: filepath.Join(root, "bulletin.pdf")},
		{name: "nested", path: "week/bulletin.pdf", want: filepath.Join(root, "week", "bulletin.pdf")},
		{name: "absolute_inside", path: filepath.Join(root, "a.pdf"), want: filepath.Join(root, "a.pdf")},
		{name: "root_itself", path: root, want: root},
		{name: "not_yet_created_dir", path: "new/out.pdf", want: filepath.Join(root, "new", "out.pdf")},
		{name: "empty", path: "  ", wantErr: true},
		{name: "null_byte", path: "a\x00.pdf", wantErr: true},
		{name: "traversal", path: "../escape.pdf", wantErr: true},
		{name: "absolute_outside", path: "/etc/passwd", wantErr: true},
		{name: "sibling_prefix", path: root + "-other/a.pdf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Resolve(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathValidator_ResolveSymlinkEscape(t *testing.T) {
	v, root := newValidator(t)
	outside := t.TempDir()

	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err := v.Resolve("link/secret.pdf")
	assert.Error(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(root, "week"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "week"), filepath.Join(root, "inner")))
	_, err = v.Resolve("inner/a.pdf")
	assert.NoError(t, err)

	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "dangling")))
	_, err = v.Resolve("dangling/a.pdf")
	assert.Error(t, err)
}

func TestPathValidator_ResolvePDF(t *testing.T) {
	v, _ := newValidator(t)

	_, err := v.ResolvePDF("bulletin.PDF")
	assert.NoError(t, err)

	_, err = v.ResolvePDF("notes.txt")
	assert.Error(t, err)

	_, err = v.ResolvePDF("../outside.pdf")
	assert.Error(t, err)
}
