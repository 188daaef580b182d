package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jupyterlite/piplite/internal/domain"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoMetadata = `Metadata-Version: 2.1
Name: demo
Version: 1.0.0
Requires-Python: >=3.8
Requires-Dist: attrs (>=23)
Requires-Dist: six ; extra == "compat"

Long description that mentions Requires-Dist: nothing.
`

func demoWheel(t *testing.T) (*domain.Wheel, []byte) {
	t.Helper()
	wheel, err := domain.ParseWheelFilename("demo-1.0.0-py3-none-any.whl")
	require.NoError(t, err)
	data := buildWheel(t, map[string]string{
		"demo/__init__.py":                      "VERSION = '1.0.0'\n",
		"demo/sub/mod.py":                       "",
		"demo-1.0.0.dist-info/METADATA":         demoMetadata,
		"demo-1.0.0.dist-info/RECORD":           "",
		"demo-1.0.0.data/purelib/demo_extra.py": "",
		"demo-1.0.0.data/scripts/demo":          "#!python\n",
	})
	return wheel, data
}

func TestWheelService_Metadata(t *testing.T) {
	t.Run("Should read the header block of METADATA", func(t *testing.T) {
		wheel, data := demoWheel(t)
		meta, err := NewWheelService(afero.NewMemMapFs()).Metadata(data, wheel)
		require.NoError(t, err)
		assert.Equal(t, "demo", meta.Name)
		assert.Equal(t, "1.0.0", meta.Version)
		assert.Equal(t, ">=3.8", meta.RequiresPython)
		assert.Equal(t, []string{"attrs (>=23)", `six ; extra == "compat"`}, meta.RequiresDist)
	})
	t.Run("Should fail on archives without dist-info", func(t *testing.T) {
		wheel, err := domain.ParseWheelFilename("demo-1.0.0-py3-none-any.whl")
		require.NoError(t, err)
		_, err = NewWheelService(afero.NewMemMapFs()).Metadata(buildWheel(t, map[string]string{"demo.py": ""}), wheel)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no .dist-info directory")
	})
	t.Run("Should fail on non zip data", func(t *testing.T) {
		wheel, err := domain.ParseWheelFilename("demo-1.0.0-py3-none-any.whl")
		require.NoError(t, err)
		_, err = NewWheelService(afero.NewMemMapFs()).Metadata([]byte("nope"), wheel)
		require.Error(t, err)
	})
}

func TestWheelService_Extract(t *testing.T) {
	ctx := context.Background()
	t.Run("Should install package files, purelib data and installer markers", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		wheel, data := demoWheel(t)
		files, err := NewWheelService(fs).Extract(ctx, data, wheel, "/site", "https://example.com/demo.whl")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"demo-1.0.0.dist-info/INSTALLER",
			"demo-1.0.0.dist-info/METADATA",
			"demo-1.0.0.dist-info/PIPLITE_SOURCE",
			"demo-1.0.0.dist-info/RECORD",
			"demo/__init__.py",
			"demo/sub/mod.py",
			"demo_extra.py",
		}, files)
		content, err := afero.ReadFile(fs, "/site/demo-1.0.0.dist-info/INSTALLER")
		require.NoError(t, err)
		assert.Equal(t, "piplite\n", string(content))
		content, err = afero.ReadFile(fs, "/site/demo-1.0.0.dist-info/PIPLITE_SOURCE")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/demo.whl\n", string(content))
		exists, err := afero.Exists(fs, "/site/demo")
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = afero.Exists(fs, filepath.Join("/site", "demo-1.0.0.data"))
		require.NoError(t, err)
		assert.False(t, exists)
	})
	t.Run("Should reject entries escaping the target", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		wheel, err := domain.ParseWheelFilename("demo-1.0.0-py3-none-any.whl")
		require.NoError(t, err)
		data := buildWheel(t, map[string]string{
			"demo-1.0.0.dist-info/METADATA": demoMetadata,
			"../evil.py":                    "",
		})
		_, err = NewWheelService(fs).Extract(ctx, data, wheel, "/site", "u")
		assert.ErrorIs(t, err, ErrUnsafePath)
		exists, _ := afero.Exists(fs, "/evil.py")
		assert.False(t, exists)
	})
}

func TestWheelService_Remove(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	svc := NewWheelService(fs)
	wheel, data := demoWheel(t)
	files, err := svc.Extract(ctx, data, wheel, "/site", "u")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/site/other.py", []byte(""), FilePermissions))

	require.NoError(t, svc.Remove(ctx, "/site", append(files, "demo/already-gone.py")))
	for _, dir := range []string{"/site/demo", "/site/demo-1.0.0.dist-info"} {
		exists, err := afero.Exists(fs, dir)
		require.NoError(t, err)
		assert.False(t, exists, dir)
	}
	exists, err := afero.Exists(fs, "/site/other.py")
	require.NoError(t, err)
	assert.True(t, exists)

	err = svc.Remove(ctx, "/site", []string{"../outside.py"})
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestWheelService_Backup(t *testing.T) {
	ctx := context.Background()
	t.Run("Should move files aside and bring them back", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		svc := NewWheelService(fs)
		wheel, data := demoWheel(t)
		files, err := svc.Extract(ctx, data, wheel, "/site", "u")
		require.NoError(t, err)

		require.NoError(t, svc.Backup(ctx, "/site", "/state/backup/demo", append(files, "demo/never-installed.py")))
		exists, err := afero.DirExists(fs, "/site/demo")
		require.NoError(t, err)
		assert.False(t, exists)
		content, err := afero.ReadFile(fs, "/state/backup/demo/demo/__init__.py")
		require.NoError(t, err)
		assert.Equal(t, "VERSION = '1.0.0'\n", string(content))

		require.NoError(t, afero.WriteFile(fs, "/site/demo/__init__.py", []byte("VERSION = '2.0.0'\n"), FilePermissions))
		require.NoError(t, svc.Restore(ctx, "/state/backup/demo", "/site", files))
		for _, name := range files {
			exists, err := afero.Exists(fs, filepath.Join("/site", name))
			require.NoError(t, err)
			assert.True(t, exists, name)
		}
		content, err = afero.ReadFile(fs, "/site/demo/__init__.py")
		require.NoError(t, err)
		assert.Equal(t, "VERSION = '1.0.0'\n", string(content))

		require.NoError(t, svc.Discard(ctx, "/state/backup"))
		exists, err = afero.DirExists(fs, "/state/backup")
		require.NoError(t, err)
		assert.False(t, exists)
	})
	t.Run("Should refuse paths escaping the target", func(t *testing.T) {
		svc := NewWheelService(afero.NewMemMapFs())
		err := svc.Backup(ctx, "/site", "/backup", []string{"../outside.py"})
		assert.ErrorIs(t, err, ErrUnsafePath)
	})
}

func TestInbound(t *testing.T) {
	cases := map[string]bool{
		"pkg/mod.py":     true,
		"pkg/../mod.py":  true,
		"../mod.py":      false,
		"/etc/passwd":    false,
		"pkg\\..\\x":     false,
		"":               false,
		"a/b/../../../c": false,
	}
	for name, want := range cases {
		assert.Equal(t, want, inbound(name), name)
	}
}
