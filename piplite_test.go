package piplite_test

import (
	"bytes"
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/jupyterlite/piplite"
	"github.com/jupyterlite/piplite/pkg/installer"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	require.NotEmpty(t, piplite.Version)
	_, err := semver.StrictNewVersion(piplite.Version)
	assert.NoError(t, err)
}

func TestExportedNames(t *testing.T) {
	fset := token.NewFileSet()
	pkgs, err := parser.ParseDir(fset, ".", func(fi os.FileInfo) bool {
		return !strings.HasSuffix(fi.Name(), "_test.go")
	}, 0)
	require.NoError(t, err)
	require.Contains(t, pkgs, "piplite")
	var exported []string
	for _, file := range pkgs["piplite"].Files {
		for name, obj := range file.Scope.Objects {
			if ast.IsExported(name) {
				exported = append(exported, name+":"+obj.Kind.String())
			}
		}
		for _, decl := range file.Decls {
			if fn, ok := decl.(*ast.FuncDecl); ok && fn.Recv != nil && fn.Name.IsExported() {
				exported = append(exported, fn.Name.Name+":method")
			}
		}
	}
	sort.Strings(exported)
	assert.Equal(t, []string{"Install:func", "Version:const"}, exported)
}

func TestInstall(t *testing.T) {
	wheel := realWheel(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/all.json":
			_, _ = w.Write([]byte(`{"real-pkg": {"releases": {"1.0.0": [
				{"filename": "real_pkg-1.0.0-py3-none-any.whl", "url": "real_pkg-1.0.0-py3-none-any.whl"}]}}}`))
		case "/real_pkg-1.0.0-py3-none-any.whl":
			_, _ = w.Write(wheel)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	newInstaller := func(t *testing.T) *installer.Installer {
		root := t.TempDir()
		cfg := installer.DefaultConfig()
		cfg.URLs = []string{server.URL + "/all.json"}
		cfg.DisablePyPI = true
		cfg.TargetDir = filepath.Join(root, "site-packages")
		cfg.CacheDir = filepath.Join(root, "cache")
		cfg.StateDir = filepath.Join(root, "state")
		cfg.RetryCount = 0
		inst, err := installer.New(cfg)
		require.NoError(t, err)
		return inst
	}
	ctx := context.Background()
	t.Cleanup(func() { installer.SetDefault(nil) })

	t.Run("Should return the implementation error unchanged", func(t *testing.T) {
		installer.SetDefault(newInstaller(t))
		direct := installer.Install(ctx, []string{"nonexistent-pkg"})
		installer.SetDefault(newInstaller(t))
		facade := piplite.Install(ctx, []string{"nonexistent-pkg"})
		require.Error(t, facade)
		assert.ErrorIs(t, facade, installer.ErrPackageNotFound)
		assert.Equal(t, direct, facade)
		assert.Equal(t, direct.Error(), facade.Error())
	})
	t.Run("Should return nil when the implementation succeeds", func(t *testing.T) {
		inst := newInstaller(t)
		installer.SetDefault(inst)
		require.NoError(t, piplite.Install(ctx, []string{"real-pkg"}))
		pkgs, err := inst.List(ctx)
		require.NoError(t, err)
		require.Len(t, pkgs, 1)
		assert.Equal(t, "real-pkg", pkgs[0].Name)

		installer.SetDefault(newInstaller(t))
		assert.NoError(t, installer.Install(ctx, []string{"real-pkg"}))
	})
}

func realWheel(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"real_pkg/__init__.py":              "",
		"real_pkg-1.0.0.dist-info/METADATA": "Metadata-Version: 2.1\nName: real-pkg\nVersion: 1.0.0\n",
		"real_pkg-1.0.0.dist-info/WHEEL":    "Wheel-Version: 1.0\nRoot-Is-Purelib: true\n",
	} {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
