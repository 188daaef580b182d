package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/jupyterlite/piplite/internal/domain"
	"github.com/jupyterlite/piplite/internal/logger"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// wheelService is the implementation of the WheelService interface.
type wheelService struct {
	fs afero.Fs
}

// NewWheelService creates a new WheelService writing through fs.
func NewWheelService(fs afero.Fs) WheelService {
	return &wheelService{fs: fs}
}

// Metadata implements WheelService.
func (s *wheelService) Metadata(data []byte, wheel *domain.Wheel) (*Metadata, error) {
	zr, err := openWheel(data, wheel)
	if err != nil {
		return nil, err
	}
	distInfo := findDistInfo(zr, wheel)
	if distInfo == "" {
		return nil, fmt.Errorf("%s: no .dist-info directory", wheel.Filename)
	}
	raw, err := readEntry(zr, distInfo+"/METADATA")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", wheel.Filename, err)
	}
	// The header block ends at the first blank line; the rest is the description.
	reader := textproto.NewReader(bufio.NewReader(io.MultiReader(bytes.NewReader(raw), strings.NewReader("\n\n"))))
	header, err := reader.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%s: failed to parse METADATA: %w", wheel.Filename, err)
	}
	return &Metadata{
		Name:           header.Get("Name"),
		Version:        header.Get("Version"),
		RequiresDist:   header.Values("Requires-Dist"),
		RequiresPython: header.Get("Requires-Python"),
	}, nil
}

// Extract implements WheelService.
func (s *wheelService) Extract(
	ctx context.Context,
	data []byte,
	wheel *domain.Wheel,
	targetDir, sourceURL string,
) ([]string, error) {
	zr, err := openWheel(data, wheel)
	if err != nil {
		return nil, err
	}
	distInfo := findDistInfo(zr, wheel)
	if distInfo == "" {
		return nil, fmt.Errorf("%s: no .dist-info directory", wheel.Filename)
	}
	var installed []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		dest, ok := installPath(f.Name, wheel)
		if !ok {
			logger.DebugKV(ctx, "skipping data entry", "entry", f.Name)
			continue
		}
		if !inbound(dest) {
			return installed, fmt.Errorf("%w: %s in %s", ErrUnsafePath, f.Name, wheel.Filename)
		}
		if err := s.writeEntry(f, filepath.Join(targetDir, filepath.FromSlash(dest))); err != nil {
			return installed, fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
		installed = append(installed, dest)
	}
	extra := map[string]string{
		distInfo + "/INSTALLER":      InstallerName + "\n",
		distInfo + "/PIPLITE_SOURCE": sourceURL + "\n",
	}
	for name, content := range extra {
		target := filepath.Join(targetDir, filepath.FromSlash(name))
		if err := afero.WriteFile(s.fs, target, []byte(content), FilePermissions); err != nil {
			return installed, fmt.Errorf("failed to write %s: %w", name, err)
		}
		installed = append(installed, name)
	}
	sort.Strings(installed)
	return slices.Compact(installed), nil
}

// Remove implements WheelService.
func (s *wheelService) Remove(ctx context.Context, targetDir string, files []string) error {
	var result *multierror.Error
	dirs := map[string]struct{}{}
	for _, name := range files {
		if !inbound(name) {
			result = multierror.Append(result, fmt.Errorf("%w: %s", ErrUnsafePath, name))
			continue
		}
		target := filepath.Join(targetDir, filepath.FromSlash(name))
		if err := s.fs.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			result = multierror.Append(result, fmt.Errorf("failed to remove %s: %w", name, err))
			continue
		}
		addParents(dirs, name)
	}
	s.prune(ctx, targetDir, dirs)
	return result.ErrorOrNil()
}

// Backup implements WheelService.
func (s *wheelService) Backup(ctx context.Context, targetDir, backupDir string, files []string) error {
	dirs := map[string]struct{}{}
	defer s.prune(ctx, targetDir, dirs)
	for _, name := range files {
		if !inbound(name) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, name)
		}
		src := filepath.Join(targetDir, filepath.FromSlash(name))
		if ok, err := afero.Exists(s.fs, src); err != nil || !ok {
			continue
		}
		if err := s.move(src, filepath.Join(backupDir, filepath.FromSlash(name))); err != nil {
			return fmt.Errorf("failed to back up %s: %w", name, err)
		}
		addParents(dirs, name)
	}
	return nil
}

// Restore implements WheelService.
func (s *wheelService) Restore(_ context.Context, backupDir, targetDir string, files []string) error {
	var result *multierror.Error
	for _, name := range files {
		if !inbound(name) {
			result = multierror.Append(result, fmt.Errorf("%w: %s", ErrUnsafePath, name))
			continue
		}
		src := filepath.Join(backupDir, filepath.FromSlash(name))
		if ok, err := afero.Exists(s.fs, src); err != nil || !ok {
			continue
		}
		if err := s.move(src, filepath.Join(targetDir, filepath.FromSlash(name))); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to restore %s: %w", name, err))
		}
	}
	return result.ErrorOrNil()
}

// Discard implements WheelService.
func (s *wheelService) Discard(_ context.Context, backupDir string) error {
	if err := s.fs.RemoveAll(backupDir); err != nil {
		return fmt.Errorf("failed to remove backup %s: %w", backupDir, err)
	}
	return nil
}

// move renames src to dst, copying when the rename crosses filesystems.
func (s *wheelService) move(src, dst string) error {
	if err := s.fs.MkdirAll(filepath.Dir(dst), DirPermissions); err != nil {
		return err
	}
	if err := s.fs.Rename(src, dst); err == nil {
		return nil
	}
	data, err := afero.ReadFile(s.fs, src)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(s.fs, dst, data, FilePermissions); err != nil {
		return err
	}
	return s.fs.Remove(src)
}

// prune removes the directories in dirs left empty under root, deepest first
// so that parents become empty in turn.
func (s *wheelService) prune(ctx context.Context, root string, dirs map[string]struct{}) {
	ordered := make([]string, 0, len(dirs))
	for dir := range dirs {
		ordered = append(ordered, dir)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return strings.Count(ordered[i], "/") > strings.Count(ordered[j], "/")
	})
	for _, dir := range ordered {
		target := filepath.Join(root, filepath.FromSlash(dir))
		if empty, err := afero.IsEmpty(s.fs, target); err == nil && empty {
			if err := s.fs.Remove(target); err != nil {
				logger.DebugKV(ctx, "failed to prune directory", "dir", dir, "error", err)
			}
		}
	}
}

func addParents(dirs map[string]struct{}, name string) {
	for dir := path.Dir(name); dir != "." && dir != "/"; dir = path.Dir(dir) {
		dirs[dir] = struct{}{}
	}
}

func (s *wheelService) writeEntry(f *zip.File, target string) error {
	if err := s.fs.MkdirAll(filepath.Dir(target), DirPermissions); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := s.fs.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, FilePermissions)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func openWheel(data []byte, wheel *domain.Wheel) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	// A reader flagging insecure entry names is still usable; entries are checked one by one.
	if err != nil && zr == nil {
		return nil, fmt.Errorf("%s is not a valid wheel archive: %w", wheel.Filename, err)
	}
	return zr, nil
}

// findDistInfo returns the top-level .dist-info directory, preferring the
// one named after the wheel file.
func findDistInfo(zr *zip.Reader, wheel *domain.Wheel) string {
	want := wheel.DistInfoDir()
	var found string
	for _, f := range zr.File {
		dir, rest, ok := strings.Cut(f.Name, "/")
		if !ok || rest != "METADATA" || !strings.HasSuffix(dir, ".dist-info") {
			continue
		}
		if strings.EqualFold(dir, want) {
			return dir
		}
		if found == "" {
			found = dir
		}
	}
	return found
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found", name)
}

// installPath maps an archive entry to its location below the target
// directory. Entries of the .data directory other than purelib and platlib
// are not installed.
func installPath(name string, wheel *domain.Wheel) (string, bool) {
	top, rest, ok := strings.Cut(name, "/")
	if !ok || !strings.HasSuffix(top, ".data") || !strings.EqualFold(top, wheel.DataDir()) {
		return name, true
	}
	scheme, rest, ok := strings.Cut(rest, "/")
	if !ok || (scheme != "purelib" && scheme != "platlib") {
		return "", false
	}
	return rest, true
}

// inbound reports whether a slash separated archive path stays inside the
// directory it is joined to. Only syntactic validation is applied.
func inbound(name string) bool {
	if name == "" || strings.Contains(name, "\\") || path.IsAbs(name) {
		return false
	}
	return filepath.IsLocal(filepath.FromSlash(name))
}
