package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

// comments start a line or follow whitespace, so URL fragments survive.
var commentPattern = regexp.MustCompile(`(^|\s)#.*$`)

// readRequirements returns the requirements listed in path, expanding nested
// -r entries relative to the file that includes them.
func readRequirements(fs afero.Fs, path string) ([]string, error) {
	return readRequirementsFile(fs, filepath.Clean(path), map[string]bool{})
}

func readRequirementsFile(fs afero.Fs, path string, open map[string]bool) ([]string, error) {
	if open[path] {
		return nil, fmt.Errorf("requirements file %s includes itself", path)
	}
	open[path] = true
	defer delete(open, path)

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read requirements file: %w", err)
	}
	var (
		reqs    []string
		pending string
		lineNo  int
	)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lineNo++
		line := pending + scanner.Text()
		pending = ""
		if strings.HasSuffix(line, `\`) {
			pending = strings.TrimSuffix(line, `\`)
			continue
		}
		line = strings.TrimSpace(commentPattern.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		if nested, ok := nestedFile(line); ok {
			if nested == "" {
				return nil, fmt.Errorf("%s:%d: missing file after %q", path, lineNo, line)
			}
			if !filepath.IsAbs(nested) {
				nested = filepath.Join(filepath.Dir(path), nested)
			}
			more, err := readRequirementsFile(fs, filepath.Clean(nested), open)
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, more...)
			continue
		}
		if strings.HasPrefix(line, "-") {
			return nil, fmt.Errorf("%s:%d: unsupported option %q", path, lineNo, line)
		}
		reqs = append(reqs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}
	if pending = strings.TrimSpace(pending); pending != "" {
		reqs = append(reqs, pending)
	}
	return reqs, nil
}

// nestedFile reports whether line is a -r or --requirement entry and returns its target.
func nestedFile(line string) (string, bool) {
	for _, prefix := range []string{"--requirement=", "--requirement", "-r"} {
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}
