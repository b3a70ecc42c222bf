// Package bundle packages a local source tree into a tar payload that can be
// streamed to a device's extraction command.
package bundle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/go-archive"
)

const (
	// ManifestFile marks the root of a runtime project.
	ManifestFile = "package.json"
	// IgnoreFile lists patterns excluded from the payload, one per line.
	IgnoreFile = ".deployignore"
)

// defaultExcludes are never shipped to the device.
var defaultExcludes = []string{".git", IgnoreFile}

// Options controls packaging.
type Options struct {
	// Runtime packages the whole runtime project: the root is the nearest
	// ancestor of the entry point holding a package manifest.
	Runtime bool
	// Exclude adds patterns to the ones read from the ignore file.
	Exclude []string
}

// Payload is a packaged source tree.
type Payload struct {
	Bytes []byte
	Size  int
	// Root is the local directory that was archived.
	Root string
	// Entry is the entry point relative to Root, slash separated.
	Entry string
}

// Error reports a packaging failure.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to package %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Packager turns an entry point's file tree into a single payload.
type Packager interface {
	Package(entryPoint string, opts Options) (*Payload, error)
}

// TarPackager builds uncompressed tar payloads.
type TarPackager struct{}

// Package archives the project containing entryPoint.
func (TarPackager) Package(entryPoint string, opts Options) (*Payload, error) {
	root, entry, err := ResolveProject(entryPoint, opts.Runtime)
	if err != nil {
		return nil, &Error{Path: entryPoint, Err: err}
	}

	excludes, err := readIgnoreFile(filepath.Join(root, IgnoreFile))
	if err != nil {
		return nil, &Error{Path: root, Err: err}
	}
	excludes = append(excludes, defaultExcludes...)
	excludes = append(excludes, opts.Exclude...)

	rc, err := archive.TarWithOptions(root, &archive.TarOptions{
		ExcludePatterns: excludes,
	})
	if err != nil {
		return nil, &Error{Path: root, Err: err}
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, &Error{Path: root, Err: err}
	}

	return &Payload{
		Bytes: buf.Bytes(),
		Size:  buf.Len(),
		Root:  root,
		Entry: entry,
	}, nil
}

// ResolveProject returns the directory to archive and the entry point's path
// relative to it. Without runtime the entry's own directory is the root.
func ResolveProject(entryPoint string, runtime bool) (root, entry string, err error) {
	abs, err := filepath.Abs(entryPoint)
	if err != nil {
		return "", "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", "", err
	}
	if info.IsDir() {
		return "", "", fmt.Errorf("entry point %s is a directory", entryPoint)
	}

	root = filepath.Dir(abs)
	if runtime {
		if dir, ok := findManifest(root); ok {
			root = dir
		}
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", "", err
	}
	return root, filepath.ToSlash(rel), nil
}

// findManifest walks up from dir looking for ManifestFile.
func findManifest(dir string) (string, bool) {
	for {
		if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// readIgnoreFile returns the patterns in path, skipping blanks and comments.
// A missing file yields no patterns.
func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, strings.TrimPrefix(line, "/"))
	}
	return patterns, scanner.Err()
}
