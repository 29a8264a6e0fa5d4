package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// DirProvider stores each account's namespace as a directory under root.
type DirProvider struct {
	fs   afero.Fs
	root string
}

// NewDirProvider returns a provider rooted at root on fs.
func NewDirProvider(fs afero.Fs, root string) *DirProvider {
	return &DirProvider{fs: fs, root: root}
}

// Open returns the namespace of account. The token is not used by this backend.
func (p *DirProvider) Open(account, _ string) (Store, error) {
	name := safeName(account)
	if name == "" {
		return nil, fmt.Errorf("open namespace: invalid account %q", account)
	}
	return &Dir{fs: p.fs, path: filepath.Join(p.root, name)}, nil
}

// Dir is a namespace backed by one directory. File ids are file names.
type Dir struct {
	fs   afero.Fs
	path string
}

// NewDir returns a namespace rooted at path on fs.
func NewDir(fs afero.Fs, path string) *Dir {
	return &Dir{fs: fs, path: path}
}

// List returns the regular files in the directory sorted by name.
// A directory that does not exist yet is an empty namespace.
func (d *Dir) List(ctx context.Context) ([]File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(d.fs, d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.path, err)
	}

	files := make([]File, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() || strings.HasPrefix(fi.Name(), ".") {
			continue
		}
		files = append(files, File{ID: fi.Name(), Name: fi.Name(), ModifiedTime: fi.ModTime().UTC()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Read returns the content of the file with the given id.
func (d *Dir) Read(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := safeName(id)
	if name == "" {
		return nil, fmt.Errorf("read %q: %w", id, ErrNotFound)
	}
	data, err := afero.ReadFile(d.fs, filepath.Join(d.path, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Write replaces the file atomically by writing a temporary file and renaming it.
func (d *Dir) Write(ctx context.Context, name string, content []byte, existingID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := safeName(existingID)
	if id == "" {
		id = safeName(name)
	}
	if id == "" {
		return "", fmt.Errorf("write: invalid file name %q", name)
	}

	if err := d.fs.MkdirAll(d.path, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", d.path, err)
	}
	target := filepath.Join(d.path, id)
	tmp := filepath.Join(d.path, "."+id+".tmp")
	if err := afero.WriteFile(d.fs, tmp, content, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := d.fs.Rename(tmp, target); err != nil {
		_ = d.fs.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", target, err)
	}
	return id, nil
}

// safeName reduces s to a single path element.
func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = filepath.Base(filepath.Clean("/" + s))
	if s == "/" || s == "." || s == ".." {
		return ""
	}
	return s
}
