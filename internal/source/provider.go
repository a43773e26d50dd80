package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
)

// deployable file types; everything else in the tree is skipped.
var allowedExtensions = map[string]struct{}{
	".html": {},
	".css":  {},
	".js":   {},
	".json": {},
	".svg":  {},
	".txt":  {},
	".md":   {},
}

const maxFileSize = 1 << 20

// DirProvider serves the site source tree from a local directory.
type DirProvider struct {
	root string
}

// NewDirProvider validates the directory and returns a provider.
func NewDirProvider(root string) (*DirProvider, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("locate source dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path %s is not a directory", root)
	}
	return &DirProvider{root: root}, nil
}

// Files walks the tree and returns deployable files with slash-separated
// paths relative to the root, sorted for stable ordering.
func (p *DirProvider) Files(ctx context.Context) ([]domain.SourceFile, error) {
	var files []domain.SourceFile
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != p.root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if _, ok := allowedExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxFileSize {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return err
		}
		files = append(files, domain.SourceFile{
			Path:    filepath.ToSlash(rel),
			Content: string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
