package blobstore

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

// FilesystemStore keeps documents in a directory tree, for local runs.
type FilesystemStore struct {
	fs      afero.Fs
	root    string
	baseURL string
}

// NewFilesystemStore stores under root on fs. baseURL prefixes returned URLs;
// when empty, file:// URLs are returned.
func NewFilesystemStore(fs afero.Fs, root, baseURL string) (*FilesystemStore, error) {
	if root == "" {
		return nil, fmt.Errorf("filesystem storage needs a root directory")
	}
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FilesystemStore{fs: fs, root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// NewOSFilesystemStore is NewFilesystemStore on the real filesystem.
func NewOSFilesystemStore(root, baseURL string) (*FilesystemStore, error) {
	return NewFilesystemStore(afero.NewOsFs(), root, baseURL)
}

func (s *FilesystemStore) url(p string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + escapePath(p)
	}
	abs, err := filepath.Abs(filepath.Join(s.root, filepath.FromSlash(p)))
	if err != nil {
		abs = filepath.Join(s.root, filepath.FromSlash(p))
	}
	return "file://" + filepath.ToSlash(abs)
}

// Put writes obj, replacing any file at the same path.
func (s *FilesystemStore) Put(ctx context.Context, obj models.BlobObject) (*models.StoredBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validCaseID(obj.CaseID); err != nil {
		return nil, err
	}

	p := BuildPath(obj.CaseID, obj.EventSeq, obj.Name, obj.ExternalRef, obj.Extension)
	full := filepath.Join(s.root, filepath.FromSlash(p))
	if err := s.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("create folder for %s: %w", p, err)
	}
	if err := afero.WriteFile(s.fs, full, obj.Data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", p, err)
	}

	return &models.StoredBlob{
		Path:        p,
		URL:         s.url(p),
		ContentHash: ContentHash(obj.Data),
		Size:        int64(len(obj.Data)),
	}, nil
}

// DeleteAll removes the case folder.
func (s *FilesystemStore) DeleteAll(ctx context.Context, caseID string) error {
	if err := validCaseID(caseID); err != nil {
		return err
	}
	if err := s.fs.RemoveAll(filepath.Join(s.root, caseID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete folder of %s: %w", caseID, err)
	}
	return nil
}

// List returns the stored object paths of a case, slash separated.
func (s *FilesystemStore) List(caseID string) ([]string, error) {
	var out []string
	root := filepath.Join(s.root, caseID)
	err := afero.Walk(s.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		out = append(out, path.Clean(filepath.ToSlash(rel)))
		return nil
	})
	return out, err
}
