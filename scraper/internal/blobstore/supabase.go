package blobstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/doctype"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

// SupabaseConfig configures the Supabase Storage REST backend.
type SupabaseConfig struct {
	URL     string
	Key     string
	Bucket  string
	Timeout time.Duration
}

// SupabaseStore writes documents to a Supabase Storage bucket.
type SupabaseStore struct {
	client *resty.Client
	base   string
	bucket string
}

type storageObject struct {
	Name string  `json:"name"`
	ID   *string `json:"id"`
}

type listRequest struct {
	Prefix string            `json:"prefix"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
	SortBy map[string]string `json:"sortBy"`
}

const listPageSize = 1000

// NewSupabaseStore builds a store client. It performs no network calls.
func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.URL == "" || cfg.Key == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("supabase storage needs url, key and bucket")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	base := strings.TrimRight(cfg.URL, "/")

	client := resty.New().
		SetBaseURL(base+"/storage/v1").
		SetTimeout(timeout).
		SetAuthToken(cfg.Key).
		SetHeader("apikey", cfg.Key)

	return &SupabaseStore{client: client, base: base, bucket: cfg.Bucket}, nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// PublicURL returns the public object URL for path.
func (s *SupabaseStore) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.base, s.bucket, escapePath(path))
}

// Put uploads obj, replacing any object at the same path.
func (s *SupabaseStore) Put(ctx context.Context, obj models.BlobObject) (*models.StoredBlob, error) {
	if err := validCaseID(obj.CaseID); err != nil {
		return nil, err
	}
	path := BuildPath(obj.CaseID, obj.EventSeq, obj.Name, obj.ExternalRef, obj.Extension)
	contentType := obj.ContentType
	if contentType == "" {
		contentType = doctype.ContentType(obj.Extension)
	}

	res, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "true").
		SetBody(obj.Data).
		Post("/object/" + s.bucket + "/" + escapePath(path))
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("upload %s: status %d: %s", path, res.StatusCode(), res.String())
	}

	return &models.StoredBlob{
		Path:        path,
		URL:         s.PublicURL(path),
		ContentHash: ContentHash(obj.Data),
		Size:        int64(len(obj.Data)),
	}, nil
}

func (s *SupabaseStore) list(ctx context.Context, prefix string) ([]storageObject, error) {
	var all []storageObject
	for offset := 0; ; offset += listPageSize {
		var page []storageObject
		res, err := s.client.R().
			SetContext(ctx).
			SetBody(listRequest{
				Prefix: prefix,
				Limit:  listPageSize,
				Offset: offset,
				SortBy: map[string]string{"column": "name", "order": "asc"},
			}).
			SetResult(&page).
			Post("/object/list/" + s.bucket)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		if res.IsError() {
			return nil, fmt.Errorf("list %s: status %d: %s", prefix, res.StatusCode(), res.String())
		}
		all = append(all, page...)
		if len(page) < listPageSize {
			return all, nil
		}
	}
}

// DeleteAll removes every object under the case folder.
// Objects live one level down, in evt_NN folders.
func (s *SupabaseStore) DeleteAll(ctx context.Context, caseID string) error {
	if err := validCaseID(caseID); err != nil {
		return err
	}

	folders, err := s.list(ctx, caseID)
	if err != nil {
		return err
	}

	var paths []string
	for _, folder := range folders {
		folderPath := caseID + "/" + folder.Name
		if folder.ID != nil {
			// A file directly under the case folder.
			paths = append(paths, folderPath)
			continue
		}
		files, err := s.list(ctx, folderPath)
		if err != nil {
			return err
		}
		for _, f := range files {
			paths = append(paths, folderPath+"/"+f.Name)
		}
	}
	if len(paths) == 0 {
		return nil
	}

	res, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string][]string{"prefixes": paths}).
		Delete("/object/" + s.bucket)
	if err != nil {
		return fmt.Errorf("delete objects of %s: %w", caseID, err)
	}
	if res.IsError() && res.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("delete objects of %s: status %d: %s", caseID, res.StatusCode(), res.String())
	}
	return nil
}
