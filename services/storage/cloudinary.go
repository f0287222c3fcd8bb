package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"bidmarket/config"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryStorage implements ObjectStorage on top of Cloudinary.
type CloudinaryStorage struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinaryStorage builds the storage from the loaded configuration.
func NewCloudinaryStorage() (*CloudinaryStorage, error) {
	cfg := config.AppConfig
	if cfg.CloudinaryCloudName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials not set in configuration")
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to initialize Cloudinary: %w", err)
	}
	return &CloudinaryStorage{cld: cld, folder: cfg.InvoiceFolder}, nil
}

func (s *CloudinaryStorage) Store(ctx context.Context, name string, content io.Reader) (string, error) {
	params := uploader.UploadParams{
		PublicID: strings.TrimSuffix(name, path.Ext(name)),
		Folder:   s.folder,
	}
	result, err := s.cld.Upload.Upload(ctx, content, params)
	if err != nil {
		return "", fmt.Errorf("storage: failed to upload %s: %w", name, err)
	}
	if result.SecureURL == "" {
		return "", fmt.Errorf("storage: no URL returned for %s", name)
	}
	return result.SecureURL, nil
}

func (s *CloudinaryStorage) Delete(ctx context.Context, rawURL string) error {
	publicID, err := PublicIDFromURL(rawURL)
	if err != nil {
		return err
	}
	if _, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return fmt.Errorf("storage: failed to delete %s: %w", publicID, err)
	}
	return nil
}

// PublicIDFromURL extracts the Cloudinary public id from a delivery URL, e.g.
// https://res.cloudinary.com/demo/image/upload/v1712/invoices/abc.pdf -> invoices/abc
func PublicIDFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "", fmt.Errorf("storage: invalid object url %q", rawURL)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	idx := -1
	for i, p := range parts {
		if p == "upload" {
			idx = i
			break
		}
	}
	if idx < 0 || idx == len(parts)-1 {
		return "", fmt.Errorf("storage: url %q is not a cloudinary upload url", rawURL)
	}
	rest := parts[idx+1:]
	// Skip the optional version segment.
	if len(rest) > 1 && strings.HasPrefix(rest[0], "v") && isDigits(rest[0][1:]) {
		rest = rest[1:]
	}
	id := strings.Join(rest, "/")
	return strings.TrimSuffix(id, path.Ext(id)), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
