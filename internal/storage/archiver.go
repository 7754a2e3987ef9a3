package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/kiranshivaraju/genforge/pkg/models"
)

// MaxAssetBytes caps a single downloaded asset.
const MaxAssetBytes = 256 << 20

// Archiver copies vendor-hosted results into the FileStore so they outlive
// the vendor's signed URLs.
type Archiver struct {
	store  *FileStore
	client *http.Client
}

func NewArchiver(store *FileStore, client *http.Client) *Archiver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Archiver{store: store, client: client}
}

// Archive downloads every http(s) URL in urls and stores it under
// prefix/<index><ext>. URLs with other schemes are recorded without a local
// copy. Any download failure aborts the whole set.
func (a *Archiver) Archive(ctx context.Context, prefix string, urls []string, vendorStatus string) ([]models.Asset, error) {
	assets := make([]models.Asset, 0, len(urls))
	for i, raw := range urls {
		asset := models.Asset{OriginalURL: raw, VendorStatus: vendorStatus}
		if !isRemote(raw) {
			assets = append(assets, asset)
			continue
		}

		data, contentType, err := a.download(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("archive asset %d: %w", i, err)
		}

		key := fmt.Sprintf("%s/%d%s", strings.TrimRight(prefix, "/"), i, extensionFor(raw, contentType))
		stored, err := a.store.Write(ctx, key, data)
		if err != nil {
			return nil, fmt.Errorf("archive asset %d: %w", i, err)
		}
		asset.LocalPath = stored
		asset.ContentType = contentType
		assets = append(assets, asset)

		slog.Debug("asset archived", "original_url", raw, "local_path", stored, "bytes", len(data))
	}
	return assets, nil
}

func (a *Archiver) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxAssetBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	if len(data) > MaxAssetBytes {
		return nil, "", fmt.Errorf("download: asset exceeds %d bytes", MaxAssetBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

func isRemote(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func extensionFor(raw, contentType string) string {
	if u, err := url.Parse(raw); err == nil {
		if ext := path.Ext(u.Path); ext != "" && len(ext) <= 6 {
			return strings.ToLower(ext)
		}
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
			return exts[0]
		}
	}
	return ".bin"
}
