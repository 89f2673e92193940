// Package media persists downloaded message payloads.
package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatdesk/chatdesk/internal/storage"
)

type Service struct {
	store  storage.Provider
	logger *slog.Logger
}

func NewService(log *slog.Logger, store storage.Provider) *Service {
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "media")),
	}
}

// Store writes the payload and returns its final filename and public URL.
// A transport-provided filename is kept; when absent a unique one is
// generated from the MIME type. A name that collides with an existing file
// gets a random 5-character token inserted before the extension.
func (s *Service) Store(ctx context.Context, input StoreInput) (Stored, error) {
	if s.store == nil {
		return Stored{}, fmt.Errorf("media storage not configured")
	}
	if len(input.Data) == 0 {
		return Stored{}, fmt.Errorf("media payload is empty")
	}

	name := filepath.Base(strings.TrimSpace(input.Filename))
	if name == "" || name == "." {
		name = fmt.Sprintf("%s-%d%s", randomToken(5), time.Now().UnixMilli(), extensionFromMime(input.MimeType))
	}

	exists, err := s.store.Exists(ctx, name)
	if err != nil {
		return Stored{}, fmt.Errorf("check media file: %w", err)
	}
	if exists {
		name = disambiguate(name)
	}

	if err := s.store.Put(ctx, name, bytes.NewReader(input.Data)); err != nil {
		return Stored{}, fmt.Errorf("store media: %w", err)
	}

	return Stored{
		Filename:  name,
		URL:       s.store.AccessPath(name),
		MediaType: mainType(input.MimeType),
	}, nil
}

// Open returns the stored payload for serving, deriving the content type from
// the filename extension.
func (s *Service) Open(ctx context.Context, filename string) (Opened, error) {
	if s.store == nil {
		return Opened{}, fmt.Errorf("media storage not configured")
	}
	reader, err := s.store.Open(ctx, filename)
	if err != nil {
		return Opened{}, err
	}
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Opened{Reader: reader, ContentType: contentType}, nil
}

// disambiguate inserts a random token before the extension:
// "invoice.pdf" becomes "invoice-a1b2c.pdf".
func disambiguate(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return base + "-" + randomToken(5) + ext
}

func randomToken(n int) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(token) {
		n = len(token)
	}
	return token[:n]
}

// extensionFromMime derives a dotted extension from a MIME type,
// e.g. "image/jpeg" yields ".jpeg". Parameters after ";" are ignored.
func extensionFromMime(mimeType string) string {
	sub := mimeType
	if i := strings.Index(sub, "/"); i >= 0 {
		sub = sub[i+1:]
	}
	if i := strings.Index(sub, ";"); i >= 0 {
		sub = sub[:i]
	}
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return ".bin"
	}
	return "." + sub
}

// mainType returns the MIME main type ("image/jpeg" yields "image").
func mainType(mimeType string) string {
	if i := strings.Index(mimeType, "/"); i >= 0 {
		return mimeType[:i]
	}
	if mimeType == "" {
		return "application"
	}
	return mimeType
}
