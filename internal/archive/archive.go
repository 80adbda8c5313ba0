// Package archive keeps a content-addressed copy of every fetched section
// payload so a run can be audited or re-parsed without refetching.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/hadith-ingest/internal/source"
)

// BlobStore is implemented by the memory, local and gcs stores.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, data []byte) (string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Hasher digests payload bodies.
type Hasher interface {
	Hash(data []byte) string
}

// Archiver writes payloads under {kind}/{source}/{section}/{digest}{ext}.
// A nil *Archiver is a valid no-op.
type Archiver struct {
	blobs  BlobStore
	hasher Hasher
	logger *zap.Logger
}

// New builds an Archiver.
func New(blobs BlobStore, hasher Hasher, logger *zap.Logger) (*Archiver, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if hasher == nil {
		return nil, errors.New("hasher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{blobs: blobs, hasher: hasher, logger: logger}, nil
}

// Key returns the object path for a payload.
func (a *Archiver) Key(p source.RawPayload) string {
	return path.Join(
		string(p.Ref.Kind),
		p.Ref.Name,
		fmt.Sprintf("%d", p.Section),
		a.hasher.Hash(p.Body)+extension(p.ContentType),
	)
}

// Archive stores the payload unless an identical copy already exists and
// returns its URI. Empty bodies are skipped.
func (a *Archiver) Archive(ctx context.Context, p source.RawPayload) (string, error) {
	if a == nil || len(p.Body) == 0 {
		return "", nil
	}
	key := a.Key(p)
	exists, err := a.blobs.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", key, err)
	}
	if exists {
		a.logger.Debug("payload already archived", zap.String("key", key))
		return key, nil
	}
	uri, err := a.blobs.PutObject(ctx, key, p.ContentType, p.Body)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", key, err)
	}
	return uri, nil
}

func extension(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json"):
		return ".json"
	case strings.Contains(ct, "html"):
		return ".html"
	default:
		return ".bin"
	}
}
