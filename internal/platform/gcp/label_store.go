package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

// LabelStore archives purchased shipping labels so they survive provider URL expiry.
type LabelStore interface {
	PutLabel(ctx context.Context, vendorID, orderID string, pdf []byte) (string, error)
	OpenLabel(ctx context.Context, key string) (io.ReadCloser, error)
}

type labelStore struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

func LabelKey(vendorID, orderID string) string {
	return path.Join("labels", strings.TrimSpace(vendorID), strings.TrimSpace(orderID)+".pdf")
}

func NewLabelStore(ctx context.Context, log *logger.Logger, cfg LabelStoreConfig) (LabelStore, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("missing env var LABEL_GCS_BUCKET_NAME")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	var opts []option.ClientOption
	switch cfg.Mode {
	case StorageModeGCSEmulator:
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		opts = append(opts, option.WithoutAuthentication())
	default:
		opts = append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog := log.With("service", "LabelStore")
	serviceLog.Info("Label archive initialized", "mode", cfg.Mode, "bucket", cfg.Bucket)
	return &labelStore{log: serviceLog, client: client, bucket: cfg.Bucket}, nil
}

func (s *labelStore) PutLabel(ctx context.Context, vendorID, orderID string, pdf []byte) (string, error) {
	if len(pdf) == 0 {
		return "", fmt.Errorf("empty label document")
	}
	key := LabelKey(vendorID, orderID)
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/pdf"
	if _, err := io.Copy(w, bytes.NewReader(pdf)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write label to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return key, nil
}

type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}

func (s *labelStore) OpenLabel(ctx context.Context, key string) (io.ReadCloser, error) {
	// The deadline must outlive this call; it is released when the reader closes.
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}
