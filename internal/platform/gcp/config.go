package gcp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/marketplace-backend/internal/platform/envutil"
)

type StorageMode string

const (
	StorageModeGCS         StorageMode = "gcs"
	StorageModeGCSEmulator StorageMode = "gcs_emulator"
)

type LabelStoreConfig struct {
	Bucket       string
	Mode         StorageMode
	EmulatorHost string
}

// Enabled is false when no bucket is configured; label archiving is then skipped.
func (c LabelStoreConfig) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

func LabelStoreConfigFromEnv() (LabelStoreConfig, error) {
	cfg := LabelStoreConfig{
		Bucket:       envutil.String("LABEL_GCS_BUCKET_NAME", ""),
		EmulatorHost: strings.TrimRight(envutil.String("STORAGE_EMULATOR_HOST", ""), "/"),
	}
	raw := envutil.String("OBJECT_STORAGE_MODE", "")
	switch StorageMode(strings.ToLower(raw)) {
	case "":
		cfg.Mode = StorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = StorageModeGCSEmulator
		}
	case StorageModeGCS:
		cfg.Mode = StorageModeGCS
	case StorageModeGCSEmulator:
		cfg.Mode = StorageModeGCSEmulator
	default:
		return cfg, fmt.Errorf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", raw, StorageModeGCS, StorageModeGCSEmulator)
	}
	return cfg, cfg.validate()
}

func (c LabelStoreConfig) validate() error {
	if c.Mode != StorageModeGCSEmulator {
		return nil
	}
	if c.EmulatorHost == "" {
		return fmt.Errorf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST to be set", StorageModeGCSEmulator)
	}
	u, err := url.Parse(c.EmulatorHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://localhost:4443", c.EmulatorHost)
	}
	return nil
}
