package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"estatecore/internal/infra/blob/fs"
	memorystore "estatecore/internal/infra/blob/memory"
	infraS3 "estatecore/internal/infra/blob/s3"
)

// Config selects and parameterises a blob backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// ConfigFromEnv reads the blob selection from the environment.
//
//	ESTATECORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	ESTATECORE_BLOB_FS_ROOT: directory root when driver=fs (default ./archive)
//	ESTATECORE_BLOB_S3_BUCKET, _REGION, _ENDPOINT, _PATH_STYLE when driver=s3
func ConfigFromEnv() Config {
	return Config{
		Driver: Driver(os.Getenv("ESTATECORE_BLOB_DRIVER")),
		FSRoot: os.Getenv("ESTATECORE_BLOB_FS_ROOT"),
		S3: S3Config{
			Bucket:    os.Getenv("ESTATECORE_BLOB_S3_BUCKET"),
			Region:    os.Getenv("ESTATECORE_BLOB_S3_REGION"),
			Endpoint:  os.Getenv("ESTATECORE_BLOB_S3_ENDPOINT"),
			PathStyle: strings.EqualFold(os.Getenv("ESTATECORE_BLOB_S3_PATH_STYLE"), "true"),
		},
	}
}

// Open selects a blob.Store implementation using environment variables.
func Open(ctx context.Context) (Store, error) {
	return OpenConfig(ctx, ConfigFromEnv())
}

// OpenConfig opens the backend described by cfg.
func OpenConfig(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return infraS3.New(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewMemory returns an in-memory blob.Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewMockS3ForTests exposes the S3 adapter over an in-memory HTTP transport
// for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
