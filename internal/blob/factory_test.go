package blob

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestOpenConfigDrivers(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		cfg    Config
		driver Driver
	}{
		{name: "default filesystem", cfg: Config{FSRoot: t.TempDir()}, driver: DriverFilesystem},
		{name: "memory", cfg: Config{Driver: DriverMemory}, driver: DriverMemory},
		{name: "s3", cfg: Config{Driver: DriverS3, S3: S3Config{Bucket: "archive", Endpoint: "http://localhost:9000", PathStyle: true, AccessKeyID: "k", SecretAccessKey: "s"}}, driver: DriverS3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := OpenConfig(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if store.Driver() != tc.driver {
				t.Fatalf("expected driver %s, got %s", tc.driver, store.Driver())
			}
		})
	}
	if _, err := OpenConfig(ctx, Config{Driver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := OpenConfig(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("ESTATECORE_BLOB_DRIVER", "s3")
	t.Setenv("ESTATECORE_BLOB_FS_ROOT", "/var/archive")
	t.Setenv("ESTATECORE_BLOB_S3_BUCKET", "txns")
	t.Setenv("ESTATECORE_BLOB_S3_REGION", "eu-west-1")
	t.Setenv("ESTATECORE_BLOB_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("ESTATECORE_BLOB_S3_PATH_STYLE", "TRUE")
	cfg := ConfigFromEnv()
	if cfg.Driver != DriverS3 || cfg.FSRoot != "/var/archive" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.S3.Bucket != "txns" || cfg.S3.Region != "eu-west-1" || cfg.S3.Endpoint != "http://minio:9000" || !cfg.S3.PathStyle {
		t.Fatalf("unexpected s3 config %+v", cfg.S3)
	}
}

func TestOpenFromEnvMemory(t *testing.T) {
	t.Setenv("ESTATECORE_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("v")), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("v")), PutOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestMockS3ForTests(t *testing.T) {
	store := NewMockS3ForTests()
	if store.Driver() != DriverS3 {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	if _, err := store.Head(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
