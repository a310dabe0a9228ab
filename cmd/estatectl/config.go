package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"estatecore/internal/blob"
	"estatecore/internal/core"
)

const defaultLockTTL = 30 * time.Second

const blobDriverNone = "none"

// cliConfig is the resolved flag, env and config file state of one invocation.
type cliConfig struct {
	Storage     core.StorageConfig
	Blob        blob.Config
	Archive     bool
	LockMode    core.LockMode
	LockTTL     time.Duration
	RedisURL    string
	MetricsFile string
	AuditLog    string
	Output      string
	LogLevel    string
}

func bindConfig(v *viper.Viper) (cliConfig, error) {
	cfg := cliConfig{
		Storage: core.StorageConfig{
			Driver:      core.StorageDriver(strings.ToLower(strings.TrimSpace(v.GetString("storage-driver")))),
			SQLitePath:  v.GetString("sqlite-path"),
			PostgresDSN: v.GetString("postgres-dsn"),
		},
		LockMode:    core.LockMode(strings.ToLower(strings.TrimSpace(v.GetString("lock-mode")))),
		LockTTL:     v.GetDuration("lock-ttl"),
		RedisURL:    strings.TrimSpace(v.GetString("redis-url")),
		MetricsFile: strings.TrimSpace(v.GetString("metrics-file")),
		AuditLog:    strings.TrimSpace(v.GetString("audit-log")),
		Output:      strings.ToLower(strings.TrimSpace(v.GetString("output"))),
		LogLevel:    strings.TrimSpace(v.GetString("log-level")),
	}

	blobDriver := strings.ToLower(strings.TrimSpace(v.GetString("blob-driver")))
	cfg.Archive = blobDriver != blobDriverNone
	if cfg.Archive {
		cfg.Blob = blob.Config{
			Driver: blob.Driver(blobDriver),
			FSRoot: v.GetString("blob-fs-root"),
			S3: blob.S3Config{
				Bucket:    v.GetString("blob-s3-bucket"),
				Region:    v.GetString("blob-s3-region"),
				Endpoint:  v.GetString("blob-s3-endpoint"),
				PathStyle: v.GetBool("blob-s3-path-style"),
			},
		}
	}

	switch cfg.LockMode {
	case "", core.LockWait, core.LockFail:
	default:
		return cliConfig{}, fmt.Errorf("lock-mode must be wait or fail, got %q", cfg.LockMode)
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	switch cfg.Output {
	case "":
		cfg.Output = outputText
	case outputText, outputJSON:
	default:
		return cliConfig{}, fmt.Errorf("output must be text or json, got %q", cfg.Output)
	}
	return cfg, nil
}
