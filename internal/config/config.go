package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"adi/internal/logging"
	"adi/storage/kafka"
	"adi/storage/minio"
)

// EnvPrefix starts every override, e.g. ADI__ENGINE__CHUNK_ROWS=500.
const EnvPrefix = "ADI__"

type EngineConfig struct {
	ChunkRows    int    `koanf:"chunk_rows"`
	ReadBuffer   int    `koanf:"read_buffer"`
	SampleSize   int    `koanf:"sample_size"`
	SampleMode   string `koanf:"sample_mode"` // per-chunk|overall
	ForkCapacity int    `koanf:"fork_capacity"`
}

type LocalConfig struct {
	Root string `koanf:"root"`
}

type TempURLConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// StorageConfig enables minio and kafka only when their endpoints are set.
type StorageConfig struct {
	Local   LocalConfig   `koanf:"local"`
	TempURL TempURLConfig `koanf:"tempurl"`
	Minio   minio.Config  `koanf:"minio"`
	Kafka   kafka.Config  `koanf:"kafka"`
}

type PlatformConfig struct {
	Host   string `koanf:"host"`
	APIKey string `koanf:"api_key"`
}

type Config struct {
	SchemaVersion string          `koanf:"schema_version"`
	Log           logging.Options `koanf:"log"`
	Engine        EngineConfig    `koanf:"engine"`
	Metrics       struct {
		Port int `koanf:"port"`
	} `koanf:"metrics"`
	GRPC struct {
		Port int `koanf:"port"`
	} `koanf:"grpc"`
	Storage  StorageConfig  `koanf:"storage"`
	Platform PlatformConfig `koanf:"platform"`
}

// Load merges YAML (if present) with ADI__SECTION__KEY env-vars and
// applies defaults.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("config env: %w", err)
	}

	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return Config{}, fmt.Errorf("config schema_version %q not supported (want %s)", sv, SupportedSchema)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func applyDefaults(c *Config) {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SupportedSchema
	}
	if c.Engine.ReadBuffer == 0 {
		c.Engine.ReadBuffer = 64 << 10
	}
	if c.Engine.SampleSize == 0 {
		c.Engine.SampleSize = 100
	}
	if c.Engine.SampleMode == "" {
		c.Engine.SampleMode = "per-chunk"
	}
	if c.Engine.ForkCapacity == 0 {
		c.Engine.ForkCapacity = 4
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9100
	}
	if c.GRPC.Port == 0 {
		c.GRPC.Port = 7070
	}
	if c.Storage.TempURL.Timeout == 0 {
		c.Storage.TempURL.Timeout = 5 * time.Minute
	}
	if c.Platform.Host == "" {
		c.Platform.Host = "https://api.adi.example"
	}
}
