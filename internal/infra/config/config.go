package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	WorkDir  string `yaml:"work_dir"`

	// LoginSystem selects per-user saved sessions. When false the single
	// SharedSession serves everyone and concurrent batches are refused.
	LoginSystem   bool          `yaml:"login_system"`
	SharedSession SharedSession `yaml:"shared_session"`

	Admins []int64 `yaml:"admins"`

	Limits   Limits   `yaml:"limits"`
	Transfer Transfer `yaml:"transfer"`
	Status   Status   `yaml:"status"`

	Redis   Redis   `yaml:"redis"`
	NATS    NATS    `yaml:"nats"`
	Archive Archive `yaml:"archive"`
}

type SharedSession struct {
	Session string `yaml:"session"`
	APIID   int64  `yaml:"api_id"`
	APIHash string `yaml:"api_hash"`
}

type Limits struct {
	MaxTasksPerUser int `yaml:"max_tasks_per_user"`
	UploadSlots     int `yaml:"upload_slots"`
}

type Transfer struct {
	// Size threshold and chunk sizes are hand-tuned against platform limits
	// that can move; they are configuration on purpose.
	SizeThresholdMB        int64 `yaml:"size_threshold_mb"`
	ChunkSizeMB            int64 `yaml:"chunk_size_mb"`
	PremiumSizeThresholdMB int64 `yaml:"premium_size_threshold_mb"`
	PremiumChunkSizeMB     int64 `yaml:"premium_chunk_size_mb"`

	DownloadRetries int           `yaml:"download_retries"`
	RetryPause      time.Duration `yaml:"retry_pause"`
	FetchMissPause  time.Duration `yaml:"fetch_miss_pause"`
	ThrottleMargin  time.Duration `yaml:"throttle_margin"`
	DefaultDelay    time.Duration `yaml:"default_delay"`
	CaptionLimit    int           `yaml:"caption_limit"`
}

type Status struct {
	RenderCadence time.Duration `yaml:"render_cadence"`
	BatchInterval time.Duration `yaml:"batch_interval"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type NATS struct {
	URL             string `yaml:"url"`
	Name            string `yaml:"name"`
	MaxReconnects   int    `yaml:"max_reconnects"`
	StatusSubject   string `yaml:"status_subject"`
	PlatformSubject string `yaml:"platform_subject"`
	StreamName      string `yaml:"stream_name"`
}

type Archive struct {
	Enabled       bool          `yaml:"enabled"`
	QueueCapacity int           `yaml:"queue_capacity"`
	PoolSize      int           `yaml:"pool_size"`
	MaxRetries    int           `yaml:"max_retries"`
	// Retention bounds how long archived payloads are kept; zero keeps them
	// forever.
	Retention time.Duration `yaml:"retention"`
	MinIO     MinIO         `yaml:"minio"`
}

type MinIO struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
	BasePath        string `yaml:"base_path"`
}

func MustLoad(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("config: cannot read file %q: %v", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("config: cannot unmarshal yaml: %v", err)
	}

	if cfg.WorkDir == "" {
		log.Fatalf("config: work_dir is empty")
	}
	if cfg.NATS.StatusSubject == "" {
		log.Fatalf("config: nats.status_subject is empty")
	}
	if cfg.NATS.PlatformSubject == "" {
		log.Fatalf("config: nats.platform_subject is empty")
	}
	if !cfg.LoginSystem && cfg.SharedSession.Session == "" {
		log.Fatalf("config: login_system is off but shared_session.session is empty")
	}

	cfg.fillDefaults()

	if cfg.Transfer.ChunkSizeMB >= cfg.Transfer.SizeThresholdMB {
		log.Fatalf("config: transfer.chunk_size_mb %d must stay under size_threshold_mb %d",
			cfg.Transfer.ChunkSizeMB, cfg.Transfer.SizeThresholdMB)
	}
	if cfg.Transfer.PremiumChunkSizeMB >= cfg.Transfer.PremiumSizeThresholdMB {
		log.Fatalf("config: transfer.premium_chunk_size_mb %d must stay under premium_size_threshold_mb %d",
			cfg.Transfer.PremiumChunkSizeMB, cfg.Transfer.PremiumSizeThresholdMB)
	}

	return &cfg
}

func (cfg *Config) fillDefaults() {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.Limits.MaxTasksPerUser <= 0 {
		cfg.Limits.MaxTasksPerUser = 3
	}
	if cfg.Limits.UploadSlots <= 0 {
		cfg.Limits.UploadSlots = 3
	}
	if cfg.Transfer.SizeThresholdMB <= 0 {
		cfg.Transfer.SizeThresholdMB = 2000
	}
	if cfg.Transfer.ChunkSizeMB <= 0 {
		cfg.Transfer.ChunkSizeMB = 1900
	}
	if cfg.Transfer.PremiumSizeThresholdMB <= 0 {
		cfg.Transfer.PremiumSizeThresholdMB = 4000
	}
	if cfg.Transfer.PremiumChunkSizeMB <= 0 {
		cfg.Transfer.PremiumChunkSizeMB = 3900
	}
	if cfg.Transfer.DownloadRetries <= 0 {
		cfg.Transfer.DownloadRetries = 3
	}
	if cfg.Transfer.RetryPause <= 0 {
		cfg.Transfer.RetryPause = 5 * time.Second
	}
	if cfg.Transfer.FetchMissPause <= 0 {
		cfg.Transfer.FetchMissPause = 6 * time.Second
	}
	if cfg.Transfer.ThrottleMargin <= 0 {
		cfg.Transfer.ThrottleMargin = 6 * time.Second
	}
	if cfg.Transfer.DefaultDelay <= 0 {
		cfg.Transfer.DefaultDelay = 3 * time.Second
	}
	if cfg.Transfer.CaptionLimit <= 0 {
		cfg.Transfer.CaptionLimit = 1024
	}
	if cfg.Status.RenderCadence <= 0 {
		cfg.Status.RenderCadence = 10 * time.Second
	}
	if cfg.Status.BatchInterval <= 0 {
		cfg.Status.BatchInterval = 60 * time.Second
	}
	if cfg.NATS.Name == "" {
		cfg.NATS.Name = "chatmover"
	}
	if cfg.NATS.StreamName == "" {
		cfg.NATS.StreamName = "CHATMOVER_STATUS"
	}
	if cfg.Archive.QueueCapacity <= 0 {
		cfg.Archive.QueueCapacity = 100
	}
	if cfg.Archive.PoolSize <= 0 {
		cfg.Archive.PoolSize = 2
	}
	if cfg.Archive.MaxRetries <= 0 {
		cfg.Archive.MaxRetries = 3
	}
}
