package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML server configuration. Kafka settings are optional;
// with no brokers the server runs the log and the gRPC surface only.
type Config struct {
	Dir           string `yaml:"dir"`
	SegmentSize   int64  `yaml:"segment_size"`
	BlockCache    uint32 `yaml:"block_cache"`
	CheckpointDir string `yaml:"checkpoint_dir"`

	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		NoticeTopic  string   `yaml:"notice_topic"`
		SegmentTopic string   `yaml:"segment_topic"`
	} `yaml:"kafka"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Dir = "./seglog_data"
	cfg.SegmentSize = 256 << 20
	cfg.CheckpointDir = "./seglog_checkpoints"
	cfg.ListenAddr = ":50051"
	cfg.MetricsAddr = ":9095"
	cfg.Kafka.NoticeTopic = "seglog.appends"
	cfg.Kafka.SegmentTopic = "seglog.segments"
	return cfg
}

// loadConfig reads path over the defaults; an empty path keeps them as is.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.SegmentSize <= 0 {
		return cfg, fmt.Errorf("segment_size must be positive, got %d", cfg.SegmentSize)
	}
	return cfg, nil
}
