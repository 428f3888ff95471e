package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Storage struct {
		Backend      string `yaml:"backend"` // file | sqlite | memory
		SnapshotPath string `yaml:"snapshot_path"`
		JournalPath  string `yaml:"journal_path"`
		SQLitePath   string `yaml:"sqlite_path"`
	} `yaml:"storage"`

	Strategy struct {
		Name            string `yaml:"name"` // reject | autobump | preempt | quorum
		QuorumThreshold int    `yaml:"quorum_threshold"`
	} `yaml:"strategy"`

	History struct {
		UndoLimit int `yaml:"undo_limit"`
	} `yaml:"history"`

	Calendar struct {
		FilePath           string `yaml:"file_path"`
		GoogleCredentials  string `yaml:"google_credentials"`
		GoogleCalendarID   string `yaml:"google_calendar_id"`
		GoogleImportRoomID int64  `yaml:"google_import_room_id"`
		GoogleImportUserID int64  `yaml:"google_import_user_id"`
	} `yaml:"calendar"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Audit struct {
		ExportPath string `yaml:"export_path"`
	} `yaml:"audit"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	switch cfg.Storage.Backend {
	case "file", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.Storage.SnapshotPath == "" {
		cfg.Storage.SnapshotPath = "data/snapshot.json"
	}
	if cfg.Storage.JournalPath == "" {
		cfg.Storage.JournalPath = "data/journal.jsonl"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/reservd.db"
	}
	if cfg.Strategy.Name == "" {
		cfg.Strategy.Name = "reject"
	}
	if cfg.Strategy.QuorumThreshold <= 0 {
		cfg.Strategy.QuorumThreshold = 2
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Storage.SnapshotPath), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}
