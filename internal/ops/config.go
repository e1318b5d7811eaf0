// Package ops loads and resolves the runtime configuration file.
package ops

import (
	"encoding/json"
	"os"

	"github.com/yanun0323/errors"

	"main/internal/model/enum"
	"main/internal/task"
	"main/pkg/conn"
)

// FileConfig mirrors the JSON config layout. Zero values fall back to
// defaults during Load.
type FileConfig struct {
	Database  DatabaseConfig  `json:"database"`
	Queue     QueueConfig     `json:"queue"`
	Sync      SyncConfig      `json:"sync"`
	Batch     BatchConfig     `json:"batch"`
	Profiling ProfilingConfig `json:"profiling"`
}

// DatabaseConfig describes the postgres connection.
type DatabaseConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	User       string `json:"user"`
	Password   string `json:"password"`
	Database   string `json:"database"`
	SSLMode    string `json:"sslMode"`
	ConnString string `json:"connString"`
}

// QueueConfig sizes the task queue and its shared rate limit.
type QueueConfig struct {
	Workers       int     `json:"workers"`
	QueueSize     int     `json:"queueSize"`
	RatePerSecond float64 `json:"ratePerSecond"`
	Burst         int     `json:"burst"`
}

// SyncConfig selects the default sync mode and target cap.
type SyncConfig struct {
	DefaultMode string `json:"defaultMode"`
	Limit       int    `json:"limit"`
}

// BatchConfig shapes batch planning and execution.
type BatchConfig struct {
	Size              int `json:"size"`
	RecencyWindowDays int `json:"recencyWindowDays"`
}

// ProfilingConfig is the optional pyroscope hookup.
type ProfilingConfig struct {
	Enabled       bool   `json:"enabled"`
	ServerAddress string `json:"serverAddress"`
	AppName       string `json:"appName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Database  conn.Option
	Queue     task.Config
	Mode      enum.SyncMode
	SyncLimit int
	Batch     BatchConfig
	Profiling ProfilingConfig
}

// Load reads a JSON config file and resolves it. An empty path yields the
// defaults.
func Load(path string) (Loaded, error) {
	var cfg FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, errors.Wrap(err, "read config")
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, errors.Wrap(err, "parse config")
		}
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	mode := enum.SyncModeDaily
	if cfg.Sync.DefaultMode != "" {
		parsed, err := enum.ParseSyncMode(cfg.Sync.DefaultMode)
		if err != nil {
			return Loaded{}, errors.Wrap(err, "resolve config")
		}
		mode = parsed
	}
	if cfg.Sync.Limit < 0 {
		return Loaded{}, errors.New("sync limit must be >= 0")
	}
	if cfg.Batch.Size < 0 || cfg.Batch.RecencyWindowDays < 0 {
		return Loaded{}, errors.New("batch settings must be >= 0")
	}
	if cfg.Profiling.Enabled && cfg.Profiling.ServerAddress == "" {
		return Loaded{}, errors.New("profiling enabled without server address")
	}

	profiling := cfg.Profiling
	if profiling.AppName == "" {
		profiling.AppName = "syncd"
	}

	return Loaded{
		Database: conn.Option{
			Host:       cfg.Database.Host,
			Port:       cfg.Database.Port,
			User:       cfg.Database.User,
			Password:   cfg.Database.Password,
			Database:   cfg.Database.Database,
			SSLMode:    cfg.Database.SSLMode,
			ConnString: cfg.Database.ConnString,
		},
		Queue: task.Config{
			Workers:       cfg.Queue.Workers,
			QueueSize:     cfg.Queue.QueueSize,
			RatePerSecond: cfg.Queue.RatePerSecond,
			Burst:         cfg.Queue.Burst,
		},
		Mode:      mode,
		SyncLimit: cfg.Sync.Limit,
		Batch:     cfg.Batch,
		Profiling: profiling,
	}, nil
}
