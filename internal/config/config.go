package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Config struct {
	AgentBaseURL   string
	RecordsBaseURL string
	LogLevel       string
	DataDir        string
}

var (
	cacheTTL   = 10 * time.Second
	nowFunc    = time.Now
	cacheMu    sync.RWMutex
	cachedCfg  Config
	cachedAt   time.Time
	cacheValid bool
)

func LoadConfig() Config {
	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = nowFunc()
	cacheValid = true
	cacheMu.Unlock()
	return cfg
}

func GetConfig() *Config {
	now := nowFunc()
	cacheMu.RLock()
	valid := cacheValid && now.Sub(cachedAt) < cacheTTL
	if valid {
		out := cachedCfg
		cacheMu.RUnlock()
		return &out
	}
	cacheMu.RUnlock()

	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = now
	cacheValid = true
	cacheMu.Unlock()

	out := cfg
	return &out
}

func loadFromEnv() Config {
	agentBase := os.Getenv("IDEAFLOW_AGENT_BASE_URL")
	if agentBase == "" {
		agentBase = "ws://127.0.0.1:8780"
	}

	recordsBase := os.Getenv("IDEAFLOW_RECORDS_BASE_URL")
	if recordsBase == "" {
		recordsBase = "http://127.0.0.1:8781"
	}

	level := os.Getenv("IDEAFLOW_LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	dataDir := os.Getenv("IDEAFLOW_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dataDir = filepath.Join(home, ".ideaflow")
		} else {
			dataDir = ".ideaflow"
		}
	}

	return Config{
		AgentBaseURL:   agentBase,
		RecordsBaseURL: recordsBase,
		LogLevel:       level,
		DataDir:        dataDir,
	}
}
