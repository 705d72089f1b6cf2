package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the service configuration, loaded from the environment.
type Config struct {
	HTTPPort           int
	DBPath             string
	PrefsBackend       string // "db" or "file"
	PrefsDir           string // file backend storage directory
	DropDirs           []string
	MaxConcurrent      int // simultaneous conversions per run; 0 = unbounded
	QualityLevel       int
	FFmpegPath         string
	PandocPath         string
	LogLevel           string
	InlineExecution    bool // run conversions on the caller's goroutine
	WatchStabilitySecs int  // settle time before a dropped file is picked up
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTPPort = getEnvInt("HTTP_PORT", 8000)
	cfg.DBPath = getEnv("DB_PATH", "/data/convertd.db")
	cfg.PrefsBackend = getEnv("PREFS_BACKEND", "db")
	cfg.PrefsDir = getEnv("PREFS_DIR", "/data/prefs")
	cfg.DropDirs = splitAndTrim(os.Getenv("DROP_DIRS"))
	cfg.MaxConcurrent = getEnvInt("MAX_CONCURRENT", 4)
	cfg.QualityLevel = getEnvInt("QUALITY_LEVEL", 80)
	cfg.FFmpegPath = getEnv("FFMPEG_PATH", "ffmpeg")
	cfg.PandocPath = getEnv("PANDOC_PATH", "pandoc")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.InlineExecution = getEnvBool("INLINE_EXECUTION", false)
	cfg.WatchStabilitySecs = getEnvInt("WATCH_STABILITY_DELAY", 1)
	return cfg
}

func (c *Config) HTTPAddr() string { return fmt.Sprintf(":%d", c.HTTPPort) }

func splitAndTrim(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
