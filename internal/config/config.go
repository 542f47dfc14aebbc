// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Data      DataConfig
	Library   LibraryConfig
	Server    ServerConfig
	Transcode TranscodeConfig
	Pod       PodConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds persistent-state storage configuration.
type DataConfig struct {
	// Dir is the persistent state root holding the library index,
	// transcode status, probe cache, API key, and derived media
	// (covers, normalized singles). Default: "${TMPDIR:-/tmp}/podible-transcodes".
	Dir string
}

// LibraryConfig holds audiobook library configuration.
type LibraryConfig struct {
	// Roots are the library directories to scan, taken from CLI
	// positional arguments (not flags or environment variables): every
	// argument after the program name is a root. Zero roots is a
	// runtime error reported per-feed-request; the server still starts.
	Roots []string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Name          string
	Port          string        // Server port (default: 80)
	ReadTimeout   time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout  time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout   time.Duration // HTTP idle timeout (default: 60s)
	AdvertiseMDNS bool          // Advertise via mDNS/Zeroconf (default: true)
}

// TranscodeConfig holds audio transcoding configuration.
type TranscodeConfig struct {
	// MaxConcurrent is reserved for a future multi-worker pool; the
	// worker is currently single-consumer per §5's concurrency model.
	MaxConcurrent int
	// FFmpegPath overrides auto-detection of ffmpeg location (default: auto-detect)
	FFmpegPath string
}

// PodConfig holds podcast feed channel metadata, consumed only by the
// (out-of-core-scope) feed renderer — the core stores these verbatim for
// the HTTP shim to project into the feed document.
type PodConfig struct {
	Title       string
	Description string
	Language    string
	Copyright   string
	Author      string
	OwnerName   string
	OwnerEmail  string
	Explicit    string // one of "yes", "no", "clean"
	Category    string
	Type        string // "episodic" or "serial"
	ImageURL    string
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
//
// Library roots are the exception: they come only from CLI positional
// arguments (flag.Args() after flag.Parse()), per §6.
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataDir := flag.String("data-dir", "", "Persistent state directory")
	serverName := flag.String("server-name", "", "Name advertised for the server")

	serverPort := flag.String("port", "", "Server port (default: 80)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	advertiseMDNS := flag.String("advertise-mdns", "", "Advertise via mDNS/Zeroconf (default: true)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	transcodeMaxConcurrent := flag.String("transcode-max-concurrent", "", "Max concurrent transcode jobs (default: 1)")
	transcodeFFmpegPath := flag.String("ffmpeg-path", "", "Path to ffmpeg binary (default: auto-detect)")

	flag.Parse()

	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			Dir: getConfigValue(*dataDir, "DATA_DIR", filepath.Join(defaultTempDir(), "podible-transcodes")),
		},
		Library: LibraryConfig{
			Roots: flag.Args(),
		},
		Server: ServerConfig{
			Name:          getConfigValue(*serverName, "SERVER_NAME", "Podible"),
			Port:          getConfigValue(*serverPort, "PORT", "80"),
			AdvertiseMDNS: getBoolConfigValue(*advertiseMDNS, "ADVERTISE_MDNS", true),
		},
		Transcode: TranscodeConfig{
			MaxConcurrent: getIntConfigValue(*transcodeMaxConcurrent, "TRANSCODE_MAX_CONCURRENT", 1),
			FFmpegPath:    getConfigValue(*transcodeFFmpegPath, "FFMPEG_PATH", ""),
		},
		Pod: PodConfig{
			Title:       getConfigValue("", "POD_TITLE", "Podible"),
			Description: getConfigValue("", "POD_DESCRIPTION", ""),
			Language:    getConfigValue("", "POD_LANGUAGE", "en"),
			Copyright:   getConfigValue("", "POD_COPYRIGHT", ""),
			Author:      getConfigValue("", "POD_AUTHOR", ""),
			OwnerName:   getConfigValue("", "POD_OWNER_NAME", ""),
			OwnerEmail:  getConfigValue("", "POD_OWNER_EMAIL", ""),
			Explicit:    getConfigValue("", "POD_EXPLICIT", "no"),
			Category:    getConfigValue("", "POD_CATEGORY", ""),
			Type:        getConfigValue("", "POD_TYPE", "episodic"),
			ImageURL:    getConfigValue("", "POD_IMAGE_URL", ""),
		},
	}

	readTimeoutStr := getConfigValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s")
	readTimeoutDuration, err := time.ParseDuration(readTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid read timeout %q: %w", readTimeoutStr, err)
	}
	cfg.Server.ReadTimeout = readTimeoutDuration

	writeTimeoutStr := getConfigValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s")
	writeTimeoutDuration, err := time.ParseDuration(writeTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid write timeout %q: %w", writeTimeoutStr, err)
	}
	cfg.Server.WriteTimeout = writeTimeoutDuration

	idleTimeoutStr := getConfigValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s")
	idleTimeoutDuration, err := time.ParseDuration(idleTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid idle timeout %q: %w", idleTimeoutStr, err)
	}
	cfg.Server.IdleTimeout = idleTimeoutDuration

	if err := cfg.expandDataDir(); err != nil {
		return nil, fmt.Errorf("invalid data dir: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
// Zero library roots is deliberately not a validation error here: per
// §6, that is a runtime error reported per-feed-request, not a startup
// failure — the server still starts.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.Dir == "" {
		return errors.New("data directory cannot be empty after expansion")
	}

	validExplicit := map[string]bool{"yes": true, "no": true, "clean": true}
	if !validExplicit[strings.ToLower(c.Pod.Explicit)] {
		return fmt.Errorf("invalid POD_EXPLICIT: %s (must be yes, no, or clean)", c.Pod.Explicit)
	}

	validTypes := map[string]bool{"episodic": true, "serial": true}
	if !validTypes[strings.ToLower(c.Pod.Type)] {
		return fmt.Errorf("invalid POD_TYPE: %s (must be episodic or serial)", c.Pod.Type)
	}

	return nil
}

func defaultTempDir() string {
	if dir := os.Getenv("TMPDIR"); dir != "" {
		return dir
	}
	return "/tmp"
}

// expandPath expands ~ and makes the path absolute.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

func (c *Config) expandDataDir() error {
	expanded, err := expandPath(c.Data.Dir, c.Data.Dir)
	if err != nil {
		return err
	}
	c.Data.Dir = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
