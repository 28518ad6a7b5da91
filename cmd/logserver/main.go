package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/logserver/internal/inetaddr"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var showVersion, printConfig bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/logserver/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.BoolVar(&printConfig, "print-config", false, "print the effective configuration as YAML and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("logserver - UDP syslog collector\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if printConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LOGSERVER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("server-address", defaultServerAddress)
	v.SetDefault("server-port", defaultServerPort)
	v.SetDefault("server-log-dir", defaultServerLogDir)
	v.SetDefault("timezone", defaultTimezone)
	v.SetDefault("buffer-size", defaultBufferSize)
	v.SetDefault("receive-timeout", defaultReceiveTimeout)
	v.SetDefault("non-blocking", false)
	v.SetDefault("read-buffer", 0)
	v.SetDefault("source-max-lines", defaultSourceMaxLines)
	v.SetDefault("journal-max-lines", defaultJournalMaxLines)
	v.SetDefault("flush-interval", time.Duration(0))
	v.SetDefault("api-enabled", false)
	v.SetDefault("api-addr", defaultAPIAddr)
	v.SetDefault("archive-enabled", false)
	v.SetDefault("archive-path", filepath.Join(home, ".local", "share", "logserver", "archive.duckdb"))
	v.SetDefault("archive-batch-size", defaultArchiveBatchSize)
	v.SetDefault("archive-retention-days", 0)
	v.SetDefault("forward-enabled", false)
	v.SetDefault("forward-endpoint", "")
	v.SetDefault("forward-batch-size", defaultForwardBatchSize)
	v.SetDefault("forward-timeout", defaultForwardTimeout)
	v.SetDefault("runtime-log", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "logserver", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if !inetaddr.IsValidPort(cfg.ServerPort) {
		return cfg, fmt.Errorf("invalid server-port: %d", cfg.ServerPort)
	}
	if strings.TrimSpace(cfg.ServerAddress) == "" {
		return cfg, errors.New("server-address is required")
	}
	if cfg.ServerLogDir == "" {
		return cfg, errors.New("server-log-dir is required")
	}
	if cfg.BufferSize <= 0 {
		return cfg, fmt.Errorf("invalid buffer-size: %d", cfg.BufferSize)
	}
	if cfg.ArchiveRetentionDays < 0 {
		return cfg, fmt.Errorf("invalid archive-retention-days: %d", cfg.ArchiveRetentionDays)
	}
	if cfg.ForwardEnabled && cfg.ForwardEndpoint == "" {
		return cfg, errors.New("forward-endpoint is required when forward-enabled is set")
	}
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return cfg, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	// Expand ~ in paths
	cfg.ServerLogDir = expandHome(home, cfg.ServerLogDir)
	cfg.ArchivePath = expandHome(home, cfg.ArchivePath)
	cfg.RuntimeLog = expandHome(home, cfg.RuntimeLog)
	for i := range cfg.Sources {
		cfg.Sources[i].Path = expandHome(home, cfg.Sources[i].Path)
	}

	return cfg, nil
}

func loadLocation(name string) (*time.Location, error) {
	switch strings.ToUpper(name) {
	case "", "UTC", "GMT":
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
