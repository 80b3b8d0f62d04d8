package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath string
	URL        string
	Query      string
	QueryFile  string
	Variables  string
	Policy     string
	Timeout    time.Duration
	LogLevel   string
	LogFormat  string
	Debug      bool

	ShowVersion bool
}

func parseFlags() (*CLIConfig, bool) {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("URQL_CONFIG", ""),
		"Path to YAML configuration file (env: URQL_CONFIG)")

	flag.StringVar(&cfg.URL, "url",
		getEnv("URQL_URL", ""),
		"GraphQL endpoint URL; overrides the config file (env: URQL_URL)")

	flag.StringVar(&cfg.Query, "query", "",
		"GraphQL document to execute; reads stdin when absent")

	flag.StringVar(&cfg.QueryFile, "file", "",
		"Path to a file containing the GraphQL document")

	flag.StringVar(&cfg.Variables, "variables", "",
		"Operation variables as a JSON object")

	flag.StringVar(&cfg.Policy, "policy", "",
		"Request policy: cache-first, cache-only, network-only, cache-and-network")

	flag.DurationVar(&cfg.Timeout, "timeout", 30*time.Second,
		"Timeout for queries and mutations")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("URQL_LOG_LEVEL", "warn"),
		"Log level: debug, info, warn, error (env: URQL_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("URQL_LOG_FORMAT", "text"),
		"Log format: json, text (env: URQL_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug", false,
		"Log pipeline debug events")

	flag.BoolVar(&cfg.ShowVersion, "version", false,
		"Print version and exit")

	flag.Parse()

	if cfg.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return cfg, true
	}

	return cfg, false
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
