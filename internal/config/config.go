// Package config holds the configuration structures for the Grizabella
// server and CLI launcher.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/pkg/embedder"
	"github.com/pwilkin/grizabella/pkg/version"
)

// Config holds the configuration for the Grizabella server.
type Config struct {
	// MCPStreamableHTTP requests MCP over Streamable HTTP transport. The
	// launcher does not implement this transport: it logs a warning and
	// serves MCP over stdio.
	MCPStreamableHTTP         bool   `mapstructure:"mcp-http"`
	MCPStreamableHTTPAddr     string `mapstructure:"mcp-http-addr"`
	MCPStreamableHTTPEndpoint string `mapstructure:"mcp-http-endpoint"`

	HTTP         bool   `mapstructure:"http"`
	HTTPAddr     string `mapstructure:"http-addr"`
	RestAPIServe bool   `mapstructure:"rest-api-serve"`

	// DBPath names the database instance: "default" resolves under the
	// per-user data directory, a bare name resolves under
	// <data_dir>/databases/<name>, and an absolute path is used as-is.
	// GRIZABELLA_DB_PATH overrides this for server deployments.
	DBPath string `mapstructure:"db-path"`

	// Backend selection: "sqlite" (default, embedded) or an alternate
	// backend for the vector/graph stores. The relational store is always
	// sqlite.
	VectorBackend string `mapstructure:"vector-backend"` // "sqlite" | "pgvector"
	VectorDSN     string `mapstructure:"vector-dsn"`      // Postgres DSN when vector-backend=pgvector
	GraphBackend  string `mapstructure:"graph-backend"`   // "sqlite" | "falkordb"
	GraphDSN      string `mapstructure:"graph-dsn"`       // "host:port|graphName" when graph-backend=falkordb

	// Embedder configuration.
	OllamaURL     string `mapstructure:"ollama-url"`
	OpenAIKey     string `mapstructure:"openai-key"`
	OpenAIBaseURL string `mapstructure:"openai-url"`

	LogFile string `mapstructure:"log"`
	// When true, disables all logging output to stdout/stderr. Logs will
	// only be written to the configured log file (if any).
	DisableOutputLog bool `mapstructure:"disable-output-log"`

	// RepairIntervalSeconds is read from the repair-interval-seconds flag.
	// The engine does not use it: the coherence-repair worker always polls
	// at coordinator.DefaultRepairInterval.
	RepairIntervalSeconds int `mapstructure:"repair-interval-seconds"`
}

// Load loads the configuration from CLI flags and environment variables.
func Load() (*Config, error) {
	pflag.Bool("mcp-http", false, "Request MCP Streamable HTTP transport (not implemented; the server falls back to stdio)")
	pflag.String("mcp-http-addr", "3000", "Port or address to bind MCP Streamable HTTP transport (e.g. 3000 or 127.0.0.1:3000)")
	pflag.String("mcp-http-endpoint", "/mcp", "HTTP path for the MCP Streamable HTTP endpoint")

	pflag.Bool("http", false, "Enable HTTP JSON API transport")
	pflag.String("http-addr", ":8080", "Address to bind HTTP transport (host:port)")
	pflag.Bool("rest-api-serve", false, "Enable REST API server")

	pflag.String("db-path", "default", `Database instance name or path ("default", a bare name, or an absolute path)`)
	pflag.String("vector-backend", "sqlite", "Vector store backend: sqlite or pgvector")
	pflag.String("vector-dsn", "", "Vector store DSN (Postgres DSN when vector-backend=pgvector; defaults to the relational path for sqlite)")
	pflag.String("graph-backend", "sqlite", "Graph store backend: sqlite or falkordb")
	pflag.String("graph-dsn", "", `Graph store DSN ("host:port|graphName" when graph-backend=falkordb; defaults to the relational path for sqlite)`)

	pflag.String("ollama-url", "", "URL for an Ollama server to serve embeddings")
	pflag.String("openai-key", "", "OpenAI API key for embeddings")
	pflag.String("openai-url", "https://api.openai.com/v1", "OpenAI-compatible base URL")

	pflag.String("log", "", "Path to the log file (logs are written to both stdout/stderr and the file)")
	pflag.Bool("disable-output-log", false, "Disable logging to stdout/stderr; only write to log file if configured")
	pflag.Int("repair-interval-seconds", 0, "Coherence-repair worker poll interval in seconds (not applied; the worker always uses the engine default)")

	pflag.String("config", "", "Path to YAML configuration file")
	flag.Bool("version", false, "Print version and exit")
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	if ver := pflag.Lookup("version"); ver != nil && ver.Value.String() == "true" {
		fmt.Println(version.Describe())
		os.Exit(0)
	}

	v := viper.New()

	configPath := pflag.Lookup("config").Value.String()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if homeDir, err := os.UserHomeDir(); err == nil {
		var standardConfigPath string
		if runtime.GOOS == "darwin" {
			standardConfigPath = filepath.Join(homeDir, "Library", "Application Support", "grizabella", "config.yaml")
		} else {
			standardConfigPath = filepath.Join(homeDir, ".config", "grizabella", "config.yaml")
		}
		if _, err := os.Stat(standardConfigPath); err == nil {
			v.SetConfigFile(standardConfigPath)
			if err := v.ReadInConfig(); err == nil {
				slog.Info("using configuration file from standard location", "path", standardConfigPath)
			}
		}
	}

	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return nil, fmt.Errorf("failed to bind pflags: %w", err)
	}
	v.SetEnvPrefix("GRIZABELLA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if override := os.Getenv("GRIZABELLA_DB_PATH"); override != "" {
		cfg.DBPath = override
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration can build a working engine.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("a database path must be provided")
	}
	if c.VectorBackend != "sqlite" && c.VectorBackend != "pgvector" {
		return fmt.Errorf("unknown vector-backend %q: want sqlite or pgvector", c.VectorBackend)
	}
	if c.GraphBackend != "sqlite" && c.GraphBackend != "falkordb" {
		return fmt.Errorf("unknown graph-backend %q: want sqlite or falkordb", c.GraphBackend)
	}
	if c.VectorBackend == "pgvector" && c.VectorDSN == "" {
		return errors.New("vector-dsn is required when vector-backend=pgvector")
	}
	if c.GraphBackend == "falkordb" && c.GraphDSN == "" {
		return errors.New("graph-dsn is required when graph-backend=falkordb")
	}
	if c.OllamaURL == "" && c.OpenAIKey == "" {
		return errors.New("at least one embedder (Ollama or OpenAI) must be configured")
	}
	return nil
}

// InstanceRoot resolves DBPath to the on-disk directory holding the
// instance's relational/vector/graph sub-locations, per spec §6's layout
// rule: "default" under a per-user data directory; a bare name under
// <data_dir>/databases/<name>; an absolute path as-is.
func (c *Config) InstanceRoot() (string, error) {
	if filepath.IsAbs(c.DBPath) {
		return c.DBPath, nil
	}
	dataDir, err := dataDir()
	if err != nil {
		return "", err
	}
	if c.DBPath == "default" {
		return filepath.Join(dataDir, "grizabella"), nil
	}
	return filepath.Join(dataDir, "grizabella", "databases", c.DBPath), nil
}

func dataDir() (string, error) {
	if runtime.GOOS == "darwin" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share"), nil
}

// BackendConfig builds the store.BackendConfig this configuration implies,
// given instanceRoot from InstanceRoot(). sqlite-backed vector/graph
// default to the relational file itself so Open shares one connection.
func (c *Config) BackendConfig(instanceRoot string) store.BackendConfig {
	relationalPath := filepath.Join(instanceRoot, "relational", "data.db")

	vectorBackend := store.BackendSQLite
	vectorDSN := relationalPath
	if c.VectorBackend == "pgvector" {
		vectorBackend = store.BackendPGVector
		vectorDSN = c.VectorDSN
	}

	graphBackend := store.BackendSQLite
	graphDSN := relationalPath
	if c.GraphBackend == "falkordb" {
		graphBackend = store.BackendFalkorDB
		graphDSN = c.GraphDSN
	}

	return store.BackendConfig{
		RelationalPath: relationalPath,
		VectorBackend:  vectorBackend,
		VectorDSN:      vectorDSN,
		GraphBackend:   graphBackend,
		GraphDSN:       graphDSN,
	}
}

// EmbedderConfig builds the pkg/embedder configuration this configuration
// implies.
func (c *Config) EmbedderConfig() *embedder.Config {
	return &embedder.Config{
		OllamaURL:     c.OllamaURL,
		OpenAIKey:     c.OpenAIKey,
		OpenAIBaseURL: c.OpenAIBaseURL,
	}
}

// Getenv reads an environment variable or returns a default value.
func Getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// SetupLogging configures slog output.
//
// Important: when running MCP over stdio, stdout must be reserved for
// protocol messages. Therefore, console logs default to stderr in stdio
// mode.
func (c *Config) SetupLogging() error {
	var writers []io.Writer

	if !c.DisableOutputLog {
		stdioMode := !c.MCPStreamableHTTP && !c.HTTP && !c.RestAPIServe
		if stdioMode {
			writers = append(writers, os.Stderr)
		} else {
			writers = append(writers, os.Stdout)
		}
	}

	if c.LogFile != "" {
		logFile, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", c.LogFile, err)
		}
		writers = append(writers, logFile)
	}

	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	multiWriter := io.MultiWriter(writers...)
	handler := slog.NewTextHandler(multiWriter, &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: false,
	})
	slog.SetDefault(slog.New(handler))
	return nil
}
