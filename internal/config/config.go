package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/a3tai/mcp-bulletin/internal/bulletin"
	"github.com/a3tai/mcp-bulletin/internal/generate"
	"github.com/a3tai/mcp-bulletin/internal/layout"
	"github.com/a3tai/mcp-bulletin/internal/pdf/wrapper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// EnvPrefix prefixes every environment variable, e.g. BULLETIN_PORT
	EnvPrefix = "BULLETIN"

	// Default values
	DefaultPort         = 8080
	DefaultHost         = "127.0.0.1"
	DefaultLogLevel     = "info"
	DefaultMaxFileSize  = 100 * 1024 * 1024 // 100MB
	DefaultFontColor    = "#000000"
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 60 * time.Second

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Config holds all configuration for the bulletin service
type Config struct {
	// Server configuration
	Mode         string // "server" or "stdio"
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// PDFDirectory bounds the paths MCP tools may read and write
	PDFDirectory string
	// StorageDir is the root of uploaded PDFs
	StorageDir string
	// DatabaseURL selects the Postgres store; empty keeps data in memory
	DatabaseURL string

	// Layout analysis
	PDFBackend     string
	MatchThreshold float64
	RowTolerance   float64
	Quantum        float64
	MaxFragments   int
	TextPrefix     int
	FontSize       float64
	Font           string
	FontColor      string
	Workers        int

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum PDF file size in bytes
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		// Fallback to current directory if working directory cannot be determined
		currentDir = "."
	}

	return &Config{
		Mode:           ModeStdio, // Default to stdio mode for MCP compatibility
		Host:           DefaultHost,
		Port:           DefaultPort,
		ReadTimeout:    DefaultReadTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		PDFDirectory:   currentDir,
		StorageDir:     filepath.Join(currentDir, "bulletins"),
		PDFBackend:     string(wrapper.LibraryAuto),
		MatchThreshold: bulletin.DefaultMatchThreshold,
		RowTolerance:   layout.DefaultRowTolerance,
		Quantum:        layout.DefaultQuantum,
		MaxFragments:   layout.DefaultMaxFragments,
		TextPrefix:     layout.DefaultTextPrefix,
		FontSize:       generate.DefaultFontSize,
		Font:           string(wrapper.FontHelvetica),
		FontColor:      DefaultFontColor,
		Workers:        runtime.NumCPU(),
		Version:        "1.0.0",
		ServerName:     "mcp-bulletin",
		LogLevel:       DefaultLogLevel,
		MaxFileSize:    DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration.
// Values from a .env file in the working directory are applied first and
// never override variables already present in the environment.
func LoadFromFlags() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	// Expand paths if needed
	cfg.PDFDirectory = absPath(cfg.PDFDirectory)
	cfg.StorageDir = absPath(cfg.StorageDir)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func absPath(path string) string {
	if path == "" {
		return path
	}
	if expanded, err := filepath.Abs(path); err == nil {
		return expanded
	}
	return path
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	// Set environment variable prefix
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("read_timeout", cfg.ReadTimeout)
	viper.SetDefault("write_timeout", cfg.WriteTimeout)
	viper.SetDefault("dir", cfg.PDFDirectory)
	viper.SetDefault("storage_dir", cfg.StorageDir)
	viper.SetDefault("database_url", cfg.DatabaseURL)
	viper.SetDefault("pdf_backend", cfg.PDFBackend)
	viper.SetDefault("match_threshold", cfg.MatchThreshold)
	viper.SetDefault("row_tolerance", cfg.RowTolerance)
	viper.SetDefault("quantum", cfg.Quantum)
	viper.SetDefault("max_fragments", cfg.MaxFragments)
	viper.SetDefault("text_prefix", cfg.TextPrefix)
	viper.SetDefault("font_size", cfg.FontSize)
	viper.SetDefault("font", cfg.Font)
	viper.SetDefault("font_color", cfg.FontColor)
	viper.SetDefault("workers", cfg.Workers)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.Duration("read-timeout", cfg.ReadTimeout, "HTTP read timeout (server mode only)")
	pflag.Duration("write-timeout", cfg.WriteTimeout, "HTTP write timeout (server mode only)")
	pflag.String("dir", cfg.PDFDirectory, "Directory MCP tools may read PDFs from and write PDFs to")
	pflag.String("storage-dir", cfg.StorageDir, "Directory holding uploaded bulletin PDFs")
	pflag.String("database-url", cfg.DatabaseURL, "Postgres DSN; templates and bulletins stay in memory when empty")
	pflag.String("pdf-backend", cfg.PDFBackend, "Text extraction backend (auto, ledongthuc)")
	pflag.Float64("match-threshold", cfg.MatchThreshold, "Minimum fingerprint similarity for a template match")
	pflag.Float64("row-tolerance", cfg.RowTolerance, "Vertical distance within which fragments share a row")
	pflag.Float64("quantum", cfg.Quantum, "Grid size positions are rounded to when fingerprinting")
	pflag.Int("max-fragments", cfg.MaxFragments, "Number of fragments that contribute to a fingerprint")
	pflag.Int("text-prefix", cfg.TextPrefix, "Number of characters of each fragment kept in a fingerprint")
	pflag.Float64("font-size", cfg.FontSize, "Default font size of regenerated values")
	pflag.String("font", cfg.Font, "Font of regenerated values (Helvetica, Helvetica-Bold, Times-Roman, Courier)")
	pflag.String("font-color", cfg.FontColor, "Color of regenerated values as #RRGGBB")
	pflag.Int("workers", cfg.Workers, "Pages decoded concurrently per document")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
}

// flagKeys maps flag names to viper keys where they differ
var flagKeys = map[string]string{
	"mode":            "mode",
	"host":            "host",
	"port":            "port",
	"read-timeout":    "read_timeout",
	"write-timeout":   "write_timeout",
	"dir":             "dir",
	"storage-dir":     "storage_dir",
	"database-url":    "database_url",
	"pdf-backend":     "pdf_backend",
	"match-threshold": "match_threshold",
	"row-tolerance":   "row_tolerance",
	"quantum":         "quantum",
	"max-fragments":   "max_fragments",
	"text-prefix":     "text_prefix",
	"font-size":       "font_size",
	"font":            "font",
	"font-color":      "font_color",
	"workers":         "workers",
	"loglevel":        "loglevel",
	"maxfilesize":     "maxfilesize",
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for flag, key := range flagKeys {
		_ = viper.BindPFlag(key, pflag.Lookup(flag))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nMCP Bulletin - template matching and regeneration for weekly bulletin PDFs\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                          "+
			"# MCP over stdio, current directory (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --storage-dir=/var/bulletins # HTTP API with file storage\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --database-url=postgres://... # HTTP API backed by Postgres\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (a .env file is read when present):\n")
		fmt.Fprintf(os.Stderr, "  BULLETIN_MODE             Server mode\n")
		fmt.Fprintf(os.Stderr, "  BULLETIN_HOST             Server host\n")
		fmt.Fprintf(os.Stderr, "  BULLETIN_PORT             Server port\n")
		fmt.Fprintf(os.Stderr, "  BULLETIN_DIR              MCP file directory\n")
		fmt.Fprintf(os.Stderr, "  BULLETIN_STORAGE_DIR      Upload storage directory\n")
		fmt.Fprintf(os.Stderr, "  BULLETIN_DATABASE_URL     Postgres DSN\n")
		fmt.Fprintf(os.Stderr, "  BULLETIN_MATCH_THRESHOLD  Template match threshold\n")
		fmt.Fprintf(os.Stderr, "  BULLETIN_FONT             Font of regenerated values\n")
		fmt.Fprintf(os.Stderr, "  BULLETIN_FONT_COLOR       Color of regenerated values\n")
		fmt.Fprintf(os.Stderr, "  BULLETIN_LOGLEVEL         Log level\n")
		fmt.Fprintf(os.Stderr, "  BULLETIN_MAXFILESIZE      Maximum file size\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.ReadTimeout = viper.GetDuration("read_timeout")
	cfg.WriteTimeout = viper.GetDuration("write_timeout")
	cfg.PDFDirectory = viper.GetString("dir")
	cfg.StorageDir = viper.GetString("storage_dir")
	cfg.DatabaseURL = viper.GetString("database_url")
	cfg.PDFBackend = viper.GetString("pdf_backend")
	cfg.MatchThreshold = viper.GetFloat64("match_threshold")
	cfg.RowTolerance = viper.GetFloat64("row_tolerance")
	cfg.Quantum = viper.GetFloat64("quantum")
	cfg.MaxFragments = viper.GetInt("max_fragments")
	cfg.TextPrefix = viper.GetInt("text_prefix")
	cfg.FontSize = viper.GetFloat64("font_size")
	cfg.Font = viper.GetString("font")
	cfg.FontColor = viper.GetString("font_color")
	cfg.Workers = viper.GetInt("workers")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate mode
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Validate port range (only for server mode)
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.PDFDirectory == "" {
		return errors.New("PDF directory cannot be empty")
	}
	if err := ensureDir(c.PDFDirectory); err != nil {
		return err
	}

	if c.Mode == ModeServer {
		if c.StorageDir == "" {
			return errors.New("storage directory cannot be empty in server mode")
		}
		if err := ensureDir(c.StorageDir); err != nil {
			return err
		}
		if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
			return errors.New("timeouts cannot be negative")
		}
	}

	// Validate max file size
	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	switch wrapper.LibraryType(c.PDFBackend) {
	case wrapper.LibraryAuto, wrapper.LibraryLedongthuc:
	default:
		return fmt.Errorf("invalid PDF backend: %s (must be one of: auto, ledongthuc)", c.PDFBackend)
	}

	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match threshold must be in (0, 1], got %g", c.MatchThreshold)
	}
	if c.RowTolerance <= 0 {
		return errors.New("row tolerance must be positive")
	}
	if c.Quantum <= 0 {
		return errors.New("quantum must be positive")
	}
	if c.MaxFragments < 1 || c.TextPrefix < 1 {
		return errors.New("max fragments and text prefix must be at least 1")
	}
	if c.FontSize <= 0 {
		return errors.New("font size must be positive")
	}
	if _, err := wrapper.ParseFont(c.Font); err != nil {
		return err
	}
	if _, err := wrapper.ParseColor(c.FontColor); err != nil {
		return err
	}
	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// ensureDir creates dir when it does not exist
func ensureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access directory %s: %w", dir, err)
	}
	return nil
}

// LayoutOptions returns the analysis settings
func (c *Config) LayoutOptions() layout.Options {
	return layout.Options{
		RowTolerance: c.RowTolerance,
		Quantum:      c.Quantum,
		MaxFragments: c.MaxFragments,
		TextPrefix:   c.TextPrefix,
		Workers:      c.Workers,
	}
}

// FontStyle returns the font and color regenerated values are drawn in.
// Values Validate would reject fall back to black Helvetica.
func (c *Config) FontStyle() (wrapper.StandardFont, wrapper.Color) {
	font, err := wrapper.ParseFont(c.Font)
	if err != nil {
		font = wrapper.FontHelvetica
	}
	color, err := wrapper.ParseColor(c.FontColor)
	if err != nil {
		color = wrapper.Black
	}
	return font, color
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// UsesDatabase reports whether a Postgres store is configured
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}

// String returns a string representation of the configuration. The
// database URL is reported only as set or unset.
func (c *Config) String() string {
	database := "memory"
	if c.UsesDatabase() {
		database = "postgres"
	}
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, PDFDirectory: %s, StorageDir: %s, Store: %s, "+
		"Backend: %s, MatchThreshold: %g, LogLevel: %s, MaxFileSize: %d}",
		c.Mode, c.Host, c.Port, c.PDFDirectory, c.StorageDir, database,
		c.PDFBackend, c.MatchThreshold, c.LogLevel, c.MaxFileSize)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
