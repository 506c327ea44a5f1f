package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/telegraph-dev/telegraph/internal/errors"
	"github.com/telegraph-dev/telegraph/pkg/protocol"
	"github.com/telegraph-dev/telegraph/pkg/server"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "telegraph.toml"

	// DefaultListen is the default raw TCP intake address.
	DefaultListen = ":28015"

	// DefaultAdminListen is the default admin HTTP address.
	DefaultAdminListen = ":9090"

	// DefaultWSPath is where the admin router mounts the intake.
	DefaultWSPath = "/ws"

	// DefaultNamespace is the default Prometheus namespace.
	DefaultNamespace = "telegraph"

	// DefaultTracerName is the default OpenTelemetry tracer name.
	DefaultTracerName = "telegraph"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the default log format.
	DefaultLogFormat = "text"
)

// Config is the complete telegraph.toml configuration.
type Config struct {
	// Server configures the packet intake.
	Server ServerConfig

	// Admin configures the admin HTTP server.
	Admin AdminConfig

	// Metrics configures Prometheus export.
	Metrics MetricsConfig

	// Tracing configures OpenTelemetry spans.
	Tracing TracingConfig

	// Log configures the process logger.
	Log LogConfig

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains intake settings.
type ServerConfig struct {
	// Listen is the raw TCP intake address.
	Listen string

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration

	// MaxMessageSize is the largest accepted WebSocket message in bytes.
	MaxMessageSize int64

	ReadBufferSize  int
	WriteBufferSize int

	// StrictControlFrames rejects ping and pong frames.
	StrictControlFrames bool

	// HandlerErrors is "log" or "close".
	HandlerErrors string

	// EnableCompression negotiates permessage-deflate.
	EnableCompression bool

	// AllowedOrigins lists Origin hosts accepted on upgrade. Empty means
	// same-origin only, "*" accepts any origin.
	AllowedOrigins []string
}

// AdminConfig contains admin HTTP settings.
type AdminConfig struct {
	// Enabled starts the admin server.
	Enabled bool

	// Listen is the admin HTTP address.
	Listen string

	// WSPath is where the intake is mounted on the admin router.
	WSPath string
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled    bool
	TracerName string
}

// LogConfig contains logger settings.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string

	// Format is text or json.
	Format string
}

// fileConfig mirrors telegraph.toml. Durations are strings so they can be
// written as "10s".
type fileConfig struct {
	Server struct {
		Listen              string   `toml:"listen"`
		HandshakeTimeout    string   `toml:"handshake_timeout"`
		ReadTimeout         string   `toml:"read_timeout"`
		WriteTimeout        string   `toml:"write_timeout"`
		MaxMessageSize      int64    `toml:"max_message_size"`
		ReadBufferSize      int      `toml:"read_buffer_size"`
		WriteBufferSize     int      `toml:"write_buffer_size"`
		StrictControlFrames bool     `toml:"strict_control_frames"`
		HandlerErrors       string   `toml:"handler_errors"`
		EnableCompression   bool     `toml:"enable_compression"`
		AllowedOrigins      []string `toml:"allowed_origins"`
	} `toml:"server"`
	Admin struct {
		Enabled bool   `toml:"enabled"`
		Listen  string `toml:"listen"`
		WSPath  string `toml:"ws_path"`
	} `toml:"admin"`
	Metrics struct {
		Enabled   bool   `toml:"enabled"`
		Namespace string `toml:"namespace"`
	} `toml:"metrics"`
	Tracing struct {
		Enabled    bool   `toml:"enabled"`
		TracerName string `toml:"tracer_name"`
	} `toml:"tracing"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

// New creates a new Config with default values.
func New() *Config {
	conn := server.DefaultConnConfig()
	srv := server.DefaultServerConfig()
	return &Config{
		Server: ServerConfig{
			Listen:           DefaultListen,
			HandshakeTimeout: conn.HandshakeTimeout,
			ReadTimeout:      conn.ReadTimeout,
			WriteTimeout:     conn.WriteTimeout,
			MaxMessageSize:   conn.MaxMessageSize,
			ReadBufferSize:   srv.ReadBufferSize,
			WriteBufferSize:  srv.WriteBufferSize,
			HandlerErrors:    conn.HandlerErrors.String(),
		},
		Admin: AdminConfig{
			Enabled: true,
			Listen:  DefaultAdminListen,
			WSPath:  DefaultWSPath,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: DefaultNamespace,
		},
		Tracing: TracingConfig{
			Enabled:    true,
			TracerName: DefaultTracerName,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load reads telegraph.toml from the specified directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path. Keys absent from
// the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("T100").
				WithDetail("No " + filepath.Base(path) + " found in " + filepath.Dir(path)).
				WithSuggestion("Create the file or drop --config to run with defaults")
		}
		return nil, errors.New("T100").Wrap(err)
	}

	var raw fileConfig
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		te := errors.New("T101").Wrap(err)
		var perr toml.ParseError
		if stderrors.As(err, &perr) {
			te.Wrapped = stderrors.New(perr.Message)
			te.WithLocation(path, perr.Position.Line, column(data, perr.Position.Start))
			if perr.Usage != "" {
				te.WithSuggestion(perr.Usage)
			}
		} else {
			te.WithLocation(path, 0, 0)
		}
		return nil, te
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.New("T103").
			WithLocation(path, 0, 0).
			WithDetail("Unknown keys: " + strings.Join(keys, ", ")).
			WithSuggestion("Check the key names against the documented telegraph.toml layout")
	}

	cfg := New()
	if err := cfg.overlay(raw, meta); err != nil {
		if te, ok := errors.As(err); ok {
			te.WithLocation(path, 0, 0)
		}
		return nil, err
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		if te, ok := errors.As(err); ok {
			te.WithLocation(path, 0, 0)
		}
		return nil, err
	}
	return cfg, nil
}

// overlay copies every key the file defines onto c.
func (c *Config) overlay(raw fileConfig, meta toml.MetaData) error {
	s := &raw.Server
	if meta.IsDefined("server", "listen") {
		c.Server.Listen = strings.TrimSpace(s.Listen)
	}
	for _, d := range []struct {
		key string
		src string
		dst *time.Duration
	}{
		{"handshake_timeout", s.HandshakeTimeout, &c.Server.HandshakeTimeout},
		{"read_timeout", s.ReadTimeout, &c.Server.ReadTimeout},
		{"write_timeout", s.WriteTimeout, &c.Server.WriteTimeout},
	} {
		if !meta.IsDefined("server", d.key) {
			continue
		}
		v, err := parseDuration(d.src)
		if err != nil {
			return errors.New("T102").
				WithDetail(fmt.Sprintf("server.%s: %v", d.key, err)).
				WithExample(d.key + ` = "30s"`)
		}
		*d.dst = v
	}
	if meta.IsDefined("server", "max_message_size") {
		c.Server.MaxMessageSize = s.MaxMessageSize
	}
	if meta.IsDefined("server", "read_buffer_size") {
		c.Server.ReadBufferSize = s.ReadBufferSize
	}
	if meta.IsDefined("server", "write_buffer_size") {
		c.Server.WriteBufferSize = s.WriteBufferSize
	}
	if meta.IsDefined("server", "strict_control_frames") {
		c.Server.StrictControlFrames = s.StrictControlFrames
	}
	if meta.IsDefined("server", "handler_errors") {
		c.Server.HandlerErrors = strings.TrimSpace(s.HandlerErrors)
	}
	if meta.IsDefined("server", "enable_compression") {
		c.Server.EnableCompression = s.EnableCompression
	}
	if meta.IsDefined("server", "allowed_origins") {
		c.Server.AllowedOrigins = normalizeList(s.AllowedOrigins)
	}

	if meta.IsDefined("admin", "enabled") {
		c.Admin.Enabled = raw.Admin.Enabled
	}
	if meta.IsDefined("admin", "listen") {
		c.Admin.Listen = strings.TrimSpace(raw.Admin.Listen)
	}
	if meta.IsDefined("admin", "ws_path") {
		c.Admin.WSPath = strings.TrimSpace(raw.Admin.WSPath)
	}

	if meta.IsDefined("metrics", "enabled") {
		c.Metrics.Enabled = raw.Metrics.Enabled
	}
	if meta.IsDefined("metrics", "namespace") {
		c.Metrics.Namespace = strings.TrimSpace(raw.Metrics.Namespace)
	}

	if meta.IsDefined("tracing", "enabled") {
		c.Tracing.Enabled = raw.Tracing.Enabled
	}
	if meta.IsDefined("tracing", "tracer_name") {
		c.Tracing.TracerName = strings.TrimSpace(raw.Tracing.TracerName)
	}

	if meta.IsDefined("log", "level") {
		c.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		c.Log.Format = strings.TrimSpace(raw.Log.Format)
	}
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.HandlerErrors == "" {
		c.Server.HandlerErrors = server.HandlerErrorsLog.String()
	}
	if c.Admin.Listen == "" {
		c.Admin.Listen = DefaultAdminListen
	}
	if c.Admin.WSPath == "" {
		c.Admin.WSPath = DefaultWSPath
	}
	if !strings.HasPrefix(c.Admin.WSPath, "/") {
		c.Admin.WSPath = "/" + c.Admin.WSPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = DefaultTracerName
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.MaxMessageSize < 0 || c.Server.MaxMessageSize > protocol.HardMaxPacketSize {
		return errors.New("T102").
			WithDetail(fmt.Sprintf("server.max_message_size must be between 0 and %d, got %d",
				protocol.HardMaxPacketSize, c.Server.MaxMessageSize))
	}
	if _, err := server.ParseHandlerErrorPolicy(c.Server.HandlerErrors); err != nil {
		return errors.New("T102").
			WithDetail(fmt.Sprintf("server.handler_errors: unknown policy %q", c.Server.HandlerErrors)).
			WithSuggestion(`Use "log" or "close"`)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := ParseLogFormat(c.Log.Format); err != nil {
		return err
	}
	if c.Admin.Enabled && c.Admin.Listen == c.Server.Listen && !strings.HasSuffix(c.Server.Listen, ":0") {
		return errors.New("T102").
			WithDetail("admin.listen and server.listen must differ, both are " + c.Server.Listen)
	}
	sc, err := c.serverConfig()
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return errors.New("T102").WithDetail(err.Error())
	}
	return nil
}

// ServerConfig converts the intake section into a server configuration.
func (c *Config) ServerConfig() (*server.ServerConfig, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c.serverConfig()
}

func (c *Config) serverConfig() (*server.ServerConfig, error) {
	policy, err := server.ParseHandlerErrorPolicy(c.Server.HandlerErrors)
	if err != nil {
		return nil, errors.New("T102").Wrap(err)
	}
	sc := server.DefaultServerConfig().WithAddress(c.Server.Listen)
	sc.ReadBufferSize = c.Server.ReadBufferSize
	sc.WriteBufferSize = c.Server.WriteBufferSize
	sc.EnableCompression = c.Server.EnableCompression
	sc.CheckOrigin = OriginCheck(c.Server.AllowedOrigins)
	sc.ConnConfig.HandshakeTimeout = c.Server.HandshakeTimeout
	sc.ConnConfig.ReadTimeout = c.Server.ReadTimeout
	sc.ConnConfig.WriteTimeout = c.Server.WriteTimeout
	sc.ConnConfig.MaxMessageSize = c.Server.MaxMessageSize
	sc.ConnConfig.StrictControlFrames = c.Server.StrictControlFrames
	sc.ConnConfig.HandlerErrors = policy
	return sc, nil
}

// OriginCheck returns an upgrade origin check for the allowed hosts. An empty
// list means same origin only and "*" accepts every origin.
func OriginCheck(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return server.SameOriginCheck
	}
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		if server.SameOriginCheck(r) {
			return true
		}
		u, err := url.Parse(r.Header.Get("Origin"))
		if err != nil {
			return false
		}
		return slices.Contains(allowed, u.Host)
	}
}

// ParseLogLevel parses debug, info, warn or error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, errors.New("T121").WithDetail(fmt.Sprintf("Unknown log level %q. Log levels are debug, info, warn and error.", s))
	}
}

// ParseLogFormat normalizes text or json.
func ParseLogFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", "text":
		return "text", nil
	case "json":
		return f, nil
	default:
		return "", errors.New("T122").WithDetail(fmt.Sprintf("Unknown log format %q. Log formats are text and json.", s))
	}
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// LoadFromWorkingDir loads telegraph.toml from the working directory when
// one exists and returns defaults otherwise.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if !Exists(wd) {
		return New(), nil
	}
	return Load(wd)
}

// column returns the 1-based column of byte offset off in data.
func column(data []byte, off int) int {
	if off < 0 || off > len(data) {
		return 0
	}
	line := bytes.LastIndexByte(data[:off], '\n')
	return off - line
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative, got %s", d)
	}
	return d, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
