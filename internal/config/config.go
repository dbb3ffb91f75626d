package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/gluk-w/boxterm/internal/engine"
)

type Settings struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8000"`
	Username   string `envconfig:"USERNAME" default:"admin"`
	// Password is either plaintext or a bcrypt hash ($2a$/$2b$/$2y$).
	Password string `envconfig:"PASSWORD"`
	DataPath string `envconfig:"DATA_PATH" default:"/app/data"`

	// History storage
	HistoryBackend string `envconfig:"HISTORY_BACKEND" default:"file"`
	HistoryDir     string `envconfig:"HISTORY_DIR" default:""`
	DatabasePath   string `envconfig:"DATABASE_PATH" default:""`
	RedisAddr      string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`

	// Container engine
	Engine         string `envconfig:"ENGINE" default:"cli"`
	EngineBinary   string `envconfig:"ENGINE_BINARY" default:"docker"`
	DockerHost     string `envconfig:"DOCKER_HOST" default:""`
	Image          string `envconfig:"IMAGE" default:"ubuntu:24.04"`
	DefaultCommand string `envconfig:"DEFAULT_COMMAND" default:""`
	ProfileFile    string `envconfig:"PROFILE_FILE" default:""`

	// AllowedOrigins are extra host patterns (e.g. "*.example.com") allowed
	// to open terminal WebSockets cross-origin.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	SessionTTL          time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	MaxTerminalSessions int           `envconfig:"MAX_TERMINAL_SESSIONS" default:"20"`
	TerminalMode        string        `envconfig:"TERMINAL_MODE" default:"auto"`
	ExecWorkers         int           `envconfig:"EXEC_WORKERS" default:"4"`
	ExecOutputLimit     int           `envconfig:"EXEC_OUTPUT_LIMIT" default:"16000"`

	LogPath        string `envconfig:"LOG_PATH" default:""`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

var Cfg Settings

// Load fills Cfg from BOXTERM_* environment variables.
func Load() error {
	if err := envconfig.Process("BOXTERM", &Cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return Cfg.Validate()
}

// Validate checks values envconfig cannot express.
func (s *Settings) Validate() error {
	if s.Password == "" {
		return fmt.Errorf("BOXTERM_PASSWORD is required")
	}
	switch s.HistoryBackend {
	case "file", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown history backend %q", s.HistoryBackend)
	}
	switch s.Engine {
	case "cli", "docker":
	default:
		return fmt.Errorf("unknown engine %q", s.Engine)
	}
	switch s.TerminalMode {
	case "auto", "pty", "shim", "pipe":
	default:
		return fmt.Errorf("unknown terminal mode %q", s.TerminalMode)
	}
	if s.MaxTerminalSessions < 1 {
		return fmt.Errorf("MAX_TERMINAL_SESSIONS must be positive")
	}
	if s.ExecWorkers < 1 {
		return fmt.Errorf("EXEC_WORKERS must be positive")
	}
	return nil
}

func (s *Settings) HistoryPath() string {
	if s.HistoryDir != "" {
		return s.HistoryDir
	}
	return filepath.Join(s.DataPath, "history")
}

func (s *Settings) DatabaseFile() string {
	if s.DatabasePath != "" {
		return s.DatabasePath
	}
	return filepath.Join(s.DataPath, "boxterm.db")
}

func (s *Settings) LogFile() string {
	if s.LogPath != "" {
		return s.LogPath
	}
	return filepath.Join(s.DataPath, "boxterm.log")
}

// CreateSpec returns the container creation profile: the configured image,
// overlaid by ProfileFile when set. Empty fields in the file keep the
// environment value.
func (s *Settings) CreateSpec() (engine.CreateSpec, error) {
	spec := engine.CreateSpec{Image: s.Image}
	if s.ProfileFile == "" {
		return spec, nil
	}

	data, err := os.ReadFile(s.ProfileFile)
	if err != nil {
		return spec, fmt.Errorf("read profile: %w", err)
	}
	var file engine.CreateSpec
	if err := yaml.Unmarshal(data, &file); err != nil {
		return spec, fmt.Errorf("parse profile %s: %w", s.ProfileFile, err)
	}

	if strings.TrimSpace(file.Image) != "" {
		spec.Image = file.Image
	}
	spec.Memory = file.Memory
	spec.CPUs = file.CPUs
	spec.Network = file.Network
	spec.Workdir = file.Workdir
	spec.User = file.User
	spec.Env = file.Env
	spec.Ports = file.Ports
	return spec, nil
}
