package framelink

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Default endpoint values.
const (
	DefaultHost       = "localhost"
	DefaultPort       = 50000
	DefaultMaxPending = 10
)

// Config is the file configuration of a client and a server.
type Config struct {
	Client ClientConfig `toml:"client"`
	Server ServerConfig `toml:"server"`
}

// ClientConfig holds the [client] section.
type ClientConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	ReadTimeoutMS  int64  `toml:"read_timeout_ms"`
	WriteTimeoutMS int64  `toml:"write_timeout_ms"`
	DialTimeoutMS  int64  `toml:"dial_timeout_ms"`
	MaxErrors      int    `toml:"max_errors"`
	MaxFrameSize   int    `toml:"max_frame_size"`
}

// ServerConfig holds the [server] section.
type ServerConfig struct {
	Host                 string `toml:"host"`
	Port                 int    `toml:"port"`
	MaxPending           int    `toml:"max_pending"`
	HandlerReadTimeoutMS int64  `toml:"handler_read_timeout_ms"`
	WriteTimeoutMS       int64  `toml:"write_timeout_ms"`
	ShutdownTimeoutMS    int64  `toml:"shutdown_timeout_ms"`
	MaxErrors            int    `toml:"max_errors"`
	MaxFrameSize         int    `toml:"max_frame_size"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Client: ClientConfig{
			Host:          DefaultHost,
			Port:          DefaultPort,
			ReadTimeoutMS: DefaultClientReadTimeout.Milliseconds(),
			DialTimeoutMS: DefaultDialTimeout.Milliseconds(),
			MaxErrors:     DefaultMaxErrors,
		},
		Server: ServerConfig{
			Port:       DefaultPort,
			MaxPending: DefaultMaxPending,
			MaxErrors:  DefaultMaxErrors,
		},
	}
}

// LoadConfig reads a TOML file over DefaultConfig. Unknown keys are
// rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return Config{}, errors.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}

	return cfg, nil
}

// Validate checks the ranges of every field.
func (c Config) Validate() error {
	if err := c.Client.Validate(); err != nil {
		return errors.Wrap(err, "client")
	}
	if err := c.Server.Validate(); err != nil {
		return errors.Wrap(err, "server")
	}
	return nil
}

// Validate checks the client section.
func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("host is required")
	}
	if err := validatePort(c.Port); err != nil {
		return err
	}
	if c.ReadTimeoutMS < 0 || c.WriteTimeoutMS < 0 || c.DialTimeoutMS < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.MaxErrors < 0 || c.MaxFrameSize < 0 {
		return errors.New("limits must not be negative")
	}
	return nil
}

// Validate checks the server section.
func (c ServerConfig) Validate() error {
	if err := validatePort(c.Port); err != nil {
		return err
	}
	if c.MaxPending < 0 {
		return errors.New("max_pending must not be negative")
	}
	if c.HandlerReadTimeoutMS < 0 || c.WriteTimeoutMS < 0 || c.ShutdownTimeoutMS < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.MaxErrors < 0 || c.MaxFrameSize < 0 {
		return errors.New("limits must not be negative")
	}
	return nil
}

func validatePort(port int) error {
	if port < 0 || port > 65535 {
		return errors.Errorf("port %d out of range", port)
	}
	return nil
}

// Options converts the section to connection options.
func (c ClientConfig) Options() []Option {
	return []Option{
		ReadTimeoutOption(millis(c.ReadTimeoutMS)),
		WriteTimeoutOption(millis(c.WriteTimeoutMS)),
		DialTimeoutOption(millis(c.DialTimeoutMS)),
		MaxErrorsOption(c.MaxErrors),
		MaxFrameSizeOption(c.MaxFrameSize),
	}
}

// NewClient builds a client from the section. extra options are applied
// last.
func (c ClientConfig) NewClient(extra ...Option) *Client {
	return NewClient(c.Host, c.Port, append(c.Options(), extra...)...)
}

// Options converts the section to server options. Handler options are
// grouped into a single HandlerOptions.
func (c ServerConfig) Options() []ServerOption {
	opts := []ServerOption{
		ServerShutdownTimeoutOption(millis(c.ShutdownTimeoutMS)),
		HandlerOptions(
			ReadTimeoutOption(millis(c.HandlerReadTimeoutMS)),
			WriteTimeoutOption(millis(c.WriteTimeoutMS)),
			MaxErrorsOption(c.MaxErrors),
			MaxFrameSizeOption(c.MaxFrameSize),
		),
	}
	if c.Host != "" {
		opts = append(opts, ListenHostOption(c.Host))
	}
	return opts
}

// NewServer builds a server from the section. extra options are applied
// last.
func (c ServerConfig) NewServer(extra ...ServerOption) *Server {
	return NewServer(c.Port, c.MaxPending, append(c.Options(), extra...)...)
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
