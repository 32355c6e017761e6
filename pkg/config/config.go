// Package config loads the daemon's TOML configuration.
package config

import (
	"io/ioutil"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/taskwatch/taskwatch.toml"

const (
	defaultQueueDir       = "/var/ossec/queue"
	defaultTaskSocket     = "tasks/task"
	defaultClusterSocket  = "cluster/c-internal.sock"
	defaultControlSocket  = "/run/taskwatch/control.sock"
	defaultMaxMessageSize = 65536
	defaultSocketTimeout  = "30s"
	defaultLockFile       = "/run/lock/taskwatch.lock"
	defaultLogLevel       = "info"
	defaultSubject        = "taskwatch.cluster"
	defaultRelayTimeout   = "30s"
	defaultSweepInterval  = "1m"
	defaultTaskTimeout    = "15m"
)

// Relay transports a worker can use to reach the master.
const (
	RelaySocket = "socket"
	RelayNATS   = "nats"
)

// Config is the daemon configuration.
type Config struct {
	QueueDir        string  `toml:"queue_dir"`
	TaskSocket      string  `toml:"task_socket"`
	ControlSocket   string  `toml:"control_socket"`
	MaxMessageSize  int     `toml:"max_message_size"`
	SocketTimeout   string  `toml:"socket_timeout"`
	LockFile        string  `toml:"lock_file"`
	LogLevel        string  `toml:"log_level"`
	TaskManagerUnit string  `toml:"task_manager_unit"`
	Cluster         Cluster `toml:"cluster"`
	Sweep           Sweep   `toml:"sweep"`
}

// Cluster configures the node's role and how workers reach the master.
type Cluster struct {
	Disabled bool   `toml:"disabled"`
	NodeType string `toml:"node_type"`
	Relay    string `toml:"relay"`
	Socket   string `toml:"socket"`
	NATSURL  string `toml:"nats_url"`
	Subject  string `toml:"subject"`
	Timeout  string `toml:"timeout"`
}

// Sweep configures the periodic timeout sweep of tracked tasks.
type Sweep struct {
	Interval    string `toml:"interval"`
	TaskTimeout string `toml:"task_timeout"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the configuration at path, filling unset values with defaults.
func Load(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read configuration")
	}
	return Parse(raw)
}

// Parse decodes raw TOML configuration.
func Parse(raw []byte) (*Config, error) {
	c := &Config{}
	if err := toml.Unmarshal(raw, c); err != nil {
		return nil, errors.Wrap(err, "unable to parse configuration")
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.QueueDir, defaultQueueDir)
	setDefault(&c.TaskSocket, defaultTaskSocket)
	setDefault(&c.ControlSocket, defaultControlSocket)
	setDefault(&c.SocketTimeout, defaultSocketTimeout)
	setDefault(&c.LockFile, defaultLockFile)
	setDefault(&c.LogLevel, defaultLogLevel)
	setDefault(&c.Cluster.Relay, RelaySocket)
	setDefault(&c.Cluster.Socket, defaultClusterSocket)
	setDefault(&c.Cluster.Subject, defaultSubject)
	setDefault(&c.Cluster.Timeout, defaultRelayTimeout)
	setDefault(&c.Sweep.Interval, defaultSweepInterval)
	setDefault(&c.Sweep.TaskTimeout, defaultTaskTimeout)
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.MaxMessageSize < 0 {
		return errors.Errorf("max_message_size must be positive, got %d", c.MaxMessageSize)
	}
	for name, value := range map[string]string{
		"socket_timeout":     c.SocketTimeout,
		"cluster.timeout":    c.Cluster.Timeout,
		"sweep.interval":     c.Sweep.Interval,
		"sweep.task_timeout": c.Sweep.TaskTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return errors.Wrapf(err, "invalid duration for %s", name)
		}
	}
	switch c.Cluster.Relay {
	case RelaySocket:
	case RelayNATS:
		if c.Cluster.NATSURL == "" {
			return errors.New("cluster.nats_url is required for the nats relay")
		}
	default:
		return errors.Errorf("unknown cluster relay %q", c.Cluster.Relay)
	}
	return nil
}

// TaskSocketPath is the task manager's local endpoint.
func (c *Config) TaskSocketPath() string {
	return c.queuePath(c.TaskSocket)
}

// ControlSocketPath is where the daemon accepts upgrade requests.
func (c *Config) ControlSocketPath() string {
	return c.queuePath(c.ControlSocket)
}

// ClusterSocketPath is the local cluster daemon's endpoint.
func (c *Config) ClusterSocketPath() string {
	return c.queuePath(c.Cluster.Socket)
}

func (c *Config) queuePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.QueueDir, p)
}

// SocketTimeoutDuration bounds each local socket operation.
func (c *Config) SocketTimeoutDuration() time.Duration {
	return mustDuration(c.SocketTimeout)
}

// RelayTimeout bounds a relayed request.
func (c *Config) RelayTimeout() time.Duration {
	return mustDuration(c.Cluster.Timeout)
}

// SweepInterval is the period between timeout sweeps.
func (c *Config) SweepInterval() time.Duration {
	return mustDuration(c.Sweep.Interval)
}

// TaskTimeout is how long a task may be tracked before the sweep drops it.
func (c *Config) TaskTimeout() time.Duration {
	return mustDuration(c.Sweep.TaskTimeout)
}

// mustDuration parses a duration already checked by Validate.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
