// Package config loads the server configuration from built-in defaults, an
// optional rjson file, an optional .env file and the environment, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rogpeppe/rjson"
)

const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

const (
	DefaultAddr    = ":5000"
	DefaultTimeout = time.Minute
	MinTimeout     = time.Second
)

type Config struct {
	Addr    string
	Backend string
	Debug   bool

	// Properties for the "sqlite" and "mongo" backends.
	DatabaseURL  string
	DatabaseName string

	// Properties for the "bolt" backend.
	BoltPath string

	Timeout time.Duration
}

// file is the configuration file layout. Unset properties keep their
// defaults.
type file struct {
	Addr         string `json:"addr"`
	Backend      string `json:"backend"`
	Debug        bool   `json:"debug"`
	DatabaseURL  string `json:"database_url"`
	DatabaseName string `json:"database_name"`
	BoltPath     string `json:"bolt_path"`
	Timeout      string `json:"timeout"`
}

func Default() *Config {
	return &Config{
		Addr:         DefaultAddr,
		Backend:      BackendMemory,
		DatabaseName: "blog",
		Timeout:      DefaultTimeout,
	}
}

// Load builds the configuration. Empty pathnames are skipped; a named file
// that does not exist is an error.
func Load(configFile, envFile string) (*Config, error) {
	c := Default()

	if configFile != "" {
		if err := c.readFile(configFile); err != nil {
			return nil, fmt.Errorf("loading %q: %w", configFile, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %q: %w", envFile, err)
		}
	}

	if err := c.applyEnvironment(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) readFile(pathname string) error {
	f, err := os.Open(pathname)
	if err != nil {
		return err
	}
	defer f.Close()

	var v file
	if err := rjson.NewDecoder(f).Decode(&v); err != nil {
		return err
	}
	if v.Addr != "" {
		c.Addr = v.Addr
	}
	if v.Backend != "" {
		c.Backend = v.Backend
	}
	if v.Debug {
		c.Debug = true
	}
	if v.DatabaseURL != "" {
		c.DatabaseURL = v.DatabaseURL
	}
	if v.DatabaseName != "" {
		c.DatabaseName = v.DatabaseName
	}
	if v.BoltPath != "" {
		c.BoltPath = v.BoltPath
	}
	if v.Timeout != "" {
		d, err := time.ParseDuration(v.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = d
	}
	return nil
}

func (c *Config) applyEnvironment() error {
	if v, ok := os.LookupEnv("BLOG_ADDR"); ok {
		c.Addr = v
	}
	if v, ok := os.LookupEnv("BLOG_BACKEND"); ok {
		c.Backend = v
	}
	if v, ok := os.LookupEnv("BLOG_DATABASE_URL"); ok {
		c.DatabaseURL = v
	}
	if v, ok := os.LookupEnv("BLOG_DATABASE_NAME"); ok {
		c.DatabaseName = v
	}
	if v, ok := os.LookupEnv("BLOG_BOLT_PATH"); ok {
		c.BoltPath = v
	}
	if v, ok := os.LookupEnv("BLOG_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BLOG_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v, ok := os.LookupEnv("BLOG_DEBUG"); ok {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BLOG_DEBUG: %w", err)
		}
		c.Debug = debug
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr is required")
	}
	switch c.Backend {
	case BackendMemory:
	case BackendBolt:
		if c.BoltPath == "" {
			return errors.New("config: bolt backend requires bolt_path")
		}
	case BackendSQLite, BackendMongo:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: %s backend requires database_url", c.Backend)
		}
		if c.Backend == BackendMongo && c.DatabaseName == "" {
			return errors.New("config: mongo backend requires database_name")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.Timeout < MinTimeout {
		return fmt.Errorf("config: timeout %v is below %v", c.Timeout, MinTimeout)
	}
	return nil
}
