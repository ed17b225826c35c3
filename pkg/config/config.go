// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < .env < environment < flags
package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
)

// EnvPrefix prefixes every environment variable read by the manager.
const EnvPrefix = "TABFLOW_"

// Config holds all tabflow configuration.
type Config struct {
	Version int `yaml:"version"`

	Schema    SchemaConfig    `yaml:"schema"`
	Read      ReadConfig      `yaml:"read"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// SchemaConfig controls schema inference.
type SchemaConfig struct {
	MissingValues []string `yaml:"missing_values"`
	SampleSize    int      `yaml:"sample_size"` // 0 = all rows
	CacheDir      string   `yaml:"cache_dir"`
}

// ReadConfig holds read defaults.
type ReadConfig struct {
	Limit int  `yaml:"limit"`
	Keyed bool `yaml:"keyed"`
}

// StorageConfig selects and configures a storage backend.
type StorageConfig struct {
	Backend string      `yaml:"backend"` // sql | redis | mongo
	Driver  string      `yaml:"driver"`  // sqlite | duckdb | postgres | mysql
	DSN     string      `yaml:"dsn"`
	Redis   RedisConfig `yaml:"redis"`
	Mongo   MongoConfig `yaml:"mongo"`
	S3      S3Config    `yaml:"s3"`
}

// RedisConfig for the redis backend.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// MongoConfig for the mongo backend.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// S3Config for s3:// locations.
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Version: 1,
		Schema: SchemaConfig{
			MissingValues: []string{""},
			SampleSize:    100,
			CacheDir:      filepath.Join(homeDir, ".tabflow", "schemas"),
		},
		Storage: StorageConfig{
			Backend: "sql",
			Driver:  "sqlite",
			Redis: RedisConfig{
				Address: "localhost:6379",
				Prefix:  "tabflow:",
			},
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "tabflow",
			},
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "tabflow",
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu      sync.RWMutex
	config  *Config
	paths   []string // Paths that were loaded
	search  []string
	envFile string
}

// NewManager creates a manager searching the standard locations.
func NewManager() *Manager {
	return &Manager{
		config:  Default(),
		search:  defaultPaths(),
		envFile: ".env",
	}
}

// NewManagerWithPaths creates a manager searching only paths, in priority order, and
// reading envFile (empty to skip).
func NewManagerWithPaths(envFile string, paths ...string) *Manager {
	return &Manager{config: Default(), search: paths, envFile: envFile}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.search {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		m.paths = append(m.paths, path)
	}

	return m.loadEnv()
}

// LoadFile merges one explicit file over the current configuration. Unlike the search
// paths, the file must exist.
func (m *Manager) LoadFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadFile(path); err != nil {
		return err
	}
	m.paths = append(m.paths, path)
	return nil
}

func defaultPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/tabflow/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".tabflow", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".tabflow.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return tferrors.Wrap(err, tferrors.CodeSchemaLoad, "invalid config file").WithContext("path", path)
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	// Schema
	if src.Schema.MissingValues != nil {
		m.config.Schema.MissingValues = src.Schema.MissingValues
	}
	if src.Schema.SampleSize != 0 {
		m.config.Schema.SampleSize = src.Schema.SampleSize
	}
	if src.Schema.CacheDir != "" {
		m.config.Schema.CacheDir = src.Schema.CacheDir
	}

	// Read
	if src.Read.Limit != 0 {
		m.config.Read.Limit = src.Read.Limit
	}
	if src.Read.Keyed {
		m.config.Read.Keyed = true
	}

	// Storage
	s, d := &src.Storage, &m.config.Storage
	setString(&d.Backend, s.Backend)
	setString(&d.Driver, s.Driver)
	setString(&d.DSN, s.DSN)
	setString(&d.Redis.Address, s.Redis.Address)
	setString(&d.Redis.Password, s.Redis.Password)
	setString(&d.Redis.Prefix, s.Redis.Prefix)
	if s.Redis.DB != 0 {
		d.Redis.DB = s.Redis.DB
	}
	setString(&d.Mongo.URI, s.Mongo.URI)
	setString(&d.Mongo.Database, s.Mongo.Database)
	setString(&d.S3.Region, s.S3.Region)
	setString(&d.S3.Endpoint, s.S3.Endpoint)
	if s.S3.UsePathStyle {
		d.S3.UsePathStyle = true
	}

	// Telemetry
	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	setString(&m.config.Telemetry.Endpoint, src.Telemetry.Endpoint)
	setString(&m.config.Telemetry.ServiceName, src.Telemetry.ServiceName)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// loadEnv applies the .env file, then the process environment on top of it.
func (m *Manager) loadEnv() error {
	env := map[string]string{}
	if m.envFile != "" {
		dotenv, err := godotenv.Read(m.envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return tferrors.Wrap(err, tferrors.CodeSchemaLoad, "invalid env file").WithContext("path", m.envFile)
		}
		for k, v := range dotenv {
			env[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}
	m.applyEnv(env)
	return nil
}

func (m *Manager) applyEnv(env map[string]string) {
	get := func(name string) (string, bool) {
		v, ok := env[EnvPrefix+name]
		return v, ok && v != ""
	}
	c := m.config

	if v, ok := get("MISSING_VALUES"); ok {
		c.Schema.MissingValues = strings.Split(v, ",")
	}
	if v, ok := get("SAMPLE_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Schema.SampleSize = n
		}
	}
	if v, ok := get("STORAGE"); ok {
		c.Storage.Backend = v
	}
	if v, ok := get("DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := get("DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := get("REDIS_ADDR"); ok {
		c.Storage.Redis.Address = v
	}
	if v, ok := get("REDIS_PASSWORD"); ok {
		c.Storage.Redis.Password = v
	}
	if v, ok := get("MONGO_URI"); ok {
		c.Storage.Mongo.URI = v
	}
	if v, ok := get("S3_REGION"); ok {
		c.Storage.S3.Region = v
	}
	if v, ok := get("S3_ENDPOINT"); ok {
		c.Storage.S3.Endpoint = v
	}
	if v, ok := get("OTEL_ENDPOINT"); ok {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	return m.SaveTo(filepath.Join(home, ".tabflow", "config.yaml"))
}

// SaveTo writes the current config to path.
func (m *Manager) SaveTo(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
