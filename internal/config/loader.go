package config

import (
	"fmt"
	"time"

	"github.com/chlear/crm/internal/db"
	"github.com/spf13/viper"
)

// Config is the full application configuration: database connection plus the
// tunable import/export limits. None of the limits are contract constants;
// they exist so operators can bound uploads without a rebuild.
type Config struct {
	Server   ServerConfig
	Database db.Config
	Import   ImportConfig
	Export   ExportConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// ImportConfig bounds a single import run.
type ImportConfig struct {
	MaxFileBytes int64
	MaxRows      int
	BatchSize    int
	BatchTimeout time.Duration
}

// ExportConfig bounds a single export run.
type ExportConfig struct {
	PageSize int
	MaxRows  int
}

// DefaultConfig returns the defaults applied before any file or env override.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: db.DefaultConfig(),
		Import: ImportConfig{
			MaxFileBytes: 10 << 20,
			MaxRows:      10000,
			BatchSize:    100,
			BatchTimeout: 30 * time.Second,
		},
		Export: ExportConfig{
			PageSize: 1000,
			MaxRows:  50000,
		},
	}
}

// Load reads config.yaml from configPath and applies environment overrides
// (CRM_DATABASE_HOST, CRM_IMPORT_BATCH_SIZE, ...), falling back to defaults.
func Load(configPath string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("CRM")

	v.BindEnv("server.addr")
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("import.max_file_bytes")
	v.BindEnv("import.max_rows")
	v.BindEnv("import.batch_size")
	v.BindEnv("import.batch_timeout")
	v.BindEnv("export.page_size")
	v.BindEnv("export.max_rows")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Use defaults + env.
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.read_timeout") {
		cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	}
	if v.IsSet("server.write_timeout") {
		cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	}
	if v.IsSet("server.idle_timeout") {
		cfg.Server.IdleTimeout = v.GetDuration("server.idle_timeout")
	}
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("import.max_file_bytes") {
		cfg.Import.MaxFileBytes = v.GetInt64("import.max_file_bytes")
	}
	if v.IsSet("import.max_rows") {
		cfg.Import.MaxRows = v.GetInt("import.max_rows")
	}
	if v.IsSet("import.batch_size") {
		cfg.Import.BatchSize = v.GetInt("import.batch_size")
	}
	if v.IsSet("import.batch_timeout") {
		cfg.Import.BatchTimeout = v.GetDuration("import.batch_timeout")
	}
	if v.IsSet("export.page_size") {
		cfg.Export.PageSize = v.GetInt("export.page_size")
	}
	if v.IsSet("export.max_rows") {
		cfg.Export.MaxRows = v.GetInt("export.max_rows")
	}

	return cfg, nil
}
