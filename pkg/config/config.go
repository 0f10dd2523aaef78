package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
)

// Registry drivers
const (
	DriverMemory = "memory"
	DriverMongo  = "mongo"
)

// Configuration holds the static settings of the system server
type Configuration struct {
	Address         string        `env:"ADDRESS" envDefault:":8000"`          // Listen address
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`         // debug, info, warn, error
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"`        // text or json
	UIDHeader       string        `env:"UID_HEADER" envDefault:"X-Laf-Uid"`   // Header set by the gateway
	RegistryDriver  string        `env:"REGISTRY_DRIVER" envDefault:"memory"` // memory or mongo
	AppsFile        string        `env:"APPS_FILE"`                           // YAML seed for the memory registry
	DataDir         string        `env:"DATA_DIR"`                            // Persistence directory of the memory store
	SaveInterval    time.Duration `env:"SAVE_INTERVAL" envDefault:"0s"`       // Background save period, 0 disables
	SysDBURI        string        `env:"SYS_DB_URI"`                          // System database connection URI
	SysDBName       string        `env:"SYS_DB_NAME" envDefault:"sys_db"`     // System database name
	AppDBURI        string        `env:"APP_DB_URI"`                          // Application cluster URI, defaults to SYS_DB_URI
	ClientCacheSize int           `env:"CLIENT_CACHE_SIZE" envDefault:"32"`   // Per-app client cache size
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`   // Graceful shutdown deadline
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"` // Request body limit
}

// Load reads the optional env files, then parses the process environment
func Load(files ...string) (*Configuration, error) {
	for _, file := range files {
		if file == "" {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, goerr.Wrap(err, "failed to load env file", goerr.V("file", file))
		}
	}

	cfg, err := env.ParseAs[Configuration]()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse config")
	}
	return finish(&cfg)
}

// FromEnvironment parses cfg from vars instead of the process environment
func FromEnvironment(vars map[string]string) (*Configuration, error) {
	var cfg Configuration
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config")
	}
	return finish(&cfg)
}

func finish(cfg *Configuration) (*Configuration, error) {
	if cfg.AppDBURI == "" {
		cfg.AppDBURI = cfg.SysDBURI
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combination of settings
func (c *Configuration) Validate() error {
	switch c.RegistryDriver {
	case DriverMemory:
	case DriverMongo:
		if c.SysDBURI == "" {
			return goerr.New("SYS_DB_URI is required for the mongo driver")
		}
	default:
		return goerr.New("unknown registry driver", goerr.V("driver", c.RegistryDriver))
	}
	if c.ClientCacheSize <= 0 {
		return goerr.New("CLIENT_CACHE_SIZE must be positive", goerr.V("size", c.ClientCacheSize))
	}
	if c.SaveInterval < 0 {
		return goerr.New("SAVE_INTERVAL must not be negative", goerr.V("interval", c.SaveInterval))
	}
	return nil
}
