package config

import (
	"strings"
	"time"

	"github.com/agubarev/orgkeeper/pkg/util"
	"github.com/asaskevich/govalidator"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// errors
var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// storage and lock drivers
const (
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
	DriverLocal    = "local"
	DriverRedis    = "redis"
)

// EnvPrefix prefixes every environment variable read into the config
const EnvPrefix = "ORGKEEPER"

// Config is the complete runtime configuration
type Config struct {
	Storage struct {
		Driver  string `mapstructure:"driver" valid:"in(badger|postgres)"`
		Retries uint   `mapstructure:"retries"`
		Badger  struct {
			Dir string `mapstructure:"dir"`
		} `mapstructure:"badger"`
		Postgres struct {
			DSN string `mapstructure:"dsn"`
		} `mapstructure:"postgres"`
	} `mapstructure:"storage"`

	Lock struct {
		Driver string        `mapstructure:"driver" valid:"in(local|redis)"`
		TTL    time.Duration `mapstructure:"ttl"`
		Wait   time.Duration `mapstructure:"wait"`
		Redis  struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
		} `mapstructure:"redis"`
	} `mapstructure:"lock"`

	Cache struct {
		Organization struct {
			TTL time.Duration `mapstructure:"ttl"`
		} `mapstructure:"organization"`
	} `mapstructure:"cache"`

	User struct {
		UnmanagedAttributePolicy string `mapstructure:"unmanaged_attribute_policy" valid:"in(enabled|disabled)"`
		EditUsernameAllowed      bool   `mapstructure:"edit_username_allowed"`
	} `mapstructure:"user"`

	Server struct {
		Addr string `mapstructure:"addr" valid:"required"`
	} `mapstructure:"server"`

	Log struct {
		Level  string `mapstructure:"level" valid:"in(debug|info|warn|error)"`
		Format string `mapstructure:"format" valid:"in(console|json)"`
		Debug  bool   `mapstructure:"debug"`
		Dir    string `mapstructure:"dir"`
	} `mapstructure:"log"`
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", DriverBadger)
	v.SetDefault("storage.retries", 10)
	v.SetDefault("storage.badger.dir", "~/.orgkeeper/data")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("lock.driver", DriverLocal)
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("lock.wait", 10*time.Second)
	v.SetDefault("lock.redis.addr", "localhost:6379")
	v.SetDefault("lock.redis.password", "")
	v.SetDefault("lock.redis.db", 0)
	v.SetDefault("cache.organization.ttl", 5*time.Minute)
	v.SetDefault("user.unmanaged_attribute_policy", "enabled")
	v.SetDefault("user.edit_username_allowed", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.debug", false)
	v.SetDefault("log.dir", "")
}

// New returns a viper instance reading ORGKEEPER_ environment
// variables, with every default registered
func New() *viper.Viper {
	v := viper.New()

	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// LoadDotEnv preloads environment variables from the given files,
// or from ./.env if none given; missing files are ignored
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if !util.Exists(f) {
			continue
		}

		if err := godotenv.Load(f); err != nil {
			return errors.Wrapf(err, "failed to load %s", f)
		}
	}

	return nil
}

// Load reads the configuration from the environment and, if given,
// a config file; the result is validated
func Load(v *viper.Viper, configFile string) (c Config, err error) {
	if v == nil {
		v = New()
	}

	if configFile = strings.TrimSpace(configFile); configFile != "" {
		if configFile, err = util.ExpandPath(configFile); err != nil {
			return c, err
		}

		v.SetConfigFile(configFile)

		if err = v.ReadInConfig(); err != nil {
			return c, errors.Wrapf(err, "failed to read config file %s", configFile)
		}
	}

	if err = v.Unmarshal(&c); err != nil {
		return c, errors.Wrap(err, "failed to unmarshal configuration")
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Lock.Driver = strings.ToLower(strings.TrimSpace(c.Lock.Driver))
	c.User.UnmanagedAttributePolicy = strings.ToLower(strings.TrimSpace(c.User.UnmanagedAttributePolicy))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))

	if c.Storage.Badger.Dir, err = util.ExpandPath(c.Storage.Badger.Dir); err != nil {
		return c, err
	}

	if err = c.Validate(); err != nil {
		return c, err
	}

	return c, nil
}

// Validate checks the configuration for consistency
func (c Config) Validate() error {
	if _, err := govalidator.ValidateStruct(c); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}

	switch {
	case c.Storage.Driver == DriverBadger && c.Storage.Badger.Dir == "":
		return errors.Wrap(ErrInvalidConfig, "storage.badger.dir is required")
	case c.Storage.Driver == DriverPostgres && c.Storage.Postgres.DSN == "":
		return errors.Wrap(ErrInvalidConfig, "storage.postgres.dsn is required")
	case c.Lock.Driver == DriverRedis && !govalidator.IsDialString(c.Lock.Redis.Addr):
		return errors.Wrapf(ErrInvalidConfig, "lock.redis.addr %q is not host:port", c.Lock.Redis.Addr)
	case c.Lock.Driver == DriverRedis && c.Lock.TTL <= 0:
		return errors.Wrap(ErrInvalidConfig, "lock.ttl must be positive")
	case c.Cache.Organization.TTL < 0:
		return errors.Wrap(ErrInvalidConfig, "cache.organization.ttl must not be negative")
	}

	return nil
}

// UnmanagedAttributesEnabled tells whether unmanaged user attributes are allowed
func (c Config) UnmanagedAttributesEnabled() bool {
	return c.User.UnmanagedAttributePolicy == "enabled"
}

