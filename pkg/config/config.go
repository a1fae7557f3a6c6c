// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads server settings from defaults, a config.yaml file,
// FILEANALYSE_* environment variables and command-line flags, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fawa-io/fileanalyse/pkg/fwlog"
	"github.com/fawa-io/fileanalyse/pkg/sniff"
	"github.com/fawa-io/fileanalyse/pkg/storage"
)

const envPrefix = "FILEANALYSE"

// DefaultSearchPaths are the directories searched for config.yaml.
var DefaultSearchPaths = []string{".", "/etc/fileanalyse/"}

type Config struct {
	Addr      string `mapstructure:"addr"`
	Port      int    `mapstructure:"port"`
	CertFile  string `mapstructure:"certFile"`
	KeyFile   string `mapstructure:"keyFile"`
	LogLevel  string `mapstructure:"logLevel"`
	PublicDir string `mapstructure:"publicDir"`

	CORS    CORSConfig     `mapstructure:"cors"`
	Upload  UploadConfig   `mapstructure:"upload"`
	Storage storage.Config `mapstructure:"storage"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type UploadConfig struct {
	MaxSize int64  `mapstructure:"maxSize"`
	Field   string `mapstructure:"field"`
	// AllowedTypes replaces the built-in allow-list when non-empty.
	AllowedTypes []string `mapstructure:"allowedTypes"`
	SniffWindow  int      `mapstructure:"sniffWindow"`
}

// ListenAddr returns Addr, or ":<port>" when Addr is empty.
func (c Config) ListenAddr() string {
	if c.Addr != "" {
		return c.Addr
	}
	return ":" + strconv.Itoa(c.Port)
}

var (
	once sync.Once

	mu sync.RWMutex

	config Config
)

// InitConfig loads the configuration once and starts watching the config
// file for log level changes.
func InitConfig() error {
	var initErr error
	once.Do(func() {
		initErr = LoadAndWatch()
	})
	return initErr
}

// Get returns a snapshot of the current configuration.
func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	return config
}

func set(c Config) {
	mu.Lock()
	defer mu.Unlock()
	config = c
}

// RegisterFlags adds the command-line flags understood by the server to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("addr", "", "HTTP listen address (e.g., '127.0.0.1:3000'); overrides port")
	fs.Int("port", 3000, "HTTP listen port")
	fs.String("certFile", "", "Path to the TLS certificate file.")
	fs.String("keyFile", "", "Path to the TLS private key file.")
	fs.String("logLevel", "info", "Log level: debug, info, warn, error or fatal")
	fs.String("publicDir", "./public", "Directory holding the landing page and static assets")
	fs.Int64("upload.maxSize", 1<<20, "Maximum accepted file size in bytes")
	fs.String("storage.driver", storage.DriverNone, "Storage driver: none, memory, disk, mongo or minio")
	fs.String("storage.dir", "./upload", "Upload directory for the disk driver")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "")
	v.SetDefault("port", 3000)
	v.SetDefault("certFile", "")
	v.SetDefault("keyFile", "")
	v.SetDefault("logLevel", "info")
	v.SetDefault("publicDir", "./public")

	v.SetDefault("cors.allowedOrigins", []string{"*"})

	v.SetDefault("upload.maxSize", 1<<20)
	v.SetDefault("upload.field", "upfile")
	v.SetDefault("upload.allowedTypes", []string{})
	v.SetDefault("upload.sniffWindow", sniff.DefaultWindow)

	v.SetDefault("storage.driver", storage.DriverNone)
	v.SetDefault("storage.bucket", "uploads")
	v.SetDefault("storage.dir", "./upload")
	v.SetDefault("storage.mongoURI", "")
	v.SetDefault("storage.mongoDatabase", "fileanalyse")
	v.SetDefault("storage.minioEndpoint", "")
	v.SetDefault("storage.minioAccessKey", "")
	v.SetDefault("storage.minioSecretKey", "")
	v.SetDefault("storage.minioUseSSL", false)
	v.SetDefault("storage.minioRegion", "")
	v.SetDefault("storage.redisAddr", "localhost:6379")
	v.SetDefault("storage.redisPassword", "")
	v.SetDefault("storage.metaTTL", time.Duration(0))
}

// New returns a viper instance wired to defaults, environment and fs, and
// searching paths for config.yaml. The file is not read yet.
func New(fs *pflag.FlagSet, paths ...string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("port", envPrefix+"_PORT", "PORT"); err != nil {
		return nil, err
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind pflags: %w", err)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	return v, nil
}

// Load reads the config file, if any, and decodes v into a validated Config.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fwlog.Infof("Config file not found, using defaults and environment.")
		} else {
			return Config{}, fmt.Errorf("fatal error config file: %w", err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("the configuration cannot be decoded into the struct: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if _, err := fwlog.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Addr == "" && (c.Port <= 0 || c.Port > 65535) {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("invalid upload.maxSize: %d", c.Upload.MaxSize)
	}
	if strings.TrimSpace(c.Upload.Field) == "" {
		return errors.New("upload.field cannot be empty")
	}
	if c.Upload.SniffWindow <= 0 {
		return fmt.Errorf("invalid upload.sniffWindow: %d", c.Upload.SniffWindow)
	}
	if !storage.ValidBucket(c.Storage.Bucket) {
		return fmt.Errorf("%w: %q", storage.ErrInvalidBucket, c.Storage.Bucket)
	}
	return nil
}

// Level returns the parsed log level. A Config that passed Validate always
// yields a known level.
func (c Config) Level() fwlog.Level {
	lv, err := fwlog.ParseLevel(c.LogLevel)
	if err != nil {
		return fwlog.LevelInfo
	}
	return lv
}

// LoadAndWatch parses the command line, loads the configuration and, when a
// config file was found, reloads the log level whenever it changes.
func LoadAndWatch() error {
	RegisterFlags(pflag.CommandLine)
	pflag.Parse()

	v, err := New(pflag.CommandLine, DefaultSearchPaths...)
	if err != nil {
		return err
	}
	c, err := Load(v)
	if err != nil {
		return err
	}
	set(c)

	if v.ConfigFileUsed() == "" {
		return nil
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		fwlog.Infof("config file changed: %s, reloading...", e.Name)
		reload(v)
	})
	v.WatchConfig()
	return nil
}

// reload applies the log level from v. Every other setting is fixed at
// startup.
func reload(v *viper.Viper) {
	next, err := decode(v)
	if err != nil {
		fwlog.Errorf("error reloading the configuration: %v", err)
		return
	}
	lv := next.Level()

	mu.Lock()
	changed := config.LogLevel != next.LogLevel
	config.LogLevel = next.LogLevel
	mu.Unlock()

	if changed {
		fwlog.SetLevel(lv)
		fwlog.Infof("log level set to %s", lv)
	}
}
