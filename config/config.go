// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package config loads per-environment settings for the lakehouse ETL.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates configuration for one environment. It is immutable
// after Load and passed explicitly into each processor.
type Config struct {
	Environment string        `mapstructure:"environment"`
	Landing     LandingConfig `mapstructure:"landing"`
	Storage     StorageConfig `mapstructure:"storage"`
	Query       QueryConfig   `mapstructure:"query"`
	Catalog     CatalogConfig `mapstructure:"catalog"`
	ETL         ETLConfig     `mapstructure:"etl"`
}

// LandingConfig locates the landing zone of dated flat files.
type LandingConfig struct {
	Dir string `mapstructure:"dir"`
}

// StorageConfig carries object-store endpoint, credentials, and layer
// prefixes.
type StorageConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	Region        string `mapstructure:"region"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	Bucket        string `mapstructure:"bucket"`
	RawPrefix     string `mapstructure:"raw_prefix"`
	TrustedPrefix string `mapstructure:"trusted_prefix"`
	RejectsPrefix string `mapstructure:"rejects_prefix"`
}

// QueryConfig configures the embedded query engine.
type QueryConfig struct {
	Database string `mapstructure:"database"`
}

// CatalogConfig names the schema catalog objects are registered into.
type CatalogConfig struct {
	Schema string `mapstructure:"schema"`
}

// ETLConfig tunes the processors.
type ETLConfig struct {
	TableSchemas  string        `mapstructure:"table_schemas"`
	WorkerLimit   int           `mapstructure:"worker_limit"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

func defaultConfig(env string) *Config {
	return &Config{
		Environment: env,
		Landing:     LandingConfig{Dir: "./landing"},
		Storage: StorageConfig{
			Region:        "us-east-1",
			Bucket:        "streamlake",
			RawPrefix:     "raw",
			TrustedPrefix: "trusted",
			RejectsPrefix: "rejects",
		},
		Query:   QueryConfig{Database: ":memory:"},
		Catalog: CatalogConfig{Schema: "streampro"},
		ETL: ETLConfig{
			TableSchemas:  "./tables.yaml",
			WorkerLimit:   4,
			RetryAttempts: 3,
			RetryBackoff:  2 * time.Second,
		},
	}
}

// Load reads configuration for the named environment from
// config.{env}.yaml in the working directory or ./config, plus environment
// variables with the prefix "STREAMLAKE" where the dot in a key becomes an
// underscore ("storage.endpoint" -> "STREAMLAKE_STORAGE_ENDPOINT").
func Load(env string) (*Config, error) {
	cfg := defaultConfig(env)

	v := viper.New()
	v.SetConfigName("config." + env)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("STREAMLAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config for env %s: %w", env, err)
		}
		// Defaults plus environment variables are a valid configuration.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config for env %s: %w", env, err)
	}
	cfg.Environment = env
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
