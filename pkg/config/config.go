/*
Copyright 2023 The GoStor Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/spf13/viper"
)

const (
	// ConfigName is the name of config file without its extension
	ConfigName = "config"
	// ConfigFileName is the name Save writes by default
	ConfigFileName = ConfigName + ".json"

	DefaultHost = "tcp://127.0.0.1:23458"
)

var (
	configDir = os.Getenv("VSCSI_CONFIG")
)

type Config struct {
	// Storage is the backing store plugin name
	Storage string `json:"storage" mapstructure:"storage"`
	Path    string `json:"path" mapstructure:"path"`
	// BSOpts is passed to the backing store Init
	BSOpts    string   `json:"bsopts,omitempty" mapstructure:"bsopts"`
	BlockSize uint32   `json:"blockSize" mapstructure:"blockSize"`
	ReadOnly  bool     `json:"readOnly" mapstructure:"readOnly"`
	Serial    string   `json:"serial,omitempty" mapstructure:"serial"`
	QueueSize uint16   `json:"queueSize" mapstructure:"queueSize"`
	Features  uint64   `json:"features" mapstructure:"features"`
	Hosts     []string `json:"hosts" mapstructure:"hosts"`
}

func init() {
	if configDir == "" {
		home, err := homedir.Dir()
		if err != nil {
			home = os.TempDir()
		}
		configDir = filepath.Join(home, ".vscsi")
	}
}

// ConfigDir returns the directory the configuration file is stored in
func ConfigDir() string {
	return configDir
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage", "file")
	v.SetDefault("path", "")
	v.SetDefault("bsopts", "")
	v.SetDefault("blockSize", 512)
	v.SetDefault("readOnly", false)
	v.SetDefault("serial", "")
	v.SetDefault("queueSize", 256)
	// VIRTIO_F_VERSION_1
	v.SetDefault("features", uint64(1)<<32)
	v.SetDefault("hosts", []string{DefaultHost})
}

// Load reads config.{json,yaml,toml} in the given directory. A missing file
// yields the defaults. Every key can be overridden from the environment
// with a VSCSI_ prefix, e.g. VSCSI_READONLY=true.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = ConfigDir()
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigName(ConfigName)
	v.AddConfigPath(dir)
	v.SetEnvPrefix("vscsi")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrapf(err, "failed to read config in %s", dir)
		}
	}
	return decode(v)
}

// LoadFile reads the configuration from an explicit file path.
func LoadFile(filename string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filename)
	v.SetEnvPrefix("vscsi")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", filename)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the values a device can not be created with.
func (config *Config) Validate() error {
	if config.Storage == "" {
		return fmt.Errorf("bad parameter: storage cannot be empty")
	}
	if config.BlockSize == 0 || config.BlockSize&(config.BlockSize-1) != 0 {
		return fmt.Errorf("bad parameter: block size %d is not a power of two", config.BlockSize)
	}
	if config.QueueSize < 3 {
		return fmt.Errorf("bad parameter: queue size %d is too small", config.QueueSize)
	}
	if config.Serial != "" {
		if _, err := uuid.FromString(config.Serial); err != nil {
			return errors.Wrapf(err, "bad parameter: serial %q", config.Serial)
		}
	}
	return nil
}

// SerialUUID returns the configured serial, uuid.Nil when unset.
func (config *Config) SerialUUID() uuid.UUID {
	if config.Serial == "" {
		return uuid.Nil
	}
	return uuid.FromStringOrNil(config.Serial)
}

// Save encodes and writes out the configuration
func (config *Config) Save(filename string) error {
	if filename == "" {
		return fmt.Errorf("Can't save config with empty filename")
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := json.MarshalIndent(config, "", "\t")
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}
