// Package config loads the index builder's runtime settings from a YAML
// file via viper, the way the rest of the stack configures itself.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds everything needed to build or open a B+ tree index over a
// heap relation: where its files live, which relation/attribute it
// indexes, and how much memory the buffer pool may use.
type Config struct {
	Storage struct {
		DataDir  string `mapstructure:"data_dir"`
		PageSize int    `mapstructure:"page_size"`
	} `mapstructure:"storage"`

	Index struct {
		Relation        string `mapstructure:"relation"`
		AttrByteOffset  int    `mapstructure:"attr_byte_offset"`
		BufferPoolPages int    `mapstructure:"buffer_pool_pages"`
	} `mapstructure:"index"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// LoadConfig reads and unmarshals a YAML config file at path.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("storage.page_size", 8192)
	v.SetDefault("index.buffer_pool_pages", 128)
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
