// Package config loads and merges the structured settings that
// drive a daemon instance: server-level options, engine defaults,
// and per-collection overrides.
package config

import (
	"os"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/exardb/exar/elog"
	"github.com/exardb/exar/exarerr"
	"github.com/exardb/exar/scanner"
)

// Defaults applied when a configuration document omits a field.
const (
	DefaultIndexGranularity  = elog.DefaultGranularity
	DefaultScannersCount     = 2
	DefaultScannersSleepMs   = 10
	DefaultPublisherBuffer   = 10000
	DefaultRoutingStrategy   = "Random"
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 7790
)

// ScannersConfig is the `scanners` block.
type ScannersConfig struct {
	Count    int `json:"count,omitempty"`
	SleepMs  int `json:"sleep_ms,omitempty"`
}

// PublisherConfig is the `publisher` block.
type PublisherConfig struct {
	BufferSize int `json:"buffer_size,omitempty"`
}

// CollectionOverride holds the subset of engine settings a single
// collection may override. A nil field means "use the top-level
// default".
type CollectionOverride struct {
	IndexGranularity *uint64          `json:"index_granularity,omitempty"`
	Scanners         *ScannersConfig  `json:"scanners,omitempty"`
	Publisher        *PublisherConfig `json:"publisher,omitempty"`
	RoutingStrategy  *string          `json:"routing_strategy,omitempty"`
}

// Config is the top-level structured configuration document.
type Config struct {
	DataPath        string                         `json:"data_path"`
	IndexGranularity uint64                        `json:"index_granularity,omitempty"`
	Scanners        ScannersConfig                 `json:"scanners,omitempty"`
	Publisher       PublisherConfig                `json:"publisher,omitempty"`
	RoutingStrategy string                         `json:"routing_strategy,omitempty"`
	Collections     map[string]CollectionOverride  `json:"collections,omitempty"`

	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Load reads and parses a YAML configuration file at path, then
// applies defaults to unset fields.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, exarerr.Wrap(exarerr.IoError, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, exarerr.Wrap(exarerr.ParseError, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.IndexGranularity == 0 {
		c.IndexGranularity = DefaultIndexGranularity
	}
	if c.Scanners.Count == 0 {
		c.Scanners.Count = DefaultScannersCount
	}
	if c.Scanners.SleepMs == 0 {
		c.Scanners.SleepMs = DefaultScannersSleepMs
	}
	if c.Publisher.BufferSize == 0 {
		c.Publisher.BufferSize = DefaultPublisherBuffer
	}
	if c.RoutingStrategy == "" {
		c.RoutingStrategy = DefaultRoutingStrategy
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
}

// Validate rejects a configuration document that could not possibly
// serve requests correctly, used both by Load and by the
// `check-config` sub-command.
func (c *Config) Validate() error {
	if c.DataPath == "" {
		return exarerr.New(exarerr.ValidationError, "data_path is required")
	}
	for name, ov := range c.Collections {
		if ov.RoutingStrategy != nil {
			if _, err := strategyFor(*ov.RoutingStrategy); err != nil {
				return exarerr.Newf(exarerr.ValidationError, "collection %q: %s", name, err)
			}
		}
	}
	if _, err := strategyFor(c.RoutingStrategy); err != nil {
		return err
	}
	return nil
}

// CollectionConfig is a fully resolved set of engine settings for one
// collection: top-level defaults merged with its override block, if
// any.
type CollectionConfig struct {
	IndexGranularity    uint64
	ScannersCount       int
	ScannersSleep       time.Duration
	PublisherBufferSize int
	routingStrategyName string
}

// RoutingStrategy builds the scanner.Strategy named by this
// collection's resolved configuration.
func (cc CollectionConfig) RoutingStrategy() scanner.Strategy {
	s, _ := strategyFor(cc.routingStrategyName)
	return s
}

// ForCollection resolves name's effective settings: the top-level
// defaults, with any per-collection override block applied on top.
func (c *Config) ForCollection(name string) CollectionConfig {
	cc := CollectionConfig{
		IndexGranularity:    c.IndexGranularity,
		ScannersCount:       c.Scanners.Count,
		ScannersSleep:       time.Duration(c.Scanners.SleepMs) * time.Millisecond,
		PublisherBufferSize: c.Publisher.BufferSize,
		routingStrategyName: c.RoutingStrategy,
	}
	ov, ok := c.Collections[name]
	if !ok {
		return cc
	}
	if ov.IndexGranularity != nil {
		cc.IndexGranularity = *ov.IndexGranularity
	}
	if ov.Scanners != nil {
		if ov.Scanners.Count != 0 {
			cc.ScannersCount = ov.Scanners.Count
		}
		if ov.Scanners.SleepMs != 0 {
			cc.ScannersSleep = time.Duration(ov.Scanners.SleepMs) * time.Millisecond
		}
	}
	if ov.Publisher != nil && ov.Publisher.BufferSize != 0 {
		cc.PublisherBufferSize = ov.Publisher.BufferSize
	}
	if ov.RoutingStrategy != nil {
		cc.routingStrategyName = *ov.RoutingStrategy
	}
	return cc
}

func strategyFor(name string) (scanner.Strategy, error) {
	switch name {
	case "Random", "":
		return scanner.RandomStrategy{}, nil
	case "RoundRobin":
		return &scanner.RoundRobinStrategy{}, nil
	case "HashTag":
		return scanner.NewHashTagStrategy(0x9ae16a3b2f90404f, 0xc3a5c85c97cb3127), nil
	default:
		return nil, exarerr.Newf(exarerr.ValidationError, "unknown routing_strategy %q", name)
	}
}
