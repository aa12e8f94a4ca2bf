// Package config parses the declarative configuration file consumed by
// the external hollywood CLI (spec section 6). The core runtime never
// parses this file; only cmd/hollywood does.
//
// The schema mirrors original_source/hollywood/src/config.rs's
// System/Actor/ActorDev/ActorTest structures, but the file format is
// YAML rather than TOML: the teacher's own declarative-config
// convention (internal/config/config.go) uses gopkg.in/yaml.v3, and
// ambient-stack choices follow the teacher's codec over the original's
// (SPEC_FULL.md section 6).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// System is one named bus namespace (spec section 3's System entity).
type System struct {
	Name    string `yaml:"name"`
	NATSURI string `yaml:"nats_uri"`
}

// ActorDev describes how the CLI's dev command runs one actor: it runs
// Bin with Env appended to the process environment. Path and Watch are
// parsed but not used: the dev command does not build from Path and
// does not restart the actor when files under Watch change.
type ActorDev struct {
	Path  string   `yaml:"path,omitempty"`
	Bin   string   `yaml:"bin"`
	Env   []string `yaml:"env,omitempty"`
	Watch []string `yaml:"watch,omitempty"`
}

// ActorTest describes how the CLI's test command runs one actor.
type ActorTest struct {
	Bin string   `yaml:"bin"`
	Env []string `yaml:"env,omitempty"`
}

// Actor is one actor's process descriptors. Dev and Test are both
// optional; the dev and test commands skip actors that lack the
// matching section.
type Actor struct {
	Name string     `yaml:"name"`
	Dev  *ActorDev  `yaml:"dev,omitempty"`
	Test *ActorTest `yaml:"test,omitempty"`
}

// Config is the top-level declarative configuration file.
type Config struct {
	System []System `yaml:"system"`
	Actor  []Actor  `yaml:"actor"`
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &c, nil
}

// FindSystem returns the named system, or an error if no system section
// declares that name.
func (c *Config) FindSystem(name string) (*System, error) {
	for i := range c.System {
		if c.System[i].Name == name {
			return &c.System[i], nil
		}
	}
	return nil, fmt.Errorf("config: no system named %q", name)
}

// Actors returns every declared actor; the CLI exits non-zero if this is
// empty (spec section 6, "exit non-zero on invalid arguments or missing
// sections").
func (c *Config) Actors() []Actor {
	return c.Actor
}
