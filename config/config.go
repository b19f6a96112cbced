package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
)

// TomlAuthor represents one configured contributor. The map key in the
// config file becomes the author id after loading.
type TomlAuthor struct {
	Id      string `toml:"-"`
	Name    string `toml:"name"`
	FeedUrl string `toml:"feed_url"`
}

// TomlServer holds the HTTP server settings
type TomlServer struct {
	Hostname string `toml:"hostname"`
	Port     int    `toml:"port"`
}

// TomlDatabase holds the SQLite settings
type TomlDatabase struct {
	Path string `toml:"path"`
}

// TomlAnnounce holds the credentials for the announce channel. Keep this
// part of the config file secret.
type TomlAnnounce struct {
	Host     string `toml:"host,omitempty"`
	Handle   string `toml:"handle,omitempty"`
	Password string `toml:"password,omitempty"`
}

// Config represents the top-level configuration. It is loaded once at
// process start and treated as read-only afterwards; adding an author
// requires a restart, which is acceptable because additions are rare.
type Config struct {
	Server   TomlServer            `toml:"server"`
	Database TomlDatabase          `toml:"database"`
	Announce TomlAnnounce          `toml:"announce"`
	Authors  map[string]TomlAuthor `toml:"authors"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Copy the map keys into the author records so an author can be
	// passed around without its key.
	for id, author := range config.Authors {
		author.Id = id
		config.Authors[id] = author
	}

	return &config, nil
}

// Author looks up a configured author by id.
func (c *Config) Author(id string) (TomlAuthor, bool) {
	author, ok := c.Authors[id]
	return author, ok
}

// AuthorList returns the roster as a slice in stable id order, so a
// seeded shuffle of it is reproducible.
func (c *Config) AuthorList() []TomlAuthor {
	authors := lo.Values(c.Authors)
	sort.Slice(authors, func(i, j int) bool {
		return authors[i].Id < authors[j].Id
	})
	return authors
}

// CanAnnounce reports whether announce credentials are configured.
func (c *Config) CanAnnounce() bool {
	return c.Announce.Handle != "" && c.Announce.Password != ""
}
