package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ServerConfig is one saved flowwatch server.
type ServerConfig struct {
	URL         string `yaml:"url"`
	Description string `yaml:"description"`
	Email       string `yaml:"email,omitempty"` // operator to sign in as
}

// Config is the CLI profile file, ~/.flowwatch/config.yaml.
type Config struct {
	DefaultServer string                  `yaml:"default_server"`
	Servers       map[string]ServerConfig `yaml:"servers"`
	configPath    string
}

func getConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	configDir := filepath.Join(homeDir, ".flowwatch")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// LoadConfig loads the profile file, creating it with a single "local"
// server pointing at defaultURL when it does not exist.
func LoadConfig(defaultURL string) (*Config, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	config := &Config{
		configPath: configPath,
		Servers:    make(map[string]ServerConfig),
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config.DefaultServer = "local"
		config.Servers["local"] = ServerConfig{
			URL:         defaultURL,
			Description: "Local flowwatch server",
		}
		if err := config.Save(); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}
	if config.Servers == nil {
		config.Servers = make(map[string]ServerConfig)
	}

	config.configPath = configPath
	return config, nil
}

// Save writes the profile file.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.configPath, data, 0600)
}

// AddServer adds or replaces a server. The first server becomes the default.
func (c *Config) AddServer(name, url, description string) error {
	if name == "" {
		return fmt.Errorf("server name cannot be empty")
	}
	if url == "" {
		return fmt.Errorf("server URL cannot be empty")
	}

	c.Servers[name] = ServerConfig{
		URL:         url,
		Description: description,
	}
	if c.DefaultServer == "" {
		c.DefaultServer = name
	}
	return c.Save()
}

// RemoveServer removes a server, picking another default if needed.
func (c *Config) RemoveServer(name string) error {
	if _, exists := c.Servers[name]; !exists {
		return fmt.Errorf("server '%s' not found", name)
	}

	delete(c.Servers, name)

	if c.DefaultServer == name {
		c.DefaultServer = ""
		if names := c.ServerNames(); len(names) > 0 {
			c.DefaultServer = names[0]
		}
	}
	return c.Save()
}

// SetDefault sets the default server
func (c *Config) SetDefault(name string) error {
	if _, exists := c.Servers[name]; !exists {
		return fmt.Errorf("server '%s' not found", name)
	}
	c.DefaultServer = name
	return c.Save()
}

// SetEmail remembers the operator email for a server.
func (c *Config) SetEmail(name, email string) error {
	server, exists := c.Servers[name]
	if !exists {
		return fmt.Errorf("server '%s' not found", name)
	}
	server.Email = email
	c.Servers[name] = server
	return c.Save()
}

// GetServer gets a server; an empty name means the default.
func (c *Config) GetServer(name string) (*ServerConfig, error) {
	if name == "" {
		name = c.DefaultServer
	}

	server, exists := c.Servers[name]
	if !exists {
		return nil, fmt.Errorf("server '%s' not found", name)
	}
	return &server, nil
}

// ServerNames lists server names in sorted order.
func (c *Config) ServerNames() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
