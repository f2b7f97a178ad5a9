package toolproc

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// ServerConfig describes how to launch one tool server process.
type ServerConfig struct {
	Name    string            `yaml:"name"`
	Command []string          `yaml:"command"`
	Env     map[string]string `yaml:"env"`
}

// Config is the tool server definition file.
type Config struct {
	Servers []ServerConfig `yaml:"servers"`
}

// Find returns the server definition with the given name, or nil.
func (c *Config) Find(name string) *ServerConfig {
	for i := range c.Servers {
		if c.Servers[i].Name == name {
			return &c.Servers[i]
		}
	}
	return nil
}

// LoadConfig loads tool server definitions from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read tools config", goerr.V("path", path))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse tools config", goerr.V("path", path))
	}

	return &cfg, nil
}

// DefaultConfig returns the built-in server definitions for the supported
// tools. API keys are injected into the child process environment.
func DefaultConfig(tavilyAPIKey, firecrawlAPIKey string) *Config {
	return &Config{
		Servers: []ServerConfig{
			{
				Name:    "tavily",
				Command: []string{"npx", "--yes", "--no-debugger", "tavily-mcp@0.1.3"},
				Env: map[string]string{
					"TAVILY_API_KEY": tavilyAPIKey,
					"NODE_OPTIONS":   "--no-deprecation",
				},
			},
			{
				Name:    "firecrawl",
				Command: []string{"npx", "--yes", "firecrawl-mcp"},
				Env: map[string]string{
					"FIRECRAWL_API_KEY": firecrawlAPIKey,
				},
			},
		},
	}
}
