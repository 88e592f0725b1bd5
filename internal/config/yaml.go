package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const redacted = "********"

// Redacted returns a copy safe to print: secrets are masked.
func (c Config) Redacted() Config {
	if c.Auth.JWTSecret != "" {
		c.Auth.JWTSecret = redacted
	}
	if c.Cache.RedisPassword != "" {
		c.Cache.RedisPassword = redacted
	}
	if c.Database.DSN != "" && c.Database.Driver != "sqlite" {
		c.Database.DSN = redacted
	}
	return c
}

// YAML renders the redacted configuration as YAML.
func (c Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// LoadYAMLConfig reads and parses a YAML configuration file directly, without
// defaults or environment overrides. Environment variables referenced as
// ${VAR_NAME} in the file are expanded before parsing.
func LoadYAMLConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// WriteDefaultConfig writes a commented starter keygate.yaml.
func WriteDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0600)
}

const defaultConfigYAML = `# keygate configuration

server:
  addr: 0.0.0.0:8080
  cors_origins: ["*"]
  ip_rate_limit: 600        # requests per minute per client IP, 0 disables
  shutdown_timeout: 30s

database:
  driver: sqlite            # sqlite, postgres, mysql or sqlserver
  dsn: ""                   # required unless driver is sqlite
  data_dir: ""              # sqlite only, default ~/.keygate

auth:
  jwt_secret: ""            # set via KEYGATE_AUTH_JWT_SECRET
  jwt_issuer: keygate

cache:
  redis_addr: ""            # enables the shared key cache
  key_ttl: 30s

usage:
  retention_days: 90
  write_timeout: 5s

maintenance:
  enabled: true
  window_interval: 1h
  usage_interval: 24h

log:
  level: info
  format: json

# Business services proxied behind the gateway:
upstreams: []
  # - name: contacts
  #   url: http://contacts.internal:8080
`
