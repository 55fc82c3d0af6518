package bot

import (
	"github.com/joho/godotenv"

	coreconfig "github.com/projectnox/bookingbot/core/config"
)

// Config wraps the shared core configuration for the booking bot.
type Config struct {
	Core *coreconfig.Config
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return c.Core
}

// LoadConfig loads a .env file when present, then reads the YAML config with
// environment overrides applied on top.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	core, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return &Config{Core: core}, nil
}
