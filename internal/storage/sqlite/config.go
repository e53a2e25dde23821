package sqlite

import "fmt"

// Config holds SQLite adapter settings.
type Config struct {
	Path string
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("sqlite database path is required")
	}
	return nil
}

// GetType returns the storage type identifier.
func (c *Config) GetType() string {
	return "sqlite"
}

// GetConnectionString returns the DSN for database/sql.
func (c *Config) GetConnectionString() string {
	return fmt.Sprintf("file:%s?_foreign_keys=on", c.Path)
}
