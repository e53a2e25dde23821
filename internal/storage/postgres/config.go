package postgres

import "fmt"

// Config holds PostgreSQL adapter settings.
type Config struct {
	ConnectionString string
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ConnectionString == "" {
		return fmt.Errorf("postgres connection string is required")
	}
	return nil
}

// GetType returns the storage type identifier.
func (c *Config) GetType() string {
	return "postgres"
}

// GetConnectionString returns the DSN for database/sql.
func (c *Config) GetConnectionString() string {
	return c.ConnectionString
}
