package database

import (
	"net/url"
)

// DBConfig holds the postgres connection parameters used by the postgres
// state backend.
type DBConfig struct {
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Host          string `mapstructure:"host"`
	Port          string `mapstructure:"port"`
	DBName        string `mapstructure:"name"`
	SuperUser     string `mapstructure:"super_user"`
	SuperPassword string `mapstructure:"super_password"`
}

// Validate reports whether the mandatory fields are set.
func (c DBConfig) Validate() bool {
	return c.User != "" && c.Host != "" && c.Port != "" && c.DBName != ""
}

// TargetDSN builds a URL-encoded DSN for the application database.
func (c DBConfig) TargetDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/" + c.DBName,
	}
	// sslmode=disable for local development
	q := u.Query()
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}

// AdminDSN builds a DSN for the superuser against the maintenance database.
// It returns "" when no superuser is configured.
func (c DBConfig) AdminDSN() string {
	if c.SuperUser == "" {
		return ""
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.SuperUser, c.SuperPassword),
		Host:   c.Host + ":" + c.Port,
		Path:   "/postgres",
	}
	q := u.Query()
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}
