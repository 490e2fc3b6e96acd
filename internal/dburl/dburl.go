// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package dburl parses the database URLs sqlcheck connects to and turns them
// into driver connection strings.
package dburl

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Supported database dialects.
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

var (
	ErrUnknownDialect = errors.New("unknown database dialect")
	ErrInvalidURL     = errors.New("invalid database URL")
)

// URL is a parsed database URL.
type URL struct {
	// Original is the URL as given.
	Original string
	// Dialect is one of the Dialect constants.
	Dialect  string
	Host     string
	Port     string
	User     string
	Password string
	// Database is the database name, or the file path for SQLite.
	Database string
	// Query is the raw query string, without the leading "?".
	Query string
}

// Parse parses a postgres://, postgresql://, mysql://, sqlite:// or sqlite3://
// URL. SQLite URLs also accept the "sqlite:path" short form and go-sqlite3's
// own "file:path" DSNs.
func Parse(databaseURL string) (*URL, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("%w: URL is empty", ErrInvalidURL)
	}
	lower := strings.ToLower(databaseURL)
	if strings.HasPrefix(lower, "sqlite:") || strings.HasPrefix(lower, "sqlite3:") || strings.HasPrefix(lower, "file:") {
		return parseSQLite(databaseURL)
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	parsed := &URL{
		Original: databaseURL,
		Host:     u.Hostname(),
		Port:     u.Port(),
		Database: strings.TrimPrefix(u.Path, "/"),
		Query:    u.RawQuery,
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		parsed.Dialect = DialectPostgres
	case "mysql":
		parsed.Dialect = DialectMySQL
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, u.Scheme)
	}
	if u.User != nil {
		parsed.User = u.User.Username()
		parsed.Password, _ = u.User.Password()
	}
	return parsed, nil
}

func parseSQLite(databaseURL string) (*URL, error) {
	path := databaseURL[strings.IndexByte(databaseURL, ':')+1:]
	// sqlite:///abs/path keeps its leading slash, sqlite://rel/path does not.
	path = strings.TrimPrefix(path, "//")
	parsed := &URL{Original: databaseURL, Dialect: DialectSQLite}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		parsed.Query = path[i+1:]
		path = path[:i]
	}
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite URL has no database path", ErrInvalidURL)
	}
	parsed.Database = path
	return parsed, nil
}

// DSN returns the connection string the dialect's driver expects.
func (u *URL) DSN() (string, error) {
	switch u.Dialect {
	case DialectPostgres:
		// pgx understands URLs directly.
		return u.Original, nil
	case DialectSQLite:
		dsn := "file:" + u.Database
		if u.Query != "" {
			dsn += "?" + u.Query
		}
		return dsn, nil
	case DialectMySQL:
		cfg := mysql.NewConfig()
		cfg.User = u.User
		cfg.Passwd = u.Password
		cfg.DBName = u.Database
		if u.Host != "" {
			cfg.Net = "tcp"
			port := u.Port
			if port == "" {
				port = "3306"
			}
			cfg.Addr = net.JoinHostPort(u.Host, port)
		}
		if u.Query == "" {
			return cfg.FormatDSN(), nil
		}
		// Let the driver sort known options into their fields.
		cfg, err := mysql.ParseDSN(cfg.FormatDSN() + "?" + u.Query)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		return cfg.FormatDSN(), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDialect, u.Dialect)
}

// Redacted returns the URL with its password masked, for logging.
func (u *URL) Redacted() string {
	if u.Dialect == DialectSQLite {
		return u.Original
	}
	parsed, err := url.Parse(u.Original)
	if err != nil {
		return u.Dialect + "://"
	}
	return parsed.Redacted()
}
