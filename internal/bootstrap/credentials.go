package bootstrap

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Credentials holds the resolved database connection parameters.
type Credentials struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	Source   string // "url", "pgpass" or "environment"
}

// ResolveDatabaseURL produces the connection URL the server should use.
// An explicit URL wins; otherwise credentials are resolved through the
// standard PostgreSQL chain (DATABASE_URL, .pgpass, PG* variables).
func ResolveDatabaseURL(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	creds, err := LoadCredentials()
	if err != nil {
		return "", err
	}
	return creds.URL(os.Getenv("PGSSLMODE")), nil
}

// LoadCredentials resolves database credentials using the fallback chain:
// DATABASE_URL, then ~/.pgpass (or $PGPASSFILE) matched against the PG*
// variables, then the PG* variables alone.
func LoadCredentials() (*Credentials, error) {
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		creds, err := parseConnectionURL(databaseURL)
		if err != nil {
			return nil, err
		}
		return creds, nil
	}

	host := envDefault("PGHOST", "localhost")
	database := envDefault("PGDATABASE", "sds")
	user := envDefault("PGUSER", "postgres")
	port := 5432
	if portStr := os.Getenv("PGPORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PGPORT value %q: %w", portStr, err)
		}
		port = p
	}

	if creds, err := loadFromPgpass(host, port, database, user); err == nil {
		return creds, nil
	}

	password := os.Getenv("PGPASSWORD")
	if password == "" {
		return nil, fmt.Errorf("no database credentials found (tried DATABASE_URL, .pgpass, PGPASSWORD)")
	}
	return &Credentials{
		Host: host, Port: port, Database: database, User: user,
		Password: password, Source: "environment",
	}, nil
}

// loadFromPgpass parses the PostgreSQL .pgpass file, picking the first line
// matching host:port:database:user. Fields may be the * wildcard. PostgreSQL
// refuses group/world-readable files, so we do too.
func loadFromPgpass(host string, port int, database, user string) (*Credentials, error) {
	path := os.Getenv("PGPASSFILE")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".pgpass")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf(".pgpass not usable: %w", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf(".pgpass file has incorrect permissions %o (must be 0600)", info.Mode().Perm())
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open .pgpass file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 5 {
			continue
		}
		if !fieldMatches(parts[0], host) ||
			!fieldMatches(parts[1], strconv.Itoa(port)) ||
			!fieldMatches(parts[2], database) ||
			!fieldMatches(parts[3], user) {
			continue
		}
		return &Credentials{
			Host: host, Port: port, Database: database, User: user,
			Password: parts[4], Source: "pgpass",
		}, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading .pgpass file: %w", err)
	}
	return nil, fmt.Errorf("no matching entry in .pgpass for %s:%d/%s/%s", host, port, database, user)
}

func parseConnectionURL(connURL string) (*Credentials, error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if u.Scheme != "postgresql" && u.Scheme != "postgres" {
		return nil, fmt.Errorf("invalid DATABASE_URL scheme: %s", u.Scheme)
	}

	user := u.User.Username()
	password, _ := u.User.Password()
	database := strings.TrimPrefix(u.Path, "/")
	if user == "" || database == "" {
		return nil, fmt.Errorf("DATABASE_URL missing username or database name")
	}

	port := 5432
	if portStr := u.Port(); portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid port in DATABASE_URL: %w", err)
		}
	}

	return &Credentials{
		Host: u.Hostname(), Port: port, Database: database, User: user,
		Password: password, Source: "url",
	}, nil
}

// URL renders the credentials as a connection URL for pgxpool.
func (c *Credentials) URL(sslmode string) string {
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, url.QueryEscape(c.Password), c.Host, c.Port, c.Database, sslmode)
}

func fieldMatches(pattern, value string) bool {
	return pattern == "*" || pattern == value
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
