package postgres

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/adapter"
)

// Params holds PostgreSQL connection settings, used when the source path
// is empty. Parsed from core.AdapterConfig.Params using mapstructure.
type Params struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ParseParams decodes adapter params.
func ParseParams(params map[string]any) (*Params, error) {
	p := &Params{}
	if err := adapter.DecodeParams(params, p); err != nil {
		return nil, err
	}
	return p, nil
}

// buildPostgresDSN constructs a key=value connection string.
func buildPostgresDSN(p *Params) string {
	host := p.Host
	if host == "" {
		host = "localhost"
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", host, port, p.Database, sslmode)
	if p.Username != "" {
		dsn += fmt.Sprintf(" user=%s", p.Username)
	}
	if p.Password != "" {
		dsn += fmt.Sprintf(" password=%s", p.Password)
	}
	return dsn
}

// displayPath is the path a source built from params is known by. It
// never carries the password.
func displayPath(p *Params) string {
	u := url.URL{Scheme: "postgres", Host: "localhost:5432", Path: "/" + p.Database}
	if p.Host != "" || p.Port != 0 {
		host, port := p.Host, p.Port
		if host == "" {
			host = "localhost"
		}
		if port == 0 {
			port = 5432
		}
		u.Host = fmt.Sprintf("%s:%d", host, port)
	}
	if p.Username != "" {
		u.User = url.User(p.Username)
	}
	return u.String()
}

// redact removes the password from a connection URL or key=value string.
func redact(dsn string) string {
	if !strings.Contains(dsn, "://") {
		fields := strings.Fields(dsn)
		kept := fields[:0]
		for _, f := range fields {
			if !strings.HasPrefix(f, "password=") {
				kept = append(kept, f)
			}
		}
		return strings.Join(kept, " ")
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.User(u.User.Username())
	}
	return u.String()
}
