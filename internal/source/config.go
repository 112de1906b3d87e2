package source

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Supported drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// groupConcatMaxLen keeps long aggregated clinical notes from being truncated
// at MySQL's 1024-byte default.
const groupConcatMaxLen = "10485760"

// ErrInvalidConfig indicates the source configuration cannot produce a DSN.
var ErrInvalidConfig = errors.New("invalid source configuration")

// Config selects and addresses the clinical database.
type Config struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	// QueryDir overrides the embedded queries with <dir>/get_batch.sql and
	// <dir>/get_detail.sql when set.
	QueryDir string `yaml:"query_dir"`

	// Window is how far back the batch query looks.
	Window time.Duration `yaml:"window"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DefaultConfig targets a local MySQL server and the last 24 hours.
func DefaultConfig() Config {
	return Config{
		Driver:         DriverMySQL,
		Host:           "127.0.0.1",
		Port:           3306,
		SSLMode:        "disable",
		Window:         24 * time.Hour,
		ConnectTimeout: 10 * time.Second,
	}
}

// Validate checks that a DSN can be built.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMySQL, DriverPostgres:
		if c.DSN == "" && c.Database == "" {
			return fmt.Errorf("%w: database is required", ErrInvalidConfig)
		}
	case DriverSQLite:
		if c.DSN == "" {
			return fmt.Errorf("%w: dsn is required for sqlite", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, c.Driver)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive", ErrInvalidConfig)
	}
	return nil
}

// DataSourceName renders the driver-specific DSN. An explicit DSN wins.
func (c Config) DataSourceName() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.Driver {
	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
		mc.DBName = c.Database
		mc.Timeout = c.ConnectTimeout
		mc.Params = map[string]string{
			"charset":              "utf8mb4",
			"group_concat_max_len": groupConcatMaxLen,
		}
		return mc.FormatDSN()
	case DriverPostgres:
		q := url.Values{}
		q.Set("sslmode", c.SSLMode)
		if c.ConnectTimeout > 0 {
			q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
			Path:     "/" + c.Database,
			RawQuery: q.Encode(),
		}
		return u.String()
	default:
		return ""
	}
}
