package sqlstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// Driver error codes for a violated primary key.
const (
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
	pgUniqueViolation          = "23505"
	mysqlDupEntry              = 1062
)

// Dialect encapsulates database-engine-specific behavior.
type Dialect interface {
	// Name is the configuration name ("sqlite", "postgres" or "mysql").
	Name() string

	// DriverName returns the database/sql driver name.
	DriverName() string

	// QuoteIdentifier wraps a table/column name in dialect-specific quoting.
	QuoteIdentifier(name string) string

	// Placeholder returns the parameter placeholder for the n-th parameter (1-based).
	Placeholder(n int) string

	// CreateTable returns the schema bootstrap statement for table.
	CreateTable(table string) string

	// IsDuplicateKey reports whether err is a primary key violation.
	IsDuplicateKey(err error) bool
}

// DialectByName returns a built-in dialect.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "postgres", "postgresql", "pg":
		return Postgres{}, nil
	case "mysql", "mariadb":
		return MySQL{}, nil
	default:
		return nil, fmt.Errorf("sqlstore: unknown dialect %q", name)
	}
}

// SQLite is the dialect for modernc.org/sqlite.
type SQLite struct{}

func (SQLite) Name() string       { return "sqlite" }
func (SQLite) DriverName() string { return "sqlite" }

func (SQLite) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) IsDuplicateKey(err error) bool {
	var e *sqlite.Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code() == sqliteConstraintPrimaryKey || e.Code() == sqliteConstraintUnique
}

func (d SQLite) CreateTable(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + d.QuoteIdentifier(table) + ` (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	image BLOB,
	image_key TEXT NOT NULL DEFAULT '',
	descriptors BLOB NOT NULL
)`
}

// Postgres is the dialect for github.com/lib/pq.
type Postgres struct{}

func (Postgres) Name() string       { return "postgres" }
func (Postgres) DriverName() string { return "postgres" }

func (Postgres) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) IsDuplicateKey(err error) bool {
	var e *pq.Error
	return errors.As(err, &e) && e.Code == pgUniqueViolation
}

func (d Postgres) CreateTable(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + d.QuoteIdentifier(table) + ` (
	id VARCHAR(36) PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	image BYTEA,
	image_key TEXT NOT NULL DEFAULT '',
	descriptors BYTEA NOT NULL
)`
}

// MySQL is the dialect for github.com/go-sql-driver/mysql.
type MySQL struct{}

func (MySQL) Name() string       { return "mysql" }
func (MySQL) DriverName() string { return "mysql" }

func (MySQL) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySQL) Placeholder(int) string { return "?" }

func (MySQL) IsDuplicateKey(err error) bool {
	var e *mysql.MySQLError
	return errors.As(err, &e) && e.Number == mysqlDupEntry
}

func (d MySQL) CreateTable(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + d.QuoteIdentifier(table) + ` (
	id VARCHAR(36) PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	image LONGBLOB,
	image_key VARCHAR(255) NOT NULL DEFAULT '',
	descriptors LONGBLOB NOT NULL
)`
}
