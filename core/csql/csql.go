// Package csql wraps the postgres database handle with the schema all
// tables of this service live in
package csql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/lib/pq" // load database driver for postgres

	"github.com/relabs-tech/wedcards/core/logger"
)

// DB encapsulates a standard sql.DB with a schema
type DB struct {
	*sql.DB
	Schema string
}

// Querier is satisfied by *sql.DB, *sql.Tx and *DB. Store functions that must run
// either standalone or inside a transaction accept it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ErrNoRows is returned by Scan when QueryRow doesn't return a
// row. In such a case, QueryRow returns a placeholder *Row value that
// defers this error until a Scan.
var ErrNoRows = sql.ErrNoRows

var validSchema = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// OpenWithSchema opens a postgres database with a schema. The password is appended
// to the data source name when not empty, so that it does not show up in logs.
// The schema gets created if it does not exist yet.
// The returned database also has the uuid-ossp extension loaded.
func OpenWithSchema(dataSourceName, password, schema string) *DB {
	logger.Default().Infoln("connecting to postgres database: ", dataSourceName)
	if len(password) > 0 {
		dataSourceName += " password=" + password
	}
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		panic(err)
	}
	if err = db.Ping(); err != nil {
		panic(err)
	}
	schema, err = prepareSchema(db, schema)
	if err != nil {
		panic(err)
	}
	return &DB{DB: db, Schema: schema}
}

// New wraps an already opened database, e.g. one from sqlmock, and prepares the schema
func New(db *sql.DB, schema string) (*DB, error) {
	schema, err := prepareSchema(db, schema)
	if err != nil {
		return nil, err
	}
	return &DB{DB: db, Schema: schema}, nil
}

func prepareSchema(db *sql.DB, schema string) (string, error) {
	if len(schema) == 0 {
		schema = "public"
	}
	if !validSchema.MatchString(schema) {
		return "", fmt.Errorf("invalid schema name '%s'", schema)
	}
	logger.Default().Infoln("selected database schema:", schema)
	_, err := db.Exec(`CREATE extension IF NOT EXISTS "uuid-ossp";
CREATE schema IF NOT EXISTS ` + schema + `;
`)
	if err != nil {
		return "", fmt.Errorf("cannot prepare schema %s: %w", schema, err)
	}
	return schema, nil
}

// ClearSchema clears all the data contained in the database's schema
// Technically this is done by dropping the schema and then recreating it
func (db *DB) ClearSchema() {
	if db.Schema == "public" {
		panic("refuse to drop public schema")
	}
	_, err := db.Exec(`DROP SCHEMA ` + db.Schema + ` CASCADE;
	CREATE schema IF NOT EXISTS ` + db.Schema + `;`)
	if err != nil {
		logger.Default().WithError(err).Errorln("clear schema error:", db.Schema)
	}
}

// Table returns the schema qualified and quoted name of a table
func (db *DB) Table(name string) string {
	return fmt.Sprintf("%s.\"%s\"", db.Schema, name)
}
