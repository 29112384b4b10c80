package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Config selects where the state database lives. A remote Url (libsql://,
// https://) takes precedence over the local File.
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// Open opens the database described by config and applies schema to it.
func (config Config) Open(schema string) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch {
	case config.Url != "":
		db, err = openRemote(config.Url, config.AuthToken)
	case config.File != "":
		db, err = OpenFile(config.File)
	default:
		return nil, wrapOpenDB(fmt.Errorf("neither a file nor a url was specified"))
	}
	if err != nil {
		return nil, err
	}

	err = ApplySchema(db, schema)
	if err != nil {
		db.Close()
		return nil, wrapOpenDB(err)
	}
	return db, nil
}

// ApplySchema executes every statement of schema one at a time, remote
// drivers do not accept multi-statement strings.
func ApplySchema(db *sql.DB, schema string) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		_, err := db.Exec(stmt)
		if err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func openRemote(rawUrl, authToken string) (*sql.DB, error) {
	values := url.Values{}
	if authToken != "" {
		values.Add("authToken", authToken)
	}
	dsn := rawUrl
	if len(values) > 0 {
		dsn += "?" + values.Encode()
	}
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, wrapOpenDB(err)
	}
	return db, nil
}

// OpenFile opens a local sqlite database, `:memory:` is accepted.
func OpenFile(path string) (*sql.DB, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, wrapOpenDB(err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, wrapOpenDB(err)
		}
	}

	return db, nil
}
