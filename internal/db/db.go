package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tphummel/service_report/internal/models"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite connection holding the dispatch log.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at path and runs migrations. The default
// path is ":memory:", so dispatches last only as long as the process.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Each new connection to ":memory:" is a separate empty database.
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	} else if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DB{conn: conn}, nil
}

func migrate(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS dispatches (
			id            TEXT PRIMARY KEY,
			service_id    TEXT NOT NULL UNIQUE,
			recipients    TEXT NOT NULL,
			cc            TEXT NOT NULL DEFAULT '',
			subject       TEXT NOT NULL,
			mailto_uri    TEXT NOT NULL,
			dispatched_at DATETIME NOT NULL
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Ping verifies the database connection is alive.
func (d *DB) Ping() error {
	return d.conn.Ping()
}

// CreateDispatch inserts a dispatch record. A second dispatch for the same
// service violates the unique constraint and returns an error.
func (d *DB) CreateDispatch(m *models.Dispatch) error {
	_, err := d.conn.Exec(`
		INSERT INTO dispatches (id, service_id, recipients, cc, subject, mailto_uri, dispatched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ServiceID, strings.Join(m.Recipients, ","), m.CC, m.Subject, m.MailtoURI,
		m.DispatchedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetDispatchByServiceID returns the dispatch for serviceID, or sql.ErrNoRows
// if the service has not been sent.
func (d *DB) GetDispatchByServiceID(serviceID string) (*models.Dispatch, error) {
	row := d.conn.QueryRow(`
		SELECT id, service_id, recipients, cc, subject, mailto_uri, dispatched_at
		FROM dispatches WHERE service_id = ?`, serviceID)
	return scan(row)
}

// ListDispatches returns every recorded dispatch, oldest first.
func (d *DB) ListDispatches() ([]*models.Dispatch, error) {
	rows, err := d.conn.Query(`
		SELECT id, service_id, recipients, cc, subject, mailto_uri, dispatched_at
		FROM dispatches ORDER BY dispatched_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Dispatch
	for rows.Next() {
		m, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountDispatches returns the number of recorded dispatches.
func (d *DB) CountDispatches() (int, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM dispatches`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.Dispatch, error) {
	var m models.Dispatch
	var recipients, dispatchedAt string
	if err := s.Scan(
		&m.ID, &m.ServiceID, &recipients, &m.CC, &m.Subject, &m.MailtoURI, &dispatchedAt,
	); err != nil {
		return nil, err
	}
	if recipients != "" {
		m.Recipients = strings.Split(recipients, ",")
	}
	var err error
	m.DispatchedAt, err = time.Parse(time.RFC3339Nano, dispatchedAt)
	if err != nil {
		return nil, fmt.Errorf("parse dispatched_at %q: %w", dispatchedAt, err)
	}
	return &m, nil
}
