// Package refdb reads the secondary reference database: a locally shipped
// sqlite dump of the official card database plus banlist status. It is never
// written by the resolution pipeline and never evicted by manifest updates.
package refdb

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/sw33tLie/cardex/pkg/card"
	"github.com/sw33tLie/cardex/pkg/storage"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// The dump ships with this schema; creating it here keeps a fresh file
	// usable in tests and first runs.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS texts (
  card_id  INTEGER NOT NULL,
  locale   TEXT NOT NULL,
  name     TEXT NOT NULL,
  effect   TEXT,
  PRIMARY KEY (card_id, locale)
);
CREATE INDEX IF NOT EXISTS idx_texts_name ON texts(name);
CREATE TABLE IF NOT EXISTS release_dates (
  card_id      INTEGER NOT NULL,
  locale       TEXT NOT NULL,
  release_date TEXT NOT NULL,
  PRIMARY KEY (card_id, locale)
);
CREATE TABLE IF NOT EXISTS banlist (
  card_id  INTEGER NOT NULL,
  format   TEXT NOT NULL,
  status   TEXT NOT NULL,
  PRIMARY KEY (card_id, format)
);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// CardByID loads one card with every locale's text, dates and banlist
// status. Returns storage.ErrNotFound when the dump has no such id.
func (d *DB) CardByID(ctx context.Context, id int) (*card.Card, error) {
	c := card.NewCard(id)

	rows, err := d.sql.QueryContext(ctx, `SELECT locale, name, effect FROM texts WHERE card_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := false
	for rows.Next() {
		var locale, name string
		var effect sql.NullString
		if err := rows.Scan(&locale, &name, &effect); err != nil {
			return nil, err
		}
		found = true
		c.Names[locale] = name
		c.Effects[locale] = effect.String
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.ErrNotFound
	}

	dateRows, err := d.sql.QueryContext(ctx, `SELECT locale, release_date FROM release_dates WHERE card_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer dateRows.Close()
	for dateRows.Next() {
		var locale, date string
		if err := dateRows.Scan(&locale, &date); err != nil {
			return nil, err
		}
		c.ReleaseDates[locale] = date
	}
	if err := dateRows.Err(); err != nil {
		return nil, err
	}

	banRows, err := d.sql.QueryContext(ctx, `SELECT format, status FROM banlist WHERE card_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer banRows.Close()
	for banRows.Next() {
		var format, status string
		if err := banRows.Scan(&format, &status); err != nil {
			return nil, err
		}
		c.Banlist[format] = status
	}
	return c, banRows.Err()
}

// CardIDByName resolves a name (any locale) to a card id. Exact
// case-insensitive match first, then a prefix LIKE fallback.
func (d *DB) CardIDByName(ctx context.Context, name string) (int, error) {
	lowered := strings.ToLower(strings.TrimSpace(name))

	var id int
	err := d.sql.QueryRowContext(ctx, `SELECT card_id FROM texts WHERE LOWER(name) = ? LIMIT 1`, lowered).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	err = d.sql.QueryRowContext(ctx, `SELECT card_id FROM texts WHERE LOWER(name) LIKE ? ORDER BY card_id LIMIT 1`, lowered+"%").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InsertCard seeds a card into the dump. Used by tests and the import
// tooling, not by the resolution pipeline.
func (d *DB) InsertCard(ctx context.Context, c *card.Card) error {
	for locale, name := range c.Names {
		if _, err := d.sql.ExecContext(ctx, `INSERT INTO texts(card_id, locale, name, effect) VALUES(?,?,?,?)
ON CONFLICT(card_id, locale) DO UPDATE SET name = excluded.name, effect = excluded.effect`,
			c.ID, locale, name, c.Effects[locale]); err != nil {
			return err
		}
	}
	for locale, date := range c.ReleaseDates {
		if _, err := d.sql.ExecContext(ctx, `INSERT INTO release_dates(card_id, locale, release_date) VALUES(?,?,?)
ON CONFLICT(card_id, locale) DO UPDATE SET release_date = excluded.release_date`,
			c.ID, locale, date); err != nil {
			return err
		}
	}
	for format, status := range c.Banlist {
		if _, err := d.sql.ExecContext(ctx, `INSERT INTO banlist(card_id, format, status) VALUES(?,?,?)
ON CONFLICT(card_id, format) DO UPDATE SET status = excluded.status`,
			c.ID, format, status); err != nil {
			return err
		}
	}
	return nil
}
