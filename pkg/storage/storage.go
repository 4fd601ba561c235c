package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound marks an expected miss: the store simply has nothing for the
// key. Callers must treat it as "try the next source", never as a failure.
var ErrNotFound = errors.New("not found in cache database")

// PriceMaxAge is the staleness window for cached prices. Older rows are
// treated as absent, not stale-but-usable.
const PriceMaxAge = 6 * time.Hour

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS cards (
  card_id     INTEGER PRIMARY KEY,
  payload     TEXT NOT NULL,
  cached_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS card_faqs (
  card_id     INTEGER NOT NULL,
  faq_id      INTEGER NOT NULL,
  payload     TEXT NOT NULL,
  PRIMARY KEY (card_id, faq_id)
);
CREATE TABLE IF NOT EXISTS rulings (
  ruling_id   INTEGER PRIMARY KEY,
  payload     TEXT NOT NULL,
  cached_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS name_index (
  locale      TEXT NOT NULL,
  name        TEXT NOT NULL,
  card_id     INTEGER NOT NULL,
  PRIMARY KEY (locale, name)
);
CREATE INDEX IF NOT EXISTS idx_name_index_locale ON name_index(locale);
CREATE TABLE IF NOT EXISTS manifest (
  id          INTEGER PRIMARY KEY CHECK (id = 1),
  revision    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS card_sets (
  set_code    TEXT PRIMARY KEY,
  payload     TEXT NOT NULL,
  cached_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS products (
  product_id      INTEGER PRIMARY KEY,
  card_id         INTEGER NOT NULL,
  set_code        TEXT NOT NULL,
  payload         TEXT NOT NULL,
  price_amount    REAL,
  price_currency  TEXT,
  price_cached_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_products_card ON products(card_id);
CREATE INDEX IF NOT EXISTS idx_products_set ON products(set_code);
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

// PutCard upserts a card payload, refreshing its cached_at stamp.
func (d *DB) PutCard(ctx context.Context, cardID int, payload string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO cards(card_id, payload, cached_at) VALUES(?,?,CURRENT_TIMESTAMP)
ON CONFLICT(card_id) DO UPDATE SET payload = excluded.payload, cached_at = CURRENT_TIMESTAMP`, cardID, payload)
	return err
}

func (d *DB) GetCard(ctx context.Context, cardID int) (string, error) {
	var payload string
	err := d.sql.QueryRowContext(ctx, `SELECT payload FROM cards WHERE card_id = ?`, cardID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return payload, err
}

// DeleteCard removes one card's cached detail and FAQ rows. Idempotent:
// deleting an absent id is a no-op, which keeps concurrent manifest
// evictions commutative.
func (d *DB) DeleteCard(ctx context.Context, cardID int) error {
	if _, err := d.sql.ExecContext(ctx, `DELETE FROM cards WHERE card_id = ?`, cardID); err != nil {
		return err
	}
	_, err := d.sql.ExecContext(ctx, `DELETE FROM card_faqs WHERE card_id = ?`, cardID)
	return err
}

func (d *DB) PutFAQ(ctx context.Context, cardID, faqID int, payload string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO card_faqs(card_id, faq_id, payload) VALUES(?,?,?)
ON CONFLICT(card_id, faq_id) DO UPDATE SET payload = excluded.payload`, cardID, faqID, payload)
	return err
}

func (d *DB) ListFAQs(ctx context.Context, cardID int) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT payload FROM card_faqs WHERE card_id = ? ORDER BY faq_id`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) PutRuling(ctx context.Context, rulingID int, payload string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO rulings(ruling_id, payload, cached_at) VALUES(?,?,CURRENT_TIMESTAMP)
ON CONFLICT(ruling_id) DO UPDATE SET payload = excluded.payload, cached_at = CURRENT_TIMESTAMP`, rulingID, payload)
	return err
}

func (d *DB) GetRuling(ctx context.Context, rulingID int) (string, error) {
	var payload string
	err := d.sql.QueryRowContext(ctx, `SELECT payload FROM rulings WHERE ruling_id = ?`, rulingID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return payload, err
}

func (d *DB) DeleteRuling(ctx context.Context, rulingID int) error {
	_, err := d.sql.ExecContext(ctx, `DELETE FROM rulings WHERE ruling_id = ?`, rulingID)
	return err
}

// ReplaceNameIndex swaps one locale's persisted name index in a single
// transaction.
func (d *DB) ReplaceNameIndex(ctx context.Context, locale string, names map[string]int) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM name_index WHERE locale = ?`, locale); err != nil {
		return err
	}
	for name, cardID := range names {
		if _, err := tx.ExecContext(ctx, `INSERT INTO name_index(locale, name, card_id) VALUES(?,?,?)`, locale, name, cardID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) LoadNameIndex(ctx context.Context, locale string) (map[string]int, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT name, card_id FROM name_index WHERE locale = ?`, locale)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var name string
		var cardID int
		if err := rows.Scan(&name, &cardID); err != nil {
			return nil, err
		}
		out[name] = cardID
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// LookupName finds a card id by exact (already lowercased) name in one
// locale's persisted index.
func (d *DB) LookupName(ctx context.Context, locale, name string) (int, error) {
	var cardID int
	err := d.sql.QueryRowContext(ctx, `SELECT card_id FROM name_index WHERE locale = ? AND name = ?`, locale, name).Scan(&cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return cardID, err
}

func (d *DB) DeleteNameIndex(ctx context.Context, locale string) error {
	_, err := d.sql.ExecContext(ctx, `DELETE FROM name_index WHERE locale = ?`, locale)
	return err
}

// ManifestRevision returns the last-seen remote cache revision, 0 if never
// recorded.
func (d *DB) ManifestRevision(ctx context.Context) (int64, error) {
	var rev int64
	err := d.sql.QueryRowContext(ctx, `SELECT revision FROM manifest WHERE id = 1`).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return rev, err
}

func (d *DB) SetManifestRevision(ctx context.Context, rev int64) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO manifest(id, revision) VALUES(1, ?)
ON CONFLICT(id) DO UPDATE SET revision = excluded.revision`, rev)
	return err
}

func (d *DB) PutCardSet(ctx context.Context, code, payload string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO card_sets(set_code, payload, cached_at) VALUES(?,?,CURRENT_TIMESTAMP)
ON CONFLICT(set_code) DO UPDATE SET payload = excluded.payload, cached_at = CURRENT_TIMESTAMP`, code, payload)
	return err
}

func (d *DB) GetCardSet(ctx context.Context, code string) (string, error) {
	var payload string
	err := d.sql.QueryRowContext(ctx, `SELECT payload FROM card_sets WHERE set_code = ?`, code).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return payload, err
}
