package storage

import (
	"context"
	"database/sql"
	"time"
)

// ProductRow is one commerce product as persisted. A zero PriceCachedAt
// means the product has never been priced.
type ProductRow struct {
	ProductID     int
	CardID        int
	SetCode       string
	Payload       string
	PriceAmount   float64
	PriceCurrency string
	PriceCachedAt time.Time
	HasPrice      bool
}

// UpsertProduct stores a product row without touching price columns.
func (d *DB) UpsertProduct(ctx context.Context, p ProductRow) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO products(product_id, card_id, set_code, payload) VALUES(?,?,?,?)
ON CONFLICT(product_id) DO UPDATE SET card_id = excluded.card_id, set_code = excluded.set_code, payload = excluded.payload`,
		p.ProductID, p.CardID, p.SetCode, p.Payload)
	return err
}

// UpdateProductPrice records a fresh price for one product.
func (d *DB) UpdateProductPrice(ctx context.Context, productID int, amount float64, currency string) error {
	_, err := d.sql.ExecContext(ctx, `UPDATE products SET price_amount = ?, price_currency = ?, price_cached_at = CURRENT_TIMESTAMP WHERE product_id = ?`,
		amount, currency, productID)
	return err
}

// ListProductsByCard returns a card's products. Prices older than maxAge are
// reported as absent.
func (d *DB) ListProductsByCard(ctx context.Context, cardID int, maxAge time.Duration) ([]ProductRow, error) {
	return d.listProducts(ctx, `SELECT product_id, card_id, set_code, payload, price_amount, price_currency, price_cached_at FROM products WHERE card_id = ? ORDER BY product_id`, cardID, maxAge)
}

// ListProductsBySet returns a set's products with the same staleness rule.
func (d *DB) ListProductsBySet(ctx context.Context, setCode string, maxAge time.Duration) ([]ProductRow, error) {
	return d.listProducts(ctx, `SELECT product_id, card_id, set_code, payload, price_amount, price_currency, price_cached_at FROM products WHERE set_code = ? ORDER BY product_id`, setCode, maxAge)
}

func (d *DB) listProducts(ctx context.Context, query string, arg interface{}, maxAge time.Duration) ([]ProductRow, error) {
	rows, err := d.sql.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductRow
	for rows.Next() {
		var p ProductRow
		var amount sql.NullFloat64
		var currency sql.NullString
		var cachedAt sql.NullString
		if err := rows.Scan(&p.ProductID, &p.CardID, &p.SetCode, &p.Payload, &amount, &currency, &cachedAt); err != nil {
			return nil, err
		}
		if amount.Valid && cachedAt.Valid {
			ts := parseSQLiteTime(cachedAt.String)
			if !ts.IsZero() && time.Since(ts) <= maxAge {
				p.HasPrice = true
				p.PriceAmount = amount.Float64
				p.PriceCurrency = currency.String
				p.PriceCachedAt = ts
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PruneStalePrices nulls out price columns older than maxAge. Returns the
// number of affected rows.
func (d *DB) PruneStalePrices(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format("2006-01-02 15:04:05")
	res, err := d.sql.ExecContext(ctx, `UPDATE products SET price_amount = NULL, price_currency = NULL, price_cached_at = NULL
WHERE price_cached_at IS NOT NULL AND price_cached_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneStaleEntities deletes card and ruling payloads cached before maxAge,
// along with the pruned cards' FAQ rows. Returns the number of deleted
// payload rows.
func (d *DB) PruneStaleEntities(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format("2006-01-02 15:04:05")
	if _, err := d.sql.ExecContext(ctx, `DELETE FROM card_faqs WHERE card_id IN (SELECT card_id FROM cards WHERE cached_at < ?)`, cutoff); err != nil {
		return 0, err
	}
	var total int64
	for _, q := range []string{
		`DELETE FROM cards WHERE cached_at < ?`,
		`DELETE FROM rulings WHERE cached_at < ?`,
		`DELETE FROM card_sets WHERE cached_at < ?`,
	} {
		res, err := d.sql.ExecContext(ctx, q, cutoff)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Stats summarizes the cache database for the stats command.
type Stats struct {
	Cards    int
	FAQs     int
	Rulings  int
	Sets     int
	Products int
	Priced   int
	Revision int64
}

func (d *DB) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM cards`, &s.Cards},
		{`SELECT COUNT(*) FROM card_faqs`, &s.FAQs},
		{`SELECT COUNT(*) FROM rulings`, &s.Rulings},
		{`SELECT COUNT(*) FROM card_sets`, &s.Sets},
		{`SELECT COUNT(*) FROM products`, &s.Products},
		{`SELECT COUNT(*) FROM products WHERE price_amount IS NOT NULL`, &s.Priced},
	}
	for _, c := range counts {
		if err := d.sql.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return s, err
		}
	}
	rev, err := d.ManifestRevision(ctx)
	if err != nil {
		return s, err
	}
	s.Revision = rev
	return s, nil
}

// parseSQLiteTime handles both CURRENT_TIMESTAMP ("2006-01-02 15:04:05")
// and RFC3339 formats.
func parseSQLiteTime(s string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
