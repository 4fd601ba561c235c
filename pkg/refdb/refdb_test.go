package refdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sw33tLie/cardex/pkg/card"
	"github.com/sw33tLie/cardex/pkg/storage"
)

func openTestDump(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "reference.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedCard(t *testing.T, db *DB) *card.Card {
	t.Helper()
	c := card.NewCard(46986414)
	c.Names["en"] = "Dark Magician"
	c.Names["ja"] = "ブラック・マジシャン"
	c.Effects["en"] = "The ultimate wizard in terms of attack and defense."
	c.ReleaseDates["en"] = "2002-03-08"
	c.Banlist["advanced"] = "unlimited"
	if err := db.InsertCard(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCardByID(t *testing.T) {
	db := openTestDump(t)
	seeded := seedCard(t, db)
	ctx := context.Background()

	got, err := db.CardByID(ctx, seeded.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Names["en"] != seeded.Names["en"] || got.Names["ja"] != seeded.Names["ja"] {
		t.Fatalf("locales missing: %v", got.Names)
	}
	if got.ReleaseDates["en"] != "2002-03-08" {
		t.Fatalf("release date missing: %v", got.ReleaseDates)
	}
	if got.Banlist["advanced"] != "unlimited" {
		t.Fatalf("banlist missing: %v", got.Banlist)
	}

	if _, err := db.CardByID(ctx, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an unknown id, got %v", err)
	}
}

func TestCardIDByName(t *testing.T) {
	db := openTestDump(t)
	seeded := seedCard(t, db)
	ctx := context.Background()

	// Exact case-insensitive match, any locale.
	id, err := db.CardIDByName(ctx, "dark magician")
	if err != nil || id != seeded.ID {
		t.Fatalf("exact lookup = %d, %v", id, err)
	}
	id, err = db.CardIDByName(ctx, "ブラック・マジシャン")
	if err != nil || id != seeded.ID {
		t.Fatalf("ja lookup = %d, %v", id, err)
	}

	// Prefix fallback.
	id, err = db.CardIDByName(ctx, "dark magi")
	if err != nil || id != seeded.ID {
		t.Fatalf("prefix lookup = %d, %v", id, err)
	}

	if _, err := db.CardIDByName(ctx, "blue-eyes"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
