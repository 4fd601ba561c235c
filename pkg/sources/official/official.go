// Package official resolves lookups from the secondary reference database,
// the locally shipped official card dump. It answers identity questions
// (names, effects, dates, banlist) and nothing else.
package official

import (
	"context"
	"errors"
	"strconv"

	"github.com/sw33tLie/cardex/internal/utils"
	"github.com/sw33tLie/cardex/pkg/card"
	"github.com/sw33tLie/cardex/pkg/refdb"
	"github.com/sw33tLie/cardex/pkg/search"
	"github.com/sw33tLie/cardex/pkg/sources"
	"github.com/sw33tLie/cardex/pkg/storage"
)

type Connector struct {
	db *refdb.DB
}

func New(db *refdb.DB) *Connector {
	return &Connector{db: db}
}

func (c *Connector) Name() string { return "official" }

func (c *Connector) Official() bool { return true }

func (c *Connector) Facets() []card.Facet {
	return []card.Facet{card.FacetInfo, card.FacetDate}
}

func (c *Connector) Resolve(ctx context.Context, q *search.Query, pending []*search.Search) ([]*search.Search, []*search.Search, error) {
	for _, s := range pending {
		if s.IsRulingLookup() || q.RulingMode {
			continue
		}
		if err := c.resolveOne(ctx, s); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			utils.Log.Warnf("official: lookup %q failed: %v", s.Term, err)
		}
	}
	resolved, unresolved := sources.Partition(pending)
	return resolved, unresolved, nil
}

func (c *Connector) resolveOne(ctx context.Context, s *search.Search) error {
	var id int
	if search.IsIDTerm(s.Term) {
		var err error
		id, err = strconv.Atoi(s.Term)
		if err != nil {
			return storage.ErrNotFound
		}
	} else {
		var err error
		id, err = c.db.CardIDByName(ctx, s.Term)
		if err != nil {
			return err
		}
		// The dump's id is a better canonical key than a name.
		s.Term = strconv.Itoa(id)
	}

	loaded, err := c.db.CardByID(ctx, id)
	if err != nil {
		return err
	}
	if existing, ok := s.Data.(*card.Card); ok {
		existing.MergeFrom(loaded)
		return nil
	}
	if s.Data == nil {
		s.Data = loaded
	}
	return nil
}
