package bff

import (
	"context"
	"encoding/json"
	"time"

	"github.com/saastenant/orchestrator/internal/cache"
)

// indexTTL bounds how long a reverse-index entry survives without
// being refreshed, so a leaked entity id cannot accumulate fingerprints
// forever. It is refreshed on every Track call.
const indexTTL = 24 * time.Hour

// Index tracks which cached fingerprints depend on a given entity, so
// a mutation can invalidate every aggregate response that embedded
// that entity without needing to know their fingerprints in advance
// (spec §4.E "invalidation ... keyed by the entity ids embedded in the
// response"). Invalidation is best-effort and bounded: it deletes
// whatever fingerprints are currently indexed and never blocks a
// mutation on cache consistency.
type Index struct {
	store cache.Store
	cache *Cache
}

func NewIndex(store cache.Store, c *Cache) *Index {
	return &Index{store: store, cache: c}
}

func indexKey(entityID string) string { return "bffidx:" + entityID }

// Track records that fingerprint's response embeds entityID, so a
// later InvalidateEntity(entityID) also evicts fingerprint.
func (idx *Index) Track(ctx context.Context, entityID, fingerprint string) error {
	fps, err := idx.readFingerprints(ctx, entityID)
	if err != nil {
		return err
	}
	for _, existing := range fps {
		if existing == fingerprint {
			return idx.store.Set(ctx, indexKey(entityID), mustMarshal(fps), indexTTL)
		}
	}
	fps = append(fps, fingerprint)
	return idx.store.Set(ctx, indexKey(entityID), mustMarshal(fps), indexTTL)
}

// InvalidateEntity evicts every cache entry indexed under entityID.
// Individual delete failures are collected but do not stop the sweep,
// since a best-effort invalidation that gives up on the first miss
// defeats its own purpose.
func (idx *Index) InvalidateEntity(ctx context.Context, entityID string) error {
	fps, err := idx.readFingerprints(ctx, entityID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, fp := range fps {
		if ierr := idx.cache.Invalidate(ctx, fp); ierr != nil && firstErr == nil {
			firstErr = ierr
		}
	}
	if delErr := idx.store.Delete(ctx, indexKey(entityID)); delErr != nil && firstErr == nil {
		firstErr = delErr
	}
	return firstErr
}

func (idx *Index) readFingerprints(ctx context.Context, entityID string) ([]string, error) {
	raw, err := idx.store.Get(ctx, indexKey(entityID))
	if err == cache.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var fps []string
	if uerr := json.Unmarshal(raw, &fps); uerr != nil {
		return nil, nil
	}
	return fps, nil
}

func mustMarshal(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}
