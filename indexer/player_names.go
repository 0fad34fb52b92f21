// Package indexer keeps secondary lookups next to the event records in the
// shared property bag.
package indexer

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/INLOpen/areas/cache"
	"github.com/INLOpen/areas/kv"
)

const (
	// NameKeyPrefix maps a player id to the last seen name.
	NameKeyPrefix = "nameRecord."
	// IDKeyPrefix maps a name to the id that last used it.
	IDKeyPrefix = "nameRecordId."

	defaultCacheSize = 1024
)

var ErrEmptyName = errors.New("player name is empty")

type PlayerNameIndexOptions struct {
	// CacheSize bounds the id to name cache; zero picks a default.
	CacheSize int
	Logger    *slog.Logger
	// CacheHits and CacheMisses are optional expvar counters.
	CacheHits   *expvar.Int
	CacheMisses *expvar.Int
}

// PlayerNameIndex remembers player names so history of offline players can
// still be shown by name.
type PlayerNameIndex struct {
	store  kv.Store
	logger *slog.Logger
	names  cache.Interface[int64, string]

	// mu keeps the two keys of one player consistent with each other.
	mu sync.Mutex
}

func NewPlayerNameIndex(store kv.Store, opts PlayerNameIndexOptions) *PlayerNameIndex {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	hits, misses := opts.CacheHits, opts.CacheMisses
	if hits == nil {
		hits = new(expvar.Int)
	}
	if misses == nil {
		misses = new(expvar.Int)
	}
	names := cache.NewLRUCache[int64, string](size, nil)
	names.SetMetrics(hits, misses)
	return &PlayerNameIndex{
		store:  store,
		logger: logger.With("component", "PlayerNameIndex"),
		names:  names,
	}
}

func nameKey(id int64) string { return NameKeyPrefix + strconv.FormatInt(id, 10) }
func idKey(name string) string { return IDKeyPrefix + name }

// SavePlayer records that id currently goes by name. When the player was
// known under another name, the old reverse entry is dropped if it still
// points at this player.
func (p *PlayerNameIndex) SavePlayer(ctx context.Context, id int64, name string) error {
	if name == "" {
		return ErrEmptyName
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	previous, hadPrevious, err := p.store.Get(ctx, nameKey(id))
	if err != nil {
		return fmt.Errorf("save player %d: %w", id, err)
	}
	if hadPrevious && previous == name {
		p.names.Put(id, name)
		return nil
	}

	if err := p.store.Set(ctx, nameKey(id), name); err != nil {
		return fmt.Errorf("save player %d: %w", id, err)
	}
	if err := p.store.Set(ctx, idKey(name), strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("save player %d: %w", id, err)
	}
	p.names.Put(id, name)

	if hadPrevious {
		owner, ok, err := p.store.Get(ctx, idKey(previous))
		if err != nil {
			return fmt.Errorf("save player %d: %w", id, err)
		}
		if ok && owner == strconv.FormatInt(id, 10) {
			if err := p.store.Delete(ctx, idKey(previous)); err != nil {
				return fmt.Errorf("save player %d: %w", id, err)
			}
		}
		p.logger.InfoContext(ctx, "Player renamed.", "player_id", id, "from", previous, "to", name)
	}
	return nil
}

// PlayerName returns the last seen name of id.
func (p *PlayerNameIndex) PlayerName(ctx context.Context, id int64) (string, bool, error) {
	if name, ok := p.names.Get(id); ok {
		return name, true, nil
	}
	name, ok, err := p.store.Get(ctx, nameKey(id))
	if err != nil || !ok {
		return "", false, err
	}
	p.names.Put(id, name)
	return name, true, nil
}

// PlayerID returns the id that last used name. Names are not unique over
// time, so this is best effort.
func (p *PlayerNameIndex) PlayerID(ctx context.Context, name string) (int64, bool, error) {
	raw, ok, err := p.store.Get(ctx, idKey(name))
	if err != nil || !ok {
		return 0, false, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("player id for %q: %w", name, err)
	}
	return id, true, nil
}

// CacheHitRate is the fraction of PlayerName calls served from memory.
func (p *PlayerNameIndex) CacheHitRate() float64 {
	return p.names.GetHitRate()
}
