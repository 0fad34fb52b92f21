// Package kv provides the flat string-to-string property bag that event
// records live in, with memory, file and sqlite backends.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrBudgetExceeded is returned by writes that would push TotalBytes past
	// the configured budget. The write is not applied.
	ErrBudgetExceeded = errors.New("property store byte budget exceeded")
	// ErrClosed is returned by every operation on a closed store.
	ErrClosed = errors.New("property store is closed")
)

// Store is an unordered property bag. It offers no transactions and no
// multi-key atomicity.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes key unconditionally, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete makes key absent. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists every present key in no particular order.
	Keys(ctx context.Context) ([]string, error)
	// TotalBytes is the sum of len(key)+len(value) over all present pairs.
	TotalBytes(ctx context.Context) (int64, error)
	Close() error
}

// PrefixLister is implemented by stores that can list a key range without
// materialising every key.
type PrefixLister interface {
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

// Budgeted is implemented by stores with a byte budget.
type Budgeted interface {
	// MaxBytes is the budget; zero means unlimited.
	MaxBytes() int64
}

// KeysWithPrefix lists the keys of s starting with prefix, using the
// backend's range scan when it has one.
func KeysWithPrefix(ctx context.Context, s Store, prefix string) ([]string, error) {
	if pl, ok := s.(PrefixLister); ok {
		return pl.KeysWithPrefix(ctx, prefix)
	}
	all, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// BudgetUsage reports used/max for stores with a budget. ok is false when
// the store is unbounded.
func BudgetUsage(ctx context.Context, s Store) (used, limit int64, ok bool, err error) {
	b, isBudgeted := s.(Budgeted)
	if !isBudgeted || b.MaxBytes() <= 0 {
		return 0, 0, false, nil
	}
	used, err = s.TotalBytes(ctx)
	if err != nil {
		return 0, 0, false, err
	}
	return used, b.MaxBytes(), true, nil
}

// Pair is one stored key and value.
type Pair struct {
	Key   string
	Value string
}

// Dump returns every pair of s sorted by key.
func Dump(ctx context.Context, s Store) ([]Pair, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	pairs := make([]Pair, 0, len(keys))
	for _, k := range keys {
		v, ok, err := s.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("get %q: %w", k, err)
		}
		if ok {
			pairs = append(pairs, Pair{Key: k, Value: v})
		}
	}
	return pairs, nil
}

func pairSize(key, value string) int64 {
	return int64(len(key) + len(value))
}

func budgetError(limit, wanted int64) error {
	return fmt.Errorf("%w: %d of %d bytes", ErrBudgetExceeded, wanted, limit)
}
