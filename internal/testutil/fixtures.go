// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"sync"

	"github.com/INLOpen/areas/core"
	"github.com/INLOpen/areas/kv"
)

const Overworld = "minecraft:overworld"

// Loc is a shorthand for an overworld location.
func Loc(x, y, z int) core.Location {
	return core.Location{X: x, Y: y, Z: z, Dimension: Overworld}
}

// Block is a solid block snapshot of typeID at loc.
func Block(loc core.Location, typeID string) core.BlockSnapshot {
	return core.BlockSnapshot{Location: loc, TypeID: typeID}
}

// Air is an empty block snapshot at loc.
func Air(loc core.Location) core.BlockSnapshot {
	return core.BlockSnapshot{Location: loc, TypeID: "minecraft:air", IsAir: true}
}

// FaultyStore wraps a store and fails selected operations on demand.
type FaultyStore struct {
	kv.Store

	mu        sync.Mutex
	getErr    error
	setErr    error
	deleteErr error
	keysErr   error
}

func NewFaultyStore(inner kv.Store) *FaultyStore {
	return &FaultyStore{Store: inner}
}

func (f *FaultyStore) FailGet(err error)    { f.mu.Lock(); f.getErr = err; f.mu.Unlock() }
func (f *FaultyStore) FailSet(err error)    { f.mu.Lock(); f.setErr = err; f.mu.Unlock() }
func (f *FaultyStore) FailDelete(err error) { f.mu.Lock(); f.deleteErr = err; f.mu.Unlock() }
func (f *FaultyStore) FailKeys(err error)   { f.mu.Lock(); f.keysErr = err; f.mu.Unlock() }

func (f *FaultyStore) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	err := f.getErr
	f.mu.Unlock()
	if err != nil {
		return "", false, err
	}
	return f.Store.Get(ctx, key)
}

func (f *FaultyStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	err := f.setErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Set(ctx, key, value)
}

func (f *FaultyStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	err := f.deleteErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Delete(ctx, key)
}

// Keys also serves prefix listing, since FaultyStore hides the inner
// store's PrefixLister.
func (f *FaultyStore) Keys(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	err := f.keysErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.Keys(ctx)
}
