// Package filter evaluates queries against decoded event keys and records.
// It is pure: no I/O, no state.
package filter

import (
	"sort"

	"github.com/INLOpen/areas/core"
)

// Filter is a predicate over decoded event keys.
type Filter interface {
	// Contains reports whether the key may belong to the result set. A false
	// return value means the record is definitely excluded and its value need
	// not be read.
	Contains(k core.KeyRecord) bool
}

// KeyFilter adapts a location restriction and a query into a Filter.
type KeyFilter struct {
	Location *core.Location
	Query    *core.Query
}

func (f KeyFilter) Contains(k core.KeyRecord) bool {
	return MatchLocation(k, f.Location) && MatchKey(k, f.Query)
}

// MatchLocation keeps keys for exactly loc. A nil loc matches everything.
func MatchLocation(k core.KeyRecord, loc *core.Location) bool {
	return loc == nil || k.Location == *loc
}

// MatchKey applies the key-level predicates of q: the time bound and the area.
func MatchKey(k core.KeyRecord, q *core.Query) bool {
	if q == nil {
		return true
	}
	if q.Time != nil && !matchTime(k.Time, *q.Time) {
		return false
	}
	if q.Area != nil && !q.Area.Contains(k.Location) {
		return false
	}
	return true
}

// MatchEvent applies the record-level predicates of q: interaction and actor.
func MatchEvent(e core.Event, q *core.Query) bool {
	if q == nil {
		return true
	}
	if q.Interaction != nil && e.Interaction != *q.Interaction {
		return false
	}
	if q.Actor != nil && !matchActor(e.Actor, *q.Actor) {
		return false
	}
	return true
}

// Match is MatchKey and MatchEvent together for an already decoded event.
func Match(e core.Event, q *core.Query) bool {
	return MatchKey(core.KeyRecord{ID: e.Key, Time: e.Time, Location: e.Location}, q) && MatchEvent(e, q)
}

// SortByTime orders events ascending by time. Ties keep encounter order.
func SortByTime(events []core.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time < events[j].Time
	})
}

// equality is excluded in both directions
func matchTime(t int64, bound core.TimeBound) bool {
	if bound.QueryBefore {
		return t < bound.Time
	}
	return t > bound.Time
}

func matchActor(a core.Actor, f core.ActorFilter) bool {
	switch f.Kind {
	case core.ActorNonPlayerEntity:
		return a.Kind == core.ActorNonPlayerEntity && a.EntityTypeID == f.EntityTypeID
	case core.ActorPlayer:
		return a.Kind == core.ActorPlayer && a.PlayerID == f.PlayerID
	default:
		return true
	}
}
