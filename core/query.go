package core

// TimeBound keeps records strictly before (QueryBefore) or strictly after Time.
type TimeBound struct {
	Time        int64 `json:"time"`
	QueryBefore bool  `json:"query_before"`
}

// ActorFilter selects records by their causing actor. Kind ActorNone
// disables actor filtering.
type ActorFilter struct {
	Kind         ActorKind `json:"kind"`
	EntityTypeID string    `json:"entity_type_id,omitempty"`
	PlayerID     int64     `json:"player_id,omitempty"`
}

// Area is an inclusive axis-aligned box in one dimension.
type Area struct {
	Dimension string   `json:"dimension"`
	Min       Location `json:"min"`
	Max       Location `json:"max"`
}

// NewArea normalises two opposite corners into an Area.
func NewArea(dimension string, a, b Location) Area {
	lo := Location{X: min(a.X, b.X), Y: min(a.Y, b.Y), Z: min(a.Z, b.Z), Dimension: dimension}
	hi := Location{X: max(a.X, b.X), Y: max(a.Y, b.Y), Z: max(a.Z, b.Z), Dimension: dimension}
	return Area{Dimension: dimension, Min: lo, Max: hi}
}

// Contains reports whether loc lies inside the box.
func (a Area) Contains(loc Location) bool {
	return loc.Dimension == a.Dimension &&
		loc.X >= a.Min.X && loc.X <= a.Max.X &&
		loc.Y >= a.Min.Y && loc.Y <= a.Max.Y &&
		loc.Z >= a.Min.Z && loc.Z <= a.Max.Z
}

// Query is a conjunction of optional predicates. A nil field always passes.
type Query struct {
	Time        *TimeBound       `json:"time,omitempty"`
	Interaction *InteractionKind `json:"interaction,omitempty"`
	Actor       *ActorFilter     `json:"actor,omitempty"`
	Area        *Area            `json:"area,omitempty"`
}

// Before builds a query for records strictly older than t.
func Before(t int64) *Query {
	return &Query{Time: &TimeBound{Time: t, QueryBefore: true}}
}

// After builds a query for records strictly newer than t.
func After(t int64) *Query {
	return &Query{Time: &TimeBound{Time: t}}
}

// WithInteraction returns a copy of q that also requires kind.
func (q *Query) WithInteraction(kind InteractionKind) *Query {
	out := q.clone()
	out.Interaction = &kind
	return out
}

// WithActor returns a copy of q that also requires the actor filter.
func (q *Query) WithActor(f ActorFilter) *Query {
	out := q.clone()
	out.Actor = &f
	return out
}

// WithArea returns a copy of q that also requires the area.
func (q *Query) WithArea(a Area) *Query {
	out := q.clone()
	out.Area = &a
	return out
}

func (q *Query) clone() *Query {
	if q == nil {
		return &Query{}
	}
	c := *q
	return &c
}
