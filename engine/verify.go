package engine

import (
	"context"
	"sort"

	"github.com/INLOpen/areas/core"
	"github.com/INLOpen/areas/kv"
)

// VerifyIssue is one record that failed to decode.
type VerifyIssue struct {
	Key   string
	Value string
	Err   error
}

// VerifyReport is the result of a full scrub.
type VerifyReport struct {
	Scanned int
	Valid   int
	Issues  []VerifyIssue
	// Unbaselined lists locations with records but no time-0 record.
	Unbaselined []core.Location
}

// OK reports whether the scrub found nothing wrong.
func (r VerifyReport) OK() bool {
	return len(r.Issues) == 0 && len(r.Unbaselined) == 0
}

// Verify decodes every record and collects failures instead of stopping at
// the first one. It raises no corruption alerts; callers decide what to do
// with the report. Store errors still abort.
func (e *StorageEngine) Verify(ctx context.Context) (rep VerifyReport, err error) {
	const op = "Verify"
	ctx, span := e.startOp(ctx, op)
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	keys, err := kv.KeysWithPrefix(ctx, e.store, core.EventKeyPrefix)
	if err != nil {
		return VerifyReport{}, storeError(op, "list keys", err)
	}
	sort.Strings(keys)

	baselined := make(map[core.Location]bool)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return VerifyReport{}, err
		}
		rep.Scanned++
		value, ok, err := e.store.Get(ctx, k)
		if err != nil {
			return VerifyReport{}, storeError(op, "get", err)
		}
		if !ok {
			continue
		}
		rec, err := core.ParseKey(k)
		if err != nil {
			rep.Issues = append(rep.Issues, VerifyIssue{Key: k, Value: value, Err: err})
			continue
		}
		fields, err := core.ParseValue(value)
		if err != nil {
			rep.Issues = append(rep.Issues, VerifyIssue{Key: k, Value: value, Err: err})
			continue
		}
		rep.Valid++

		isBaseline := rec.Time == core.InitializationTime && fields.Interaction == core.InteractionInitialised
		baselined[rec.Location] = baselined[rec.Location] || isBaseline
	}

	for loc, ok := range baselined {
		if !ok {
			rep.Unbaselined = append(rep.Unbaselined, loc)
		}
	}
	sort.Slice(rep.Unbaselined, func(i, j int) bool {
		return rep.Unbaselined[i].String() < rep.Unbaselined[j].String()
	})

	if !rep.OK() {
		e.logger.WarnContext(ctx, "Verify found problems.", "issues", len(rep.Issues), "unbaselined", len(rep.Unbaselined))
	}
	return rep, nil
}
