package enrich

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/api-enricher/pkg/resource"
)

// Resolver applies plans to records through a Cache.
type Resolver struct {
	cache  *Cache
	logger zerolog.Logger
}

// NewResolver creates a resolver backed by cache.
func NewResolver(cache *Cache, logger zerolog.Logger) *Resolver {
	return &Resolver{cache: cache, logger: logger}
}

// Apply returns a copy of rec with every reference of plan resolved. rec is
// not modified. Unresolvable identifiers never fail the call: a Single
// reference becomes nil and a List reference drops the entry. Only
// malformed values return an error (*PlanError).
func (r *Resolver) Apply(ctx context.Context, rec resource.Resource, plan Plan) (resource.Resource, error) {
	out := rec.Clone()
	if out == nil {
		out = resource.Resource{}
	}

	for _, ref := range plan {
		var (
			value any
			err   error
		)
		switch ref.Cardinality {
		case Single:
			value, err = r.single(ctx, ref, rec[ref.Field])
		case List:
			value, err = r.list(ctx, ref, rec[ref.Field])
		default:
			err = &PlanError{Field: ref.Field, Reason: "unknown " + ref.Cardinality.String()}
		}
		if err != nil {
			return nil, err
		}
		out[ref.Field] = value
	}

	return out, nil
}

func (r *Resolver) single(ctx context.Context, ref Reference, v any) (any, error) {
	id, present, err := singleID(ref.Field, v)
	if err != nil || !present {
		return nil, err
	}

	value, ok, err := r.resolveOne(ctx, ref, id)
	if err != nil || !ok {
		return nil, err
	}
	return value, nil
}

func (r *Resolver) list(ctx context.Context, ref Reference, v any) (any, error) {
	ids, err := listIDs(ref.Field, v)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(ids))
	found := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		if id == "" {
			continue
		}
		g.Go(func() error {
			value, ok, err := r.resolveOne(gctx, ref, id)
			if err != nil {
				return err
			}
			values[i], found[i] = value, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]any, 0, len(ids))
	for i, value := range values {
		if found[i] {
			out = append(out, value)
		} else if ids[i] != "" {
			r.logger.Debug().Str("field", ref.Field).Str("id", ids[i]).Msg("Dropped unresolved list entry")
		}
	}
	return out, nil
}

// resolveOne resolves id and shapes it according to ref. ok is false when
// the identifier is Absent or the target field is missing.
func (r *Resolver) resolveOne(ctx context.Context, ref Reference, id string) (any, bool, error) {
	res, ok := r.cache.Resolve(ctx, id)
	if !ok {
		return nil, false, nil
	}

	if len(ref.Plan) > 0 {
		nested, err := r.Apply(ctx, res, ref.Plan)
		if err != nil {
			return nil, false, err
		}
		res = nested
	}

	switch {
	case ref.Target != "":
		if !res.Has(ref.Target) {
			return nil, false, nil
		}
		return res[ref.Target], true, nil
	case ref.Project != nil:
		return res.Pick(ref.Project), true, nil
	default:
		return res.Clone(), true, nil
	}
}
