// Package resource defines the generic record shape shared by the fetch,
// pagination and enrichment layers.
package resource

// Resource is a decoded JSON object: field name to string, number, nil,
// nested object or list value.
type Resource map[string]any

// Clone returns a shallow copy. Nested values are shared, so callers replace
// fields rather than mutating nested lists or maps.
func (r Resource) Clone() Resource {
	if r == nil {
		return nil
	}
	out := make(Resource, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the field as a string, or "" when missing or not a string.
func (r Resource) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Has reports whether the field is present (even if nil).
func (r Resource) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// Pick returns a new resource holding only the given fields. Missing fields
// are kept with a nil value. A nil field list keeps everything.
func (r Resource) Pick(fields []string) Resource {
	if fields == nil {
		return r.Clone()
	}
	out := make(Resource, len(fields))
	for _, f := range fields {
		out[f] = r[f]
	}
	return out
}

// Projection selects the fields of interest from a raw resource. Rename maps
// a source field to its output name (e.g. "vehicle_class" -> "class").
type Projection struct {
	Fields []string
	Rename map[string]string
}

// IsZero reports whether the projection keeps the resource unchanged.
func (p Projection) IsZero() bool {
	return p.Fields == nil && len(p.Rename) == 0
}

// Apply projects r. The source resource is not modified.
func (p Projection) Apply(r Resource) Resource {
	out := r.Pick(p.Fields)
	for from, to := range p.Rename {
		if from == to {
			continue
		}
		if out.Has(from) {
			out[to] = out[from]
			delete(out, from)
		}
	}
	return out
}
