package enrich

import (
	"errors"
	"fmt"
)

// ErrInvalidPlan matches every PlanError via errors.Is.
var ErrInvalidPlan = errors.New("invalid enrichment plan")

// PlanError reports a malformed plan, or a record value whose shape a
// reference cannot interpret as identifiers.
type PlanError struct {
	Field  string
	Reason string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("invalid enrichment plan: field %q: %s", e.Field, e.Reason)
}

// Is makes every PlanError match ErrInvalidPlan.
func (e *PlanError) Is(target error) bool {
	return target == ErrInvalidPlan
}

// Cardinality is the shape of a reference field.
type Cardinality int

const (
	// Single holds one identifier (or a list whose first element is used).
	Single Cardinality = iota + 1

	// List holds zero or more identifiers.
	List
)

func (c Cardinality) String() string {
	switch c {
	case Single:
		return "single"
	case List:
		return "list"
	default:
		return fmt.Sprintf("cardinality(%d)", int(c))
	}
}

// Reference declares how one field of a record is resolved.
//
// The resolved resource is first enriched with Plan (if any). Then Target
// extracts one leaf field from it, or Project keeps a subset of its fields
// as a sub-record. With neither set the whole resource is embedded.
type Reference struct {
	Field       string
	Cardinality Cardinality
	Target      string
	Project     []string
	Plan        Plan
}

// Plan is an ordered list of references applied to a record.
type Plan []Reference

// Validate checks the plan and every nested plan.
func (p Plan) Validate() error {
	seen := make(map[string]struct{}, len(p))
	for _, ref := range p {
		if ref.Field == "" {
			return &PlanError{Reason: "empty field name"}
		}
		if _, dup := seen[ref.Field]; dup {
			return &PlanError{Field: ref.Field, Reason: "duplicate reference"}
		}
		seen[ref.Field] = struct{}{}

		if ref.Cardinality != Single && ref.Cardinality != List {
			return &PlanError{Field: ref.Field, Reason: "unknown " + ref.Cardinality.String()}
		}
		if ref.Target != "" && ref.Project != nil {
			return &PlanError{Field: ref.Field, Reason: "target and project are exclusive"}
		}
		if err := ref.Plan.Validate(); err != nil {
			var planErr *PlanError
			if errors.As(err, &planErr) {
				return &PlanError{Field: ref.Field + "." + planErr.Field, Reason: planErr.Reason}
			}
			return err
		}
	}
	return nil
}

// singleID interprets v as a single identifier. present is false for nil,
// the empty string and the empty list.
func singleID(field string, v any) (id string, present bool, err error) {
	switch val := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return val, val != "", nil
	case []string:
		if len(val) == 0 {
			return "", false, nil
		}
		return val[0], val[0] != "", nil
	case []any:
		if len(val) == 0 {
			return "", false, nil
		}
		s, ok := val[0].(string)
		if !ok {
			return "", false, &PlanError{Field: field, Reason: fmt.Sprintf("list element is %T, want identifier", val[0])}
		}
		return s, s != "", nil
	default:
		return "", false, &PlanError{Field: field, Reason: fmt.Sprintf("value is %T, want identifier", v)}
	}
}

// listIDs interprets v as a list of identifiers. nil and "" are empty.
func listIDs(field string, v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if val == "" {
			return nil, nil
		}
		return nil, &PlanError{Field: field, Reason: "value is a single identifier, want list"}
	case []string:
		return val, nil
	case []any:
		ids := make([]string, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, &PlanError{Field: field, Reason: fmt.Sprintf("list element %d is %T, want identifier", i, item)}
			}
			ids[i] = s
		}
		return ids, nil
	default:
		return nil, &PlanError{Field: field, Reason: fmt.Sprintf("value is %T, want list", v)}
	}
}
