package engine

import (
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// newRecord builds a complete record from caller input: coerced values,
// defaults, auto fields and the initial stage. All field errors are
// collected into one ValidationError.
func (s *Service) newRecord(es *spec.EntitySpec, data map[string]any, user domain.User) (domain.Record, error) {
	now := s.nowUnix()
	var errs []domain.FieldError

	rec := make(domain.Record, len(es.Fields))
	for _, f := range es.Fields {
		raw, given := data[f.Key]
		switch {
		case f.IsSystem() || f.Auto != spec.AutoNone:
			if given && es.Strict {
				errs = append(errs, domain.FieldError{Field: f.Key, Message: "is maintained by the engine"})
			}
			rec[f.Key] = f.Default
		case given:
			v, err := f.Coerce(raw)
			if err != nil {
				errs = append(errs, domain.FieldError{Field: f.Key, Message: err.Error()})
				continue
			}
			rec[f.Key] = v
		default:
			rec[f.Key] = f.Default
		}

		switch f.Auto {
		case spec.AutoCreatedBy, spec.AutoUpdatedBy:
			rec[f.Key] = user.ID
		case spec.AutoNow, spec.AutoNowUpdate:
			rec[f.Key] = now
		}
	}
	errs = append(errs, unknownFields(es, data)...)
	errs = append(errs, missingRequired(es, rec)...)
	if len(errs) > 0 {
		return nil, domain.NewValidationErrors(errs)
	}

	rec = rec.Clone()
	rec[domain.FieldID] = s.newID()
	return rec, nil
}

// changeSet coerces update input. The stage field is returned separately;
// fields callers may not write are dropped, or rejected when the entity is
// strict.
func changeSet(es *spec.EntitySpec, data map[string]any) (domain.Record, *string, error) {
	var errs []domain.FieldError
	changes := domain.Record{}
	var stage *string

	for _, key := range slices.Sorted(maps.Keys(data)) {
		f, ok := es.Field(key)
		if !ok {
			continue
		}
		if key == es.StageField() {
			v, err := f.Coerce(data[key])
			if err != nil || v == nil {
				msg := "must be a declared stage"
				if err != nil {
					msg = err.Error()
				}
				errs = append(errs, domain.FieldError{Field: key, Message: msg})
				continue
			}
			st := v.(string)
			stage = &st
			continue
		}
		if !f.Writable() {
			if es.Strict {
				errs = append(errs, domain.FieldError{Field: key, Message: "is read-only"})
			}
			continue
		}
		v, err := f.Coerce(data[key])
		if err != nil {
			errs = append(errs, domain.FieldError{Field: key, Message: err.Error()})
			continue
		}
		changes[key] = v
	}
	errs = append(errs, unknownFields(es, data)...)
	if len(errs) > 0 {
		return nil, nil, domain.NewValidationErrors(errs)
	}
	return changes, stage, nil
}

func unknownFields(es *spec.EntitySpec, data map[string]any) []domain.FieldError {
	if !es.Strict {
		return nil
	}
	var errs []domain.FieldError
	for _, key := range slices.Sorted(maps.Keys(data)) {
		if !es.HasField(key) {
			errs = append(errs, domain.FieldError{Field: key, Message: "unknown field"})
		}
	}
	return errs
}

func missingRequired(es *spec.EntitySpec, rec domain.Record) []domain.FieldError {
	var errs []domain.FieldError
	for _, f := range es.Fields {
		if f.Required && !f.IsSystem() && f.IsEmpty(rec[f.Key]) {
			errs = append(errs, domain.FieldError{Field: f.Key, Message: "is required"})
		}
	}
	return errs
}

// queryFilter keeps the declared keys of filter and coerces their values.
// A list value matches any of its elements.
func queryFilter(es *spec.EntitySpec, filter map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(filter))
	var errs []domain.FieldError
	for _, key := range slices.Sorted(maps.Keys(filter)) {
		f, ok := es.Field(key)
		if !ok {
			continue
		}
		raw := filter[key]
		if list, ok := raw.([]any); ok {
			vals := make([]any, 0, len(list))
			for _, item := range list {
				v, err := f.Coerce(item)
				if err != nil {
					errs = append(errs, domain.FieldError{Field: key, Message: err.Error()})
					continue
				}
				vals = append(vals, v)
			}
			out[key] = vals
			continue
		}
		v, err := f.Coerce(raw)
		if err != nil {
			errs = append(errs, domain.FieldError{Field: key, Message: err.Error()})
			continue
		}
		out[key] = v
	}
	if len(errs) > 0 {
		return nil, domain.NewValidationErrors(errs)
	}
	return out, nil
}

// narrow adds the row-rule scope to filter. It reports false when the caller
// asked for rows the scope excludes.
func narrow(filter, scope map[string]any) (map[string]any, bool) {
	for k, want := range scope {
		cur, ok := filter[k]
		if !ok {
			filter[k] = want
			continue
		}
		if list, isList := cur.([]any); isList {
			if !slices.ContainsFunc(list, func(v any) bool { return reflect.DeepEqual(v, want) }) {
				return nil, false
			}
			filter[k] = want
			continue
		}
		if !reflect.DeepEqual(cur, want) {
			return nil, false
		}
	}
	return filter, true
}

func orderField(es *spec.EntitySpec, opts ListOptions) (string, error) {
	if opts.OrderBy == "" {
		return domain.FieldCreatedAt, nil
	}
	if !es.HasField(opts.OrderBy) {
		return "", domain.NewValidationError("order", fmt.Sprintf("unknown field %q", opts.OrderBy))
	}
	return opts.OrderBy, nil
}
