package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// IDField is the stable source identifier every record carries.
	IDField = "Id"
	// AttributesField is the transport metadata the CRM attaches to every record and relationship.
	AttributesField = "attributes"
)

// crmTimeLayouts are the datetime encodings the CRM REST API emits.
var crmTimeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05.000Z07:00",
	time.RFC3339Nano,
	"2006-01-02",
}

var errFieldNotTime = errors.New("field is not a CRM datetime")

// FieldNotTimeError wraps errFieldNotTime with the offending field.
func FieldNotTimeError(field string, value any) error {
	return fmt.Errorf("%w, %s=%v", errFieldNotTime, field, value)
}

// Record is a single CRM record as fetched from the source.
//
// The required subset is the Id field, the entity's classification field and its
// modification timestamp field; all other keys are carried through untouched.
type Record map[string]any

// ID returns the record's source identifier, or an empty string if it has none.
func (r Record) ID() string {
	id, _ := r[IDField].(string)
	return id
}

// Lookup resolves a dotted relationship path such as "Agreement__r.Vertical__c".
func (r Record) Lookup(path string) (any, bool) {
	var current any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, current != nil
}

// Time parses the named field as a CRM datetime. The boolean is false when the field is absent or null.
func (r Record) Time(field string) (time.Time, bool, error) {
	raw, ok := r.Lookup(field)
	if !ok {
		return time.Time{}, false, nil
	}

	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), true, nil
	case string:
		t, err := ParseCRMTime(v)
		if err != nil {
			return time.Time{}, false, FieldNotTimeError(field, raw)
		}
		return t, true, nil
	default:
		return time.Time{}, false, FieldNotTimeError(field, raw)
	}
}

// StripAttributes removes CRM transport metadata from the record and every nested relationship.
func (r Record) StripAttributes() Record {
	stripAttributes(map[string]any(r))
	return r
}

func stripAttributes(m map[string]any) {
	delete(m, AttributesField)
	for _, v := range m {
		stripValue(v)
	}
}

func stripValue(v any) {
	if nested, ok := asMap(v); ok {
		stripAttributes(nested)
		return
	}
	if items, ok := v.([]any); ok {
		for _, item := range items {
			stripValue(item)
		}
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	default:
		return nil, false
	}
}

// ParseCRMTime parses a CRM datetime literal into UTC.
func ParseCRMTime(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range crmTimeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("parse CRM datetime %q: %w", value, lastErr)
}
