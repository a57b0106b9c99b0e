// Package routing partitions a fetched batch into destination buckets by classification.
package routing

import (
	"errors"
	"fmt"
	"strings"

	"crmbridge/migrator/datalake/model"
)

// DefaultLabel is the bucket for blank or unrecognised classifications.
const DefaultLabel = "OTHER"

var (
	errMissingID             = errors.New("record has no Id")
	errClassificationNotText = errors.New("classification value is not text")
)

// MissingIDError is returned for records that cannot be keyed.
func MissingIDError(index int) error {
	return fmt.Errorf("%w, batch position %d", errMissingID, index)
}

// ClassificationNotTextError is returned when the classification field holds a non-string value.
func ClassificationNotTextError(field string, value any) error {
	return fmt.Errorf("%w, %s=%v", errClassificationNotText, field, value)
}

// Router assigns records to buckets.
type Router struct {
	// ClassificationField is a field name or dotted relationship path.
	ClassificationField string
	// AllowList holds the known categories. Empty means every non-blank value is accepted.
	AllowList []string
	// DefaultLabel overrides routing.DefaultLabel when set.
	DefaultLabel string
}

// Group strips transport metadata from each record and partitions the batch.
//
// Buckets are returned in order of first appearance. Records that cannot be
// keyed or classified are returned as GROUPING failures and left out.
func (r Router) Group(entity string, records []model.Record) ([]model.Bucket, []model.Failure) {
	allowed := r.allowed()

	var buckets []model.Bucket
	index := make(map[string]int)
	var failures []model.Failure

	for i, rec := range records {
		rec = rec.StripAttributes()
		if rec.ID() == "" {
			failures = append(failures, model.Failure{
				Stage:   model.StageGrouping,
				Err:     MissingIDError(i),
				Payload: rec,
			})
			continue
		}

		label, err := r.classify(rec, allowed)
		if err != nil {
			failures = append(failures, model.Failure{
				Stage:    model.StageGrouping,
				RecordID: rec.ID(),
				Err:      err,
				Payload:  rec,
			})
			continue
		}

		pos, ok := index[label]
		if !ok {
			pos = len(buckets)
			index[label] = pos
			buckets = append(buckets, model.Bucket{Entity: entity, Classification: label})
		}
		buckets[pos].Records = append(buckets[pos].Records, rec)
	}

	return buckets, failures
}

// Classify returns the normalized bucket label for a single record.
func (r Router) Classify(rec model.Record) (string, error) {
	return r.classify(rec, r.allowed())
}

func (r Router) classify(rec model.Record, allowed map[string]struct{}) (string, error) {
	raw, ok := rec.Lookup(r.ClassificationField)
	if !ok {
		return r.defaultLabel(), nil
	}

	value, isText := raw.(string)
	if !isText {
		return "", ClassificationNotTextError(r.ClassificationField, raw)
	}

	label := Normalize(value)
	if label == "" {
		return r.defaultLabel(), nil
	}
	if len(allowed) > 0 {
		if _, known := allowed[label]; !known {
			return r.defaultLabel(), nil
		}
	}

	return label, nil
}

// Normalize trims and upper-cases a classification value.
func Normalize(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

func (r Router) allowed() map[string]struct{} {
	allowed := make(map[string]struct{}, len(r.AllowList))
	for _, v := range r.AllowList {
		if n := Normalize(v); n != "" {
			allowed[n] = struct{}{}
		}
	}
	return allowed
}

func (r Router) defaultLabel() string {
	if r.DefaultLabel == "" {
		return DefaultLabel
	}
	return Normalize(r.DefaultLabel)
}
