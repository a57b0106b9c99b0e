package model

import (
	"fmt"
	"strings"
)

// Bucket is a destination grouping keyed by entity and classification value.
type Bucket struct {
	Entity         string
	Classification string
	Records        []Record
}

// Name returns the destination collection name for the bucket.
func (b Bucket) Name() string {
	return BucketName(b.Entity, b.Classification)
}

// IDs returns the source ids of the bucket's records in insertion order.
func (b Bucket) IDs() []string {
	ids := make([]string, 0, len(b.Records))
	for _, rec := range b.Records {
		ids = append(ids, rec.ID())
	}
	return ids
}

// BucketName formats {entity}_{classification}. Dots are not allowed in collection names.
func BucketName(entity, classification string) string {
	return strings.ReplaceAll(fmt.Sprintf("%s_%s", entity, classification), ".", "_")
}

// UpsertResult summarises one bucket write.
type UpsertResult struct {
	Upserted int64
	Modified int64
	Matched  int64
	// Failed holds the records the store rejected individually.
	Failed []Failure
}

// Count is the number of inserted plus modified documents.
func (r UpsertResult) Count() int64 {
	return r.Upserted + r.Modified
}
