package synthetic

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crmbridge/migrator/datalake/model"
	"crmbridge/migrator/datalake/repository"
	"crmbridge/migrator/datalake/routing"
)

// modstampLayout matches the CRM REST encoding of SystemModstamp.
const modstampLayout = "2006-01-02T15:04:05.000-0700"

// verticals mixes allow-listed, badly cased, blank and missing classifications.
var verticals = []any{"SME", "sme", " Retail ", "HOUSING", "", nil, "unknown"}

// queryPage is the CRM query response envelope the generated file mimics.
type queryPage struct {
	TotalSize int            `json:"totalSize"`
	Done      bool           `json:"done"`
	Records   []model.Record `json:"records"`
}

// GenerateRecords builds rows CRM-shaped records for entity. Classification
// values land under field, nested for dotted paths. Modification times start
// at start and grow by one second per record.
func GenerateRecords(entity, field string, rows int, start time.Time, seed int64) []model.Record {
	rnd := rand.New(rand.NewSource(seed))
	records := make([]model.Record, 0, rows)

	for i := 0; i < rows; i++ {
		id := fmt.Sprintf("a0S%015d", i+1)
		rec := model.Record{
			"attributes": map[string]any{
				"type": entity,
				"url":  fmt.Sprintf("/services/data/v58.0/sobjects/%s/%s", entity, id),
			},
			"Id":             id,
			"Name":           fmt.Sprintf("N-%06d", i+1),
			"Amount__c":      float64(rnd.Intn(100000)) / 100,
			"SystemModstamp": start.Add(time.Duration(i) * time.Second).UTC().Format(modstampLayout),
		}
		if field != "" {
			setPath(rec, field, verticals[rnd.Intn(len(verticals))])
		}
		records = append(records, rec)
	}

	return records
}

// setPath writes value at a dotted path, creating nested relationship maps.
func setPath(rec model.Record, path string, value any) {
	parts := strings.Split(path, ".")
	cur := map[string]any(rec)
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// GenerateSyntheticData writes the records to dir as a query response page and returns the file path.
func GenerateSyntheticData(entity string, records []model.Record, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	filePath := filepath.Join(dir, fmt.Sprintf("%s-synthetic-data.json", entity))
	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file '%s': %w", filePath, err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err = enc.Encode(queryPage{TotalSize: len(records), Done: true, Records: records}); err != nil {
		return "", fmt.Errorf("failed to write records: %w", err)
	}

	return filePath, nil
}

// PersistSyntheticData routes the records into buckets and upserts each one.
func PersistSyntheticData(
	ctx context.Context,
	writer repository.BucketWriter,
	router routing.Router,
	entity string,
	records []model.Record,
) (int64, error) {
	buckets, failures := router.Group(entity, records)
	if len(failures) > 0 {
		return 0, fmt.Errorf("grouping synthetic records failed: %w", failures[0].Err)
	}

	var written int64
	for _, bucket := range buckets {
		res, err := writer.UpsertBucket(ctx, bucket)
		if err != nil {
			return written, fmt.Errorf("failed to write bucket %s: %w", bucket.Name(), err)
		}
		written += res.Count()
	}

	return written, nil
}
