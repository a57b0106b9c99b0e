package synthetic_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmbridge/migrator/config"
	"crmbridge/migrator/datalake/model"
	"crmbridge/migrator/datalake/routing"
	"crmbridge/migrator/synthetic"
)

type mockBucketWriter struct {
	buckets []model.Bucket
	err     error
}

func (m *mockBucketWriter) UpsertBucket(ctx context.Context, bucket model.Bucket) (*model.UpsertResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.buckets = append(m.buckets, bucket)
	return &model.UpsertResult{Upserted: int64(len(bucket.Records))}, nil
}

var start = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestGenerateRecords(t *testing.T) {
	records := synthetic.GenerateRecords("ONotice_Details__c", "Notice_Id1__r.Vertical__c", 25, start, 7)

	require.Len(t, records, 25)
	seen := map[string]bool{}
	for i, rec := range records {
		id := rec.ID()
		assert.Len(t, id, 18)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true

		ts, ok, err := rec.Time("SystemModstamp")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, start.Add(time.Duration(i)*time.Second).Equal(ts), "record %d at %s", i, ts)

		_, hasParent := rec["Notice_Id1__r"].(map[string]any)
		assert.True(t, hasParent, "classification should be nested under the relationship")
	}
}

func TestGenerateRecords_Deterministic(t *testing.T) {
	a := synthetic.GenerateRecords("ONotice__c", "Vertical__c", 10, start, 42)
	b := synthetic.GenerateRecords("ONotice__c", "Vertical__c", 10, start, 42)
	assert.Equal(t, a, b)
}

func TestGenerateSyntheticData_WritesQueryPage(t *testing.T) {
	dir := t.TempDir()
	records := synthetic.GenerateRecords("OReceipt__c", "", 3, start, 1)

	path, err := synthetic.GenerateSyntheticData("OReceipt__c", records, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var page struct {
		TotalSize int              `json:"totalSize"`
		Done      bool             `json:"done"`
		Records   []map[string]any `json:"records"`
	}
	require.NoError(t, json.Unmarshal(data, &page))
	assert.Equal(t, 3, page.TotalSize)
	assert.True(t, page.Done)
	assert.Len(t, page.Records, 3)
	assert.Equal(t, "a0S000000000000001", page.Records[0]["Id"])
}

func TestPersistSyntheticData_RoutesIntoBuckets(t *testing.T) {
	records := synthetic.GenerateRecords("ONotice__c", "Vertical__c", 50, start, 3)
	writer := &mockBucketWriter{}
	router := routing.Router{ClassificationField: "Vertical__c", AllowList: []string{"SME", "RETAIL", "HOUSING"}}

	written, err := synthetic.PersistSyntheticData(context.Background(), writer, router, "ONotice__c", records)
	require.NoError(t, err)
	assert.Equal(t, int64(50), written)

	for _, b := range writer.buckets {
		assert.Contains(t, []string{"SME", "RETAIL", "HOUSING", routing.DefaultLabel}, b.Classification)
	}
}

func TestPersistSyntheticData_WriteError(t *testing.T) {
	records := synthetic.GenerateRecords("ONotice__c", "Vertical__c", 5, start, 3)
	writer := &mockBucketWriter{err: errors.New("no primary")}

	_, err := synthetic.PersistSyntheticData(context.Background(), writer, routing.Router{ClassificationField: "Vertical__c"}, "ONotice__c", records)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no primary")
}

func TestRunGenerateSyntheticData_File(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{SyntheticDataDir: dir, SyntheticDataRows: 4}

	err := synthetic.RunGenerateSyntheticData(context.Background(), []string{"-entity", "OChallan__c"}, cfg, config.DefaultEntities())
	require.NoError(t, err)
	assert.FileExists(t, dir+"/OChallan__c-synthetic-data.json")
}

func TestRunGenerateSyntheticData_UnknownEntity(t *testing.T) {
	cfg := &config.Config{SyntheticDataDir: t.TempDir(), SyntheticDataRows: 1}

	err := synthetic.RunGenerateSyntheticData(context.Background(), []string{"-entity", "Nope"}, cfg, config.DefaultEntities())
	assert.Error(t, err)
}
