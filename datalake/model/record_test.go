package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmbridge/migrator/datalake/model"
)

func TestRecord_Lookup(t *testing.T) {
	rec := model.Record{
		"Id":          "a01",
		"Vertical__c": "SME",
		"ONotice__r": map[string]any{
			"Vertical__c": "HL",
			"Owner":       nil,
		},
	}

	v, ok := rec.Lookup("Vertical__c")
	assert.True(t, ok)
	assert.Equal(t, "SME", v)

	v, ok = rec.Lookup("ONotice__r.Vertical__c")
	assert.True(t, ok)
	assert.Equal(t, "HL", v)

	_, ok = rec.Lookup("ONotice__r.Owner")
	assert.False(t, ok, "null values are absent")

	_, ok = rec.Lookup("Vertical__c.Name")
	assert.False(t, ok)

	assert.Equal(t, "a01", rec.ID())
	assert.Empty(t, model.Record{"Id": 42}.ID())
}

func TestRecord_Time(t *testing.T) {
	rec := model.Record{
		"SystemModstamp": "2024-03-05T10:11:12.000+0000",
		"Other":          "yesterday",
	}

	ts, ok, err := rec.Time("SystemModstamp")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 11, 12, 0, time.UTC), ts)

	_, ok, err = rec.Time("Missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = rec.Time("Other")
	assert.Error(t, err)
}

func TestRecord_StripAttributes(t *testing.T) {
	rec := model.Record{
		"attributes": map[string]any{"type": "OReceipt__c"},
		"Id":         "a01",
		"Branch__r": map[string]any{
			"attributes":    map[string]any{"type": "Branch__c"},
			"BranchCode__c": "1208",
		},
		"Lines__r": map[string]any{
			"records": []any{
				map[string]any{"attributes": map[string]any{}, "Id": "l1"},
			},
		},
	}

	rec.StripAttributes()

	assert.NotContains(t, rec, "attributes")
	branch := rec["Branch__r"].(map[string]any)
	assert.NotContains(t, branch, "attributes")
	assert.Equal(t, "1208", branch["BranchCode__c"])
	line := rec["Lines__r"].(map[string]any)["records"].([]any)[0].(map[string]any)
	assert.NotContains(t, line, "attributes")
}

func TestBucketName(t *testing.T) {
	assert.Equal(t, "OReceipt__c_SME", model.BucketName("OReceipt__c", "SME"))
	assert.Equal(t, "OReceipt__c_V_F", model.BucketName("OReceipt__c", "V.F"))
}

func TestAttachment_FileName(t *testing.T) {
	assert.Equal(t, "notice.pdf", model.Attachment{Title: "notice", FileExtension: "pdf"}.FileName())
	assert.Equal(t, "notice.PDF", model.Attachment{Title: "notice.PDF", FileExtension: "pdf"}.FileName())
	assert.Equal(t, "notice", model.Attachment{Title: "notice"}.FileName())
}

func TestNewErrorRecord(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := model.NewErrorRecord("run-1", "OReceipt__c", model.Failure{Stage: model.StageQuery}, now)
	assert.Nil(t, rec.RecordID)
	assert.Equal(t, model.StageQuery, rec.Stage)

	rec = model.NewErrorRecord("run-1", "OReceipt__c", model.Failure{Stage: model.StageUpsert, RecordID: "a01"}, now)
	require.NotNil(t, rec.RecordID)
	assert.Equal(t, "a01", *rec.RecordID)
}
