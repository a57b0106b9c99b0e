package soql_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmbridge/migrator/datalake/soql"
)

func TestIncremental(t *testing.T) {
	watermark := time.Date(2024, 3, 5, 10, 11, 12, 500_000_000, time.UTC)

	tests := []struct {
		name      string
		base      string
		watermark *time.Time
		want      string
	}{
		{
			name: "first full sync orders by creation time without a limit",
			base: "SELECT Id, Name FROM OReceipt__c",
			want: "SELECT Id, Name FROM OReceipt__c ORDER BY CreatedDate ASC",
		},
		{
			name:      "watermark adds a WHERE",
			base:      "SELECT Id, Name\n        FROM OReceipt__c\n",
			watermark: &watermark,
			want:      "SELECT Id, Name FROM OReceipt__c WHERE SystemModstamp > 2024-03-05T10:11:12Z ORDER BY SystemModstamp ASC LIMIT 50000",
		},
		{
			name:      "existing filter is joined with AND",
			base:      "SELECT Id FROM ONotice__c WHERE Migrated_to_Mongo__c = false",
			watermark: &watermark,
			want:      "SELECT Id FROM ONotice__c WHERE Migrated_to_Mongo__c = false AND SystemModstamp > 2024-03-05T10:11:12Z ORDER BY SystemModstamp ASC LIMIT 50000",
		},
		{
			name:      "lower case where is recognised",
			base:      "select Id from ONotice__c where Name != null",
			watermark: &watermark,
			want:      "select Id from ONotice__c where Name != null AND SystemModstamp > 2024-03-05T10:11:12Z ORDER BY SystemModstamp ASC LIMIT 50000",
		},
		{
			name:      "WHERE inside a sub-query does not count",
			base:      "SELECT Id, (SELECT Id FROM Lines__r WHERE Amount__c > 0) FROM OReceipt__c",
			watermark: &watermark,
			want:      "SELECT Id, (SELECT Id FROM Lines__r WHERE Amount__c > 0) FROM OReceipt__c WHERE SystemModstamp > 2024-03-05T10:11:12Z ORDER BY SystemModstamp ASC LIMIT 50000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, soql.NewBuilder().Incremental(tt.base, tt.watermark))
		})
	}
}

func TestIncremental_CustomFieldsAndNoLimit(t *testing.T) {
	b := soql.Builder{ModifiedField: "LastModifiedDate", CreatedField: "CreatedDate"}
	watermark := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got := b.Incremental("SELECT Id FROM OChallan__c", &watermark)
	assert.Equal(t, "SELECT Id FROM OChallan__c WHERE LastModifiedDate > 2024-01-01T00:00:00Z ORDER BY LastModifiedDate ASC", got)
}

func TestIncremental_FullSyncIgnoresLimit(t *testing.T) {
	b := soql.Builder{Limit: 2}

	got := b.Incremental("SELECT Id FROM ONotice__c WHERE Migrated_to_Mongo__c = false", nil)
	assert.Equal(t, "SELECT Id FROM ONotice__c WHERE Migrated_to_Mongo__c = false ORDER BY CreatedDate ASC", got)
	assert.NotContains(t, got, "LIMIT")
}

func TestLiteral_ConvertsToUTC(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	assert.Equal(t, "2024-03-05T04:41:12Z", soql.Literal(time.Date(2024, 3, 5, 10, 11, 12, 0, ist)))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `'O\'Brien'`, soql.Quote("O'Brien"))
}

func TestAttachmentQuery(t *testing.T) {
	window, err := soql.ParseDateWindow("2024-01-01", "2024-01-31")
	require.NoError(t, err)

	q := soql.AttachmentQuery(window, 6*1024*1024)
	assert.Contains(t, q, "FROM ContentVersion")
	assert.Contains(t, q, "IsLatest = true")
	assert.Contains(t, q, "CreatedDate >= 2024-01-01T00:00:00Z")
	assert.Contains(t, q, "CreatedDate <= 2024-01-31T23:59:59Z")
	assert.Contains(t, q, "ContentSize > 6291456")
}

func TestParseDateWindow_Invalid(t *testing.T) {
	_, err := soql.ParseDateWindow("2024-02-01", "2024-01-01")
	assert.Error(t, err)

	_, err = soql.ParseDateWindow("01/02/2024", "2024-01-01")
	assert.Error(t, err)
}

func TestParentQuery(t *testing.T) {
	assert.Equal(t,
		"SELECT Id FROM ONotice__c WHERE Id = 'a0B1' AND Vertical__c = 'SME' LIMIT 1",
		soql.ParentQuery("ONotice__c", "a0B1", "Vertical__c", "SME"))
}

func TestDistinctQuery(t *testing.T) {
	assert.Equal(t,
		"SELECT Vertical__c FROM OAgreement__c WHERE Vertical__c != null GROUP BY Vertical__c",
		soql.DistinctQuery("OAgreement__c", "Vertical__c"))
}

func TestFieldQuery(t *testing.T) {
	assert.Equal(t,
		"SELECT Vertical__c FROM OReceipt__c WHERE Id = 'a0R1' LIMIT 1",
		soql.FieldQuery("OReceipt__c", "a0R1", "Vertical__c"))
}
