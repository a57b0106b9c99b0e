package storage

import (
	"context"

	"crmbridge/migrator/appcontext"
	"crmbridge/migrator/datalake/model"
)

const errorCollection = "_sync_errors"

// MongoErrorLog appends failure records to the _sync_errors collection.
type MongoErrorLog struct {
	provider CollectionProvider
}

// NewMongoErrorLog creates the error sink.
func NewMongoErrorLog(provider CollectionProvider) *MongoErrorLog {
	return &MongoErrorLog{provider: provider}
}

// Log inserts the record. A failed insert is reported on the logger and swallowed.
func (l *MongoErrorLog) Log(ctx context.Context, rec model.ErrorRecord) {
	logger := appcontext.LoggerFromContext(ctx)
	recordID := ""
	if rec.RecordID != nil {
		recordID = *rec.RecordID
	}

	if _, err := l.provider.Collection(errorCollection).InsertOne(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "Failed to write error log to MongoDB",
			"entity", rec.SourceEntity,
			"record_id", recordID,
			"stage", rec.Stage,
			"original_error", rec.ErrorMessage,
			"error", err,
		)
		return
	}

	logger.WarnContext(ctx, "Logged sync error",
		"entity", rec.SourceEntity,
		"record_id", recordID,
		"stage", rec.Stage,
	)
}
