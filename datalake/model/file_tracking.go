package model

import "time"

// TransferStatus is the tracked outcome of one attachment transfer.
type TransferStatus string

const (
	TransferSuccess   TransferStatus = "SUCCESS"
	TransferFailed    TransferStatus = "FAILED"
	TransferException TransferStatus = "EXCEPTION"
)

// FileTrackingRecord is the one-per-attachment document of the file_tracking collection.
type FileTrackingRecord struct {
	SourceFileID      string         `bson:"source_file_id"`
	ContentDocumentID string         `bson:"content_document_id"`
	FileName          string         `bson:"file_name"`
	LinkedEntityID    string         `bson:"linked_entity_id"`
	Classification    string         `bson:"classification,omitempty"`
	DestinationFileID string         `bson:"destination_file_id"`
	Checksum          string         `bson:"checksum"`
	Status            TransferStatus `bson:"status"`
	Response          string         `bson:"dms_response"`
	ErrorMessage      string         `bson:"error_message"`
	CreatedAt         time.Time      `bson:"created_at"`
	UpdatedAt         time.Time      `bson:"updated_at"`
}
