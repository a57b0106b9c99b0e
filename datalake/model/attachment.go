package model

import (
	"strings"
	"time"
)

// Attachment is a CRM file version eligible for transfer to the DMS.
type Attachment struct {
	ID                string
	ContentDocumentID string
	Title             string
	FileExtension     string
	ContentSize       int64
	CreatedDate       time.Time
	CreatedBy         string
	Owner             string
	LinkedEntityID    string
	LinkedEntityType  string
	// Classification is the linked parent's classification (vertical), when known.
	Classification string
}

// FileName returns the title with the extension appended unless it already ends with it.
func (a Attachment) FileName() string {
	if a.FileExtension == "" {
		return a.Title
	}
	if strings.HasSuffix(strings.ToLower(a.Title), "."+strings.ToLower(a.FileExtension)) {
		return a.Title
	}
	return a.Title + "." + a.FileExtension
}

// SaveResult is the CRM's per-record answer to a batch update.
type SaveResult struct {
	ID      string      `json:"id"`
	Success bool        `json:"success"`
	Errors  []SaveError `json:"errors"`
}

// SaveError is one validation or processing error the CRM reported for a record.
type SaveError struct {
	StatusCode string   `json:"statusCode"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields"`
}
