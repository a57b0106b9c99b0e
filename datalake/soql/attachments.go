package soql

import (
	"fmt"
	"time"
)

// DateWindow is an inclusive range of calendar days.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// ParseDateWindow parses two YYYY-MM-DD dates.
func ParseDateWindow(start, end string) (DateWindow, error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return DateWindow{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return DateWindow{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if e.Before(s) {
		return DateWindow{}, fmt.Errorf("end date %s is before start date %s", end, start)
	}

	return DateWindow{Start: s, End: e}, nil
}

// AttachmentQuery selects the latest file versions created inside the window
// and larger than minSize bytes.
func AttachmentQuery(window DateWindow, minSize int64) string {
	return fmt.Sprintf(
		"SELECT Id, Title, FileExtension, ContentSize, ContentDocumentId, CreatedDate, CreatedBy.Name, Owner.Name "+
			"FROM ContentVersion "+
			"WHERE IsLatest = true "+
			"AND CreatedDate >= %sT00:00:00Z "+
			"AND CreatedDate <= %sT23:59:59Z "+
			"AND ContentSize > %d "+
			"ORDER BY CreatedDate ASC",
		window.Start.Format(time.DateOnly),
		window.End.Format(time.DateOnly),
		minSize,
	)
}

// LinkQuery lists the records a file document is attached to.
func LinkQuery(contentDocumentID string) string {
	return fmt.Sprintf(
		"SELECT LinkedEntityId, LinkedEntity.Type FROM ContentDocumentLink WHERE ContentDocumentId = %s",
		Quote(contentDocumentID),
	)
}

// ParentQuery checks that a linked record belongs to the object and carries the given classification.
func ParentQuery(object, parentID, classificationField, classification string) string {
	return fmt.Sprintf(
		"SELECT Id FROM %s WHERE Id = %s AND %s = %s LIMIT 1",
		object, Quote(parentID), classificationField, Quote(classification),
	)
}

// FieldQuery reads one field of one record.
func FieldQuery(object, id, field string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE Id = %s LIMIT 1", field, object, Quote(id))
}

// DistinctQuery lists the distinct non-null values of a field.
func DistinctQuery(object, field string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s != null GROUP BY %s", field, object, field, field)
}
