// Package soql builds the incremental and attachment queries sent to the CRM.
package soql

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultLimit bounds an incremental query; the client pages through it.
	DefaultLimit         = 50000
	DefaultModifiedField = "SystemModstamp"
	DefaultCreatedField  = "CreatedDate"

	literalLayout = "2006-01-02T15:04:05Z"
)

// whereClause matches a WHERE keyword outside of a parenthesised sub-query.
var whereClause = regexp.MustCompile(`(?i)\bwhere\b`)

// Builder turns a base field selection into a watermark-bounded query.
type Builder struct {
	ModifiedField string
	CreatedField  string
	Limit         int
}

// NewBuilder returns a Builder with the CRM's standard audit fields and limit.
func NewBuilder() Builder {
	return Builder{
		ModifiedField: DefaultModifiedField,
		CreatedField:  DefaultCreatedField,
		Limit:         DefaultLimit,
	}
}

// Incremental builds the query for one entity.
//
// With a watermark the query only selects rows modified after it, ordered by the
// modification field so the newest timestamp seen only grows. A limited batch
// then ends exactly at the watermark the run stores.
//
// Without one it is a full sync ordered by creation time and never limited: the
// checkpoint is the newest modification time of the batch, so a creation-ordered
// batch cut short would skip older-modified rows past the cut for good.
func (b Builder) Incremental(base string, watermark *time.Time) string {
	query := normalize(base)

	if watermark == nil {
		return fmt.Sprintf("%s ORDER BY %s ASC", query, b.createdField())
	}

	query = AppendCondition(query, fmt.Sprintf("%s > %s", b.modifiedField(), Literal(*watermark)))
	query = fmt.Sprintf("%s ORDER BY %s ASC", query, b.modifiedField())
	if b.Limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, b.Limit)
	}

	return query
}

// AppendCondition adds a filter to the query, joining with AND when the query
// already carries a top-level WHERE.
func AppendCondition(query, condition string) string {
	query = normalize(query)
	if hasTopLevelWhere(query) {
		return fmt.Sprintf("%s AND %s", query, condition)
	}
	return fmt.Sprintf("%s WHERE %s", query, condition)
}

// Literal formats a time as a SOQL datetime literal. Sub-second precision is
// dropped; the client filters out rows at or before the watermark.
func Literal(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(literalLayout)
}

// Quote renders a SOQL string literal.
func Quote(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + replacer.Replace(value) + "'"
}

// WatermarkField is the record field the watermark is compared against.
func (b Builder) WatermarkField() string {
	return b.modifiedField()
}

// OrderField is the field an initial, watermark-less query is ordered by.
func (b Builder) OrderField() string {
	return b.createdField()
}

func (b Builder) modifiedField() string {
	if b.ModifiedField == "" {
		return DefaultModifiedField
	}
	return b.ModifiedField
}

func (b Builder) createdField() string {
	if b.CreatedField == "" {
		return DefaultCreatedField
	}
	return b.CreatedField
}

// normalize collapses the whitespace of multi-line query templates.
func normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// hasTopLevelWhere reports a WHERE keyword at parenthesis depth zero and outside quotes.
func hasTopLevelWhere(query string) bool {
	for _, loc := range whereClause.FindAllStringIndex(query, -1) {
		if depthAt(query, loc[0]) == 0 {
			return true
		}
	}
	return false
}

func depthAt(query string, pos int) int {
	depth := 0
	quoted := false
	for i := 0; i < pos; i++ {
		switch c := query[i]; {
		case c == '\\' && quoted:
			i++
		case c == '\'':
			quoted = !quoted
		case c == '(' && !quoted:
			depth++
		case c == ')' && !quoted && depth > 0:
			depth--
		}
	}
	if quoted {
		return -1
	}
	return depth
}
