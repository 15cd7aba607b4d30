// Package record holds the immutable per-company output of a resolve run.
package record

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/companyfinder/internal/serp"
	"github.com/FranksOps/companyfinder/pkg/opt"
)

// Field names in export order. They double as JSON keys, CSV headers and
// column names.
const (
	FieldCompanyName = "companyName"
	FieldSearchQuery = "searchQuery"
	FieldResultTitle = "resultTitle"
	FieldLinkedinURL = "linkedinUrl"
	FieldTimestamp   = "timestamp"
)

// Fields lists the record fields in export order.
var Fields = []string{FieldCompanyName, FieldSearchQuery, FieldResultTitle, FieldLinkedinURL, FieldTimestamp}

// TimeFormat is the timestamp layout used by every text output.
const TimeFormat = time.RFC3339

// Record is the outcome of resolving one company. It cannot be changed after
// Build.
type Record struct {
	companyName string
	searchQuery string
	resultTitle opt.Option[string]
	linkedinURL opt.Option[string]
	timestamp   time.Time
}

// Build assembles a Record stamped with the current UTC time.
func Build(companyName, searchQuery string, best opt.Option[serp.Result], linkedinURL opt.Option[string]) Record {
	return BuildAt(companyName, searchQuery, best, linkedinURL, time.Now())
}

// BuildAt is Build with an explicit timestamp.
func BuildAt(companyName, searchQuery string, best opt.Option[serp.Result], linkedinURL opt.Option[string], at time.Time) Record {
	title := opt.Map(best, func(r serp.Result) string { return r.Title })
	return Restore(companyName, searchQuery, title, linkedinURL, at)
}

// Restore rebuilds a Record from stored field values.
func Restore(companyName, searchQuery string, resultTitle, linkedinURL opt.Option[string], at time.Time) Record {
	return Record{
		companyName: companyName,
		searchQuery: searchQuery,
		resultTitle: resultTitle,
		linkedinURL: linkedinURL,
		timestamp:   at.UTC(),
	}
}

func (r Record) CompanyName() string { return r.companyName }
func (r Record) SearchQuery() string { return r.searchQuery }
func (r Record) ResultTitle() opt.Option[string] { return r.resultTitle }
func (r Record) LinkedinURL() opt.Option[string] { return r.linkedinURL }
func (r Record) Timestamp() time.Time { return r.timestamp }
func (r Record) Matched() bool { return r.linkedinURL.IsSome() }

// Values returns the fields as strings in Fields order. Absent values are
// empty strings.
func (r Record) Values() []string {
	return []string{
		r.companyName,
		r.searchQuery,
		r.resultTitle.OrElse(""),
		r.linkedinURL.OrElse(""),
		r.timestamp.Format(TimeFormat),
	}
}

type wireRecord struct {
	CompanyName string             `json:"companyName"`
	SearchQuery string             `json:"searchQuery"`
	ResultTitle opt.Option[string] `json:"resultTitle"`
	LinkedinURL opt.Option[string] `json:"linkedinUrl"`
	Timestamp   string             `json:"timestamp"`
}

// MarshalJSON encodes absent values as null and the timestamp as RFC 3339.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRecord{
		CompanyName: r.companyName,
		SearchQuery: r.searchQuery,
		ResultTitle: r.resultTitle,
		LinkedinURL: r.linkedinURL,
		Timestamp:   r.timestamp.Format(TimeFormat),
	})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	ts, err := ParseTime(w.Timestamp)
	if err != nil {
		return err
	}
	*r = Restore(w.CompanyName, w.SearchQuery, w.ResultTitle, w.LinkedinURL, ts)
	return nil
}

// ParseTime parses a timestamp written with TimeFormat.
func ParseTime(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("record: timestamp: %w", err)
	}
	return ts.UTC(), nil
}

// OptionalString maps "" to None.
func OptionalString(s string) opt.Option[string] {
	if s == "" {
		return opt.None[string]()
	}
	return opt.Some(s)
}
