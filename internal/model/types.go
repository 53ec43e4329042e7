package model

import "time"

// LogRecord is the normalized shape of one journal entry.
// Every field is always set; missing source values become Unknown.
type LogRecord struct {
	UserName          string `json:"userName"`
	GroupName         string `json:"groupName"`
	SyslogIdentifier  string `json:"syslogIdentifier"`
	Priority          string `json:"priority"`
	Command           string `json:"command"`
	CommandLine       string `json:"commandLine"`
	Exe               string `json:"exe"`
	HostName          string `json:"hostName"`
	ProcessIdentifier string `json:"processIdentifier"`
	TimeStamp         string `json:"timeStamp"` // opaque, as sent by the source
	Message           string `json:"message"`
}

// Document is the unit written to the store: the normalized record plus
// the structured event time backing the schema's date field.
type Document struct {
	LogRecord
	DateTime time.Time `json:"dateTime"`
}

// Fields returns the document as field name -> value, in schema order.
// Record fields are strings; dateTime is a time.Time.
func (d Document) Fields() map[string]any {
	fields := make(map[string]any, len(SourceFields)+1)
	for _, f := range SourceFields {
		fields[f.Target] = d.LogRecord.Get(f.Target)
	}
	fields[FieldDateTime] = d.DateTime
	return fields
}

// SortField orders search results by one field.
type SortField struct {
	Field string
	Desc  bool
}

// SearchQuery is the store-neutral form of a search request.
// An empty Text matches every document.
type SearchQuery struct {
	Text   string
	Fields []string
	Size   int
	Sort   []SortField
}

// MatchAll reports whether the query matches every document.
func (q SearchQuery) MatchAll() bool {
	return q.Text == ""
}

// SearchHit is one matched document.
type SearchHit struct {
	ID     string
	Score  float64
	Source map[string]any
}

// SearchResult carries the full match count and at most Size hits.
type SearchResult struct {
	Total int64
	Hits  []SearchHit
}
