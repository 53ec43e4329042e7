package model

// IndexName is the store index holding every ingested record.
const IndexName = "app-logs"

// Field names as stored and searched.
const (
	FieldDateTime          = "dateTime"
	FieldUserName          = "userName"
	FieldGroupName         = "groupName"
	FieldSyslogIdentifier  = "syslogIdentifier"
	FieldPriority          = "priority"
	FieldCommand           = "command"
	FieldCommandLine       = "commandLine"
	FieldExe               = "exe"
	FieldHostName          = "hostName"
	FieldProcessIdentifier = "processIdentifier"
	FieldTimeStamp         = "timeStamp"
	FieldMessage           = "message"

	// FieldScore sorts by relevance when used in a SortField.
	FieldScore = "_score"
)

// FieldType is how the store indexes a field.
type FieldType string

const (
	FieldTypeKeyword FieldType = "keyword" // exact match
	FieldTypeText    FieldType = "text"    // tokenized, relevance ranked
	FieldTypeDate    FieldType = "date"
)

// FieldMapping declares the type of one indexed field.
type FieldMapping struct {
	Name string
	Type FieldType
}

// IndexSchema is the fixed field-type mapping of an index.
type IndexSchema struct {
	Fields []FieldMapping
}

// Lookup returns the mapping for name.
func (s IndexSchema) Lookup(name string) (FieldMapping, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldMapping{}, false
}

// AppLogsSchema is the mapping of IndexName.
var AppLogsSchema = IndexSchema{Fields: []FieldMapping{
	{FieldDateTime, FieldTypeDate},
	{FieldUserName, FieldTypeKeyword},
	{FieldGroupName, FieldTypeKeyword},
	{FieldSyslogIdentifier, FieldTypeKeyword},
	{FieldPriority, FieldTypeKeyword},
	{FieldCommand, FieldTypeKeyword},
	{FieldCommandLine, FieldTypeText},
	{FieldExe, FieldTypeText},
	{FieldHostName, FieldTypeText},
	{FieldProcessIdentifier, FieldTypeKeyword},
	{FieldTimeStamp, FieldTypeKeyword},
	{FieldMessage, FieldTypeText},
}}

// SearchFields are matched by a free-text search.
var SearchFields = []string{
	FieldUserName,
	FieldGroupName,
	FieldSyslogIdentifier,
	FieldCommandLine,
	FieldMessage,
	FieldCommand,
	FieldHostName,
	FieldTimeStamp,
}
