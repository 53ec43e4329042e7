package model

import (
	"encoding/json"
	"strconv"
)

// Unknown replaces any field missing from the source payload.
const Unknown = "unknown"

// SourceRealtimeTimestamp is the journal key carrying the event time.
const SourceRealtimeTimestamp = "__REALTIME_TIMESTAMP"

// RawPayload is a loosely typed journal record as received over the wire.
type RawPayload map[string]any

// FieldSource maps a normalized field to the journal key it is read from.
type FieldSource struct {
	Target string
	Source string
}

// SourceFields lists the normalized fields in record order.
var SourceFields = []FieldSource{
	{FieldUserName, "UserName"},
	{FieldGroupName, "GroupName"},
	{FieldSyslogIdentifier, "SYSLOG_IDENTIFIER"},
	{FieldPriority, "PRIORITY"},
	{FieldCommand, "_COMM"},
	{FieldCommandLine, "_CMDLINE"},
	{FieldExe, "_EXE"},
	{FieldHostName, "_HOSTNAME"},
	{FieldProcessIdentifier, "_PID"},
	{FieldTimeStamp, SourceRealtimeTimestamp},
	{FieldMessage, "MESSAGE"},
}

// Normalize maps a raw payload onto a LogRecord. It never fails: falsy or
// absent values (nil, "", false, 0) become Unknown, and other non-string
// values are stringified. No format validation is applied.
func Normalize(raw RawPayload) LogRecord {
	var r LogRecord
	for _, f := range SourceFields {
		r.set(f.Target, stringify(raw[f.Source]))
	}
	return r
}

// Get returns the value of a normalized field by its JSON name.
func (r LogRecord) Get(field string) string {
	switch field {
	case FieldUserName:
		return r.UserName
	case FieldGroupName:
		return r.GroupName
	case FieldSyslogIdentifier:
		return r.SyslogIdentifier
	case FieldPriority:
		return r.Priority
	case FieldCommand:
		return r.Command
	case FieldCommandLine:
		return r.CommandLine
	case FieldExe:
		return r.Exe
	case FieldHostName:
		return r.HostName
	case FieldProcessIdentifier:
		return r.ProcessIdentifier
	case FieldTimeStamp:
		return r.TimeStamp
	case FieldMessage:
		return r.Message
	}
	return ""
}

func (r *LogRecord) set(field, value string) {
	switch field {
	case FieldUserName:
		r.UserName = value
	case FieldGroupName:
		r.GroupName = value
	case FieldSyslogIdentifier:
		r.SyslogIdentifier = value
	case FieldPriority:
		r.Priority = value
	case FieldCommand:
		r.Command = value
	case FieldCommandLine:
		r.CommandLine = value
	case FieldExe:
		r.Exe = value
	case FieldHostName:
		r.HostName = value
	case FieldProcessIdentifier:
		r.ProcessIdentifier = value
	case FieldTimeStamp:
		r.TimeStamp = value
	case FieldMessage:
		r.Message = value
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return Unknown
	case string:
		if val == "" {
			return Unknown
		}
		return val
	case bool:
		if !val {
			return Unknown
		}
		return "true"
	case float64:
		if val == 0 {
			return Unknown
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		if f, err := val.Float64(); err == nil && f == 0 {
			return Unknown
		}
		return val.String()
	case int:
		if val == 0 {
			return Unknown
		}
		return strconv.Itoa(val)
	case int64:
		if val == 0 {
			return Unknown
		}
		return strconv.FormatInt(val, 10)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return Unknown
		}
		return string(data)
	}
}
