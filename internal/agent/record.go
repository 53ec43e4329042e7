package agent

import (
	"fmt"
	"strconv"

	"github.com/tinytelemetry/journalgate/internal/model"
	"github.com/valyala/fastjson"
)

const (
	fieldIdentifier = "SYSLOG_IDENTIFIER"
	fieldUID        = "_UID"
	fieldGID        = "_GID"
	fieldUserName   = "UserName"
	fieldGroupName  = "GroupName"
)

// DefaultIdentifiers are the SYSLOG_IDENTIFIER values shipped when none are
// configured: authentication and account-management tools.
var DefaultIdentifiers = []string{
	"su", "sudo", "login", "systemd-logind", "lightdm", "sshd",
	"useradd", "usermod", "userdel", "adduser", "deluser",
	"groupadd", "groupmod", "groupdel", "addgroup", "delgroup",
}

// Record is one journal entry with every value rendered as a string.
type Record map[string]string

// Processor turns journal lines into outgoing records.
// It is safe for concurrent use.
type Processor struct {
	parsers     fastjson.ParserPool
	identifiers map[string]struct{}
	resolver    Resolver
}

// NewProcessor keeps only entries whose SYSLOG_IDENTIFIER is in identifiers
// (DefaultIdentifiers when empty).
func NewProcessor(identifiers []string, resolver Resolver) *Processor {
	if len(identifiers) == 0 {
		identifiers = DefaultIdentifiers
	}
	set := make(map[string]struct{}, len(identifiers))
	for _, id := range identifiers {
		set[id] = struct{}{}
	}
	return &Processor{identifiers: set, resolver: resolver}
}

// Process parses one journal line. It reports false for entries the filter
// rejects and an error for lines that are not JSON objects.
func (p *Processor) Process(line []byte) (Record, bool, error) {
	parser := p.parsers.Get()
	defer p.parsers.Put(parser)

	v, err := parser.ParseBytes(line)
	if err != nil {
		return nil, false, fmt.Errorf("parse journal line: %w", err)
	}
	obj, err := v.Object()
	if err != nil {
		return nil, false, fmt.Errorf("journal line: %w", err)
	}

	if _, ok := p.identifiers[string(v.GetStringBytes(fieldIdentifier))]; !ok {
		return nil, false, nil
	}

	rec := make(Record, obj.Len()+2)
	obj.Visit(func(key []byte, val *fastjson.Value) {
		rec[string(key)] = stringValue(val)
	})

	rec[fieldUserName] = p.lookup(rec[fieldUID], p.resolver.UserName)
	rec[fieldGroupName] = p.lookup(rec[fieldGID], p.resolver.GroupName)
	return rec, true, nil
}

func (p *Processor) lookup(id string, fn func(int) (string, error)) string {
	n, err := strconv.Atoi(id)
	if err != nil {
		return model.Unknown
	}
	name, err := fn(n)
	if err != nil || name == "" {
		return model.Unknown
	}
	return name
}

// stringValue unquotes strings and decodes byte arrays. Everything else
// keeps its JSON text.
func stringValue(v *fastjson.Value) string {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeArray:
		if b, ok := byteArray(v); ok {
			return string(b)
		}
	}
	return v.String()
}

// byteArray reads journald's encoding of binary or non-UTF-8 values: a
// non-empty array of integers in 0..255.
func byteArray(v *fastjson.Value) ([]byte, bool) {
	items, err := v.Array()
	if err != nil || len(items) == 0 {
		return nil, false
	}
	b := make([]byte, 0, len(items))
	for _, item := range items {
		if item.Type() != fastjson.TypeNumber {
			return nil, false
		}
		n, err := item.Int()
		if err != nil || n < 0 || n > 255 {
			return nil, false
		}
		b = append(b, byte(n))
	}
	return b, true
}
