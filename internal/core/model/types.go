package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

// Record is a single message-like object pulled out of an export, keyed by
// whatever field names the source used.
type Record map[string]any

// Fields returns the record's field names.
func (r Record) Fields() []string {
	fields := make([]string, 0, len(r))
	for k := range r {
		fields = append(fields, k)
	}
	return fields
}

// NormalizedRecord is a Record whose fields have been mapped onto the
// canonical roles. Timestamp is still the raw exported value.
type NormalizedRecord struct {
	Timestamp any
	Sender    string
	// Content is nil when the record carries no content field at all.
	Content *string
	// Extra holds the unmatched passenger fields.
	Extra Record
}

// Record rebuilds a flat record using the canonical role names.
func (r NormalizedRecord) Record() Record {
	out := make(Record, len(r.Extra)+3)
	for k, v := range r.Extra {
		out[k] = v
	}
	out[RoleTimestamp] = r.Timestamp
	out[RoleSender] = r.Sender
	if r.Content != nil {
		out[RoleContent] = *r.Content
	}
	return out
}

// TimestampedRecord is a NormalizedRecord with a resolved instant.
type TimestampedRecord struct {
	Time    time.Time
	Sender  string
	Content *string
}

// HasContent reports whether the record carries a content field.
func (r TimestampedRecord) HasContent() bool {
	return r.Content != nil
}

// ScalarString renders a decoded JSON scalar the way it appeared in the
// export: strings verbatim, integral numbers without a fraction.
func ScalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		data, err := sonic.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
