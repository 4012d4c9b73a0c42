package fixtures

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
)

// Shape is the top-level layout of a generated export.
type Shape string

const (
	// ShapeList is a bare array of message objects.
	ShapeList Shape = "list"
	// ShapeWrapped nests the array under a "messages" key.
	ShapeWrapped Shape = "wrapped"
	// ShapeColumnar stores one array per field.
	ShapeColumnar Shape = "columnar"
)

// TimeEncoding selects how timestamps are written.
type TimeEncoding string

const (
	TimeSeconds TimeEncoding = "seconds"
	TimeMillis  TimeEncoding = "millis"
	TimeString  TimeEncoding = "string"
)

// Field names written by the generator. Both schema dialects recognise them.
const (
	FieldTimestamp = "timestamp"
	FieldSender    = "sender_name"
	FieldContent   = "content"
)

// ExportMessage is a single generated chat message.
type ExportMessage struct {
	Sender  string
	Content string
	Time    time.Time
}

// ExportGenerator writes synthetic chat exports for tests.
type ExportGenerator struct {
	baseDir string
}

// NewExportGenerator creates a generator rooted at baseDir.
func NewExportGenerator(baseDir string) *ExportGenerator {
	return &ExportGenerator{baseDir: baseDir}
}

// GetBaseDir returns the directory exports are written to.
func (g *ExportGenerator) GetBaseDir() string {
	return g.baseDir
}

// Conversation produces n messages spaced one hour apart, rotating through
// senders. Message i has content of length (i%5+1)*10.
func Conversation(start time.Time, senders []string, n int) []ExportMessage {
	if len(senders) == 0 {
		senders = []string{"Alice"}
	}
	msgs := make([]ExportMessage, n)
	for i := range msgs {
		msgs[i] = ExportMessage{
			Sender:  senders[i%len(senders)],
			Content: filler((i%5 + 1) * 10),
			Time:    start.Add(time.Duration(i) * time.Hour),
		}
	}
	return msgs
}

func filler(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return string(b)
}

func encodeTime(t time.Time, enc TimeEncoding) any {
	switch enc {
	case TimeMillis:
		return t.UnixMilli()
	case TimeString:
		return t.UTC().Format(time.RFC3339)
	default:
		return t.Unix()
	}
}

// Build renders messages in the given shape and timestamp encoding.
func Build(msgs []ExportMessage, shape Shape, enc TimeEncoding) ([]byte, error) {
	switch shape {
	case ShapeList, ShapeWrapped:
		rows := make([]map[string]any, len(msgs))
		for i, m := range msgs {
			rows[i] = map[string]any{
				FieldTimestamp: encodeTime(m.Time, enc),
				FieldSender:    m.Sender,
				FieldContent:   m.Content,
			}
		}
		if shape == ShapeWrapped {
			return sonic.Marshal(map[string]any{"messages": rows})
		}
		return sonic.Marshal(rows)
	case ShapeColumnar:
		times := make([]any, len(msgs))
		senders := make([]string, len(msgs))
		contents := make([]string, len(msgs))
		for i, m := range msgs {
			times[i] = encodeTime(m.Time, enc)
			senders[i] = m.Sender
			contents[i] = m.Content
		}
		return sonic.Marshal(map[string]any{
			FieldTimestamp: times,
			FieldSender:    senders,
			FieldContent:   contents,
		})
	default:
		return nil, fmt.Errorf("unknown shape %q", shape)
	}
}

// WriteExport builds an export and writes it to baseDir/name, returning the path.
func (g *ExportGenerator) WriteExport(name string, msgs []ExportMessage, shape Shape, enc TimeEncoding) (string, error) {
	data, err := Build(msgs, shape, enc)
	if err != nil {
		return "", err
	}
	return g.WriteRaw(name, data)
}

// WriteRaw writes arbitrary bytes, for malformed-export cases.
func (g *ExportGenerator) WriteRaw(name string, data []byte) (string, error) {
	path := filepath.Join(g.baseDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Cleanup removes everything under baseDir.
func (g *ExportGenerator) Cleanup() error {
	return os.RemoveAll(g.baseDir)
}
