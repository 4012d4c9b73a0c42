package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-chat-recap/internal/core/model"
)

func TestNewParser(t *testing.T) {
	parser := NewParser(4)

	assert.NotNil(t, parser)
	assert.Equal(t, 4, parser.concurrency)
	assert.NotNil(t, parser.cache)
	assert.Zero(t, parser.cache.Len())

	assert.Equal(t, 1, NewParser(0).concurrency)
}

func TestDecode(t *testing.T) {
	payload, err := Decode([]byte(`[{"sender":"A","time":1700000000}]`))
	require.NoError(t, err)
	list, ok := payload.([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)

	_, err = Decode([]byte(`{not json`))
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindUnparsablePayload))
}

func TestExtractRecordsShapes(t *testing.T) {
	list := `[{"sender":"A","time":1},{"sender":"B","time":2}]`

	tests := []struct {
		name string
		raw  string
	}{
		{"top-level list", list},
		{"messages alias", `{"messages":` + list + `}`},
		{"data alias", `{"data":` + list + `}`},
		{"chat_history alias", `{"chat_history":` + list + `}`},
		{"columnar", `{"sender":["A","B"],"time":[1,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Decode([]byte(tt.raw))
			require.NoError(t, err)

			records, err := ExtractRecords(payload)
			require.NoError(t, err)
			require.Len(t, records, 2)
			assert.Equal(t, "A", records[0]["sender"])
			assert.Equal(t, float64(1), records[0]["time"])
			assert.Equal(t, "B", records[1]["sender"])
			assert.Equal(t, float64(2), records[1]["time"])
		})
	}
}

func TestExtractRecordsAliasPriority(t *testing.T) {
	// "messages" is not a list, so the next alias is used.
	payload, err := Decode([]byte(`{"messages":"n/a","data":[{"sender":"X"}],"chat_history":[{"sender":"Y"}]}`))
	require.NoError(t, err)

	records, err := ExtractRecords(payload)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "X", records[0]["sender"])
}

func TestExtractRecordsSkipsNonObjects(t *testing.T) {
	payload, err := Decode([]byte(`[{"sender":"A"}, 42, "text", null, {"sender":"B"}]`))
	require.NoError(t, err)

	records, err := ExtractRecords(payload)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestExtractRecordsFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind model.FailureKind
	}{
		{"empty list", `[]`, model.KindNoMessagesFound},
		{"list of scalars", `[1, 2, 3]`, model.KindNoMessagesFound},
		{"empty messages alias", `{"messages":[]}`, model.KindNoMessagesFound},
		{"empty object", `{}`, model.KindNoMessagesFound},
		{"string scalar", `"hello"`, model.KindUnparsablePayload},
		{"number scalar", `42`, model.KindUnparsablePayload},
		{"boolean scalar", `true`, model.KindUnparsablePayload},
		{"null", `null`, model.KindUnparsablePayload},
		{"unequal columns", `{"sender":["A","B"],"time":[1]}`, model.KindUnparsablePayload},
		{"non-list column", `{"sender":["A"],"time":5}`, model.KindUnparsablePayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Decode([]byte(tt.raw))
			require.NoError(t, err)

			records, err := ExtractRecords(payload)
			require.Error(t, err)
			assert.Nil(t, records)
			assert.True(t, model.IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestParserParseFile(t *testing.T) {
	parser := NewParser(1)
	tempDir := t.TempDir()

	testFile := filepath.Join(tempDir, "chat.json")
	require.NoError(t, os.WriteFile(testFile, []byte(`{"messages":[{"sender":"A","time":"2024-01-01 10:00"}]}`), 0644))

	payload, err := parser.ParseFile(testFile)
	require.NoError(t, err)

	records, err := ExtractRecords(payload)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// Second read of identical content is served from the cache.
	_, err = parser.ParseFile(testFile)
	require.NoError(t, err)
	assert.Equal(t, 1, parser.cache.Len())
}

func TestParserParseFileErrors(t *testing.T) {
	parser := NewParser(1)
	tempDir := t.TempDir()

	_, err := parser.ParseFile(filepath.Join(tempDir, "missing.json"))
	assert.Error(t, err)

	invalid := filepath.Join(tempDir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"messages":[`), 0644))
	_, err = parser.ParseFile(invalid)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindUnparsablePayload))
}

func TestParserParseFilesConcurrent(t *testing.T) {
	parser := NewParser(3)
	tempDir := t.TempDir()

	var files []string
	for i := 0; i < 6; i++ {
		path := filepath.Join(tempDir, fmt.Sprintf("export-%d.json", i))
		content := fmt.Sprintf(`[{"sender":"user-%d","time":%d}]`, i, 1700000000+i)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		files = append(files, path)
	}
	files = append(files, filepath.Join(tempDir, "missing.json"))

	seen := make(map[string]bool)
	failures := 0
	for result := range parser.ParseFiles(files) {
		seen[result.File] = true
		if result.Error != nil {
			failures++
			continue
		}
		assert.NotNil(t, result.Payload)
	}

	assert.Len(t, seen, len(files))
	assert.Equal(t, 1, failures)
}
