package parser

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/penwyp/go-chat-recap/internal/core/cache"
	"github.com/penwyp/go-chat-recap/internal/core/model"
	"github.com/penwyp/go-chat-recap/internal/util"
)

// AliasKeys are probed in order when the payload is a keyed structure.
var AliasKeys = []string{"messages", "data", "chat_history"}

// Decode turns raw JSON bytes into a payload.
func Decode(data []byte) (any, error) {
	var payload any
	if err := sonic.Unmarshal(data, &payload); err != nil {
		return nil, model.WrapError(model.KindUnparsablePayload, err, "invalid JSON")
	}
	return payload, nil
}

// ExtractRecords pulls a flat list of message records out of a decoded
// payload. A top-level array is used directly, a keyed object is probed for
// an alias key and otherwise pivoted from columns into rows.
func ExtractRecords(payload any) ([]model.Record, error) {
	var records []model.Record
	var err error

	switch v := payload.(type) {
	case []any:
		records = fromSequence(v)
	case map[string]any:
		if seq, key, ok := findAlias(v); ok {
			util.LogDebug("Using aliased record list", util.F("key", key), util.F("items", len(seq)))
			records = fromSequence(seq)
		} else {
			records, err = pivotColumns(v)
			if err != nil {
				return nil, err
			}
		}
	default:
		return nil, model.NewError(model.KindUnparsablePayload, "payload must be a list of messages or an object, got %s", kindOf(payload))
	}

	if len(records) == 0 {
		return nil, model.NewError(model.KindNoMessagesFound, "no messages found in payload")
	}
	return records, nil
}

func findAlias(obj map[string]any) ([]any, string, bool) {
	for _, key := range AliasKeys {
		if seq, ok := obj[key].([]any); ok {
			return seq, key, true
		}
	}
	return nil, "", false
}

func fromSequence(items []any) []model.Record {
	records := make([]model.Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			util.LogDebug("Skip non-object record", util.F("index", i), util.F("type", kindOf(item)))
			continue
		}
		records = append(records, model.Record(obj))
	}
	return records
}

// pivotColumns rebuilds rows from a columnar object whose values are
// equal-length arrays.
func pivotColumns(obj map[string]any) ([]model.Record, error) {
	length := -1
	columns := make(map[string][]any, len(obj))
	for key, value := range obj {
		col, ok := value.([]any)
		if !ok {
			return nil, model.NewError(model.KindUnparsablePayload, "column %q is not a list (got %s)", key, kindOf(value))
		}
		if length >= 0 && len(col) != length {
			return nil, model.NewError(model.KindUnparsablePayload, "columns have unequal lengths (%d vs %d)", length, len(col))
		}
		length = len(col)
		columns[key] = col
	}
	if length <= 0 {
		return nil, nil
	}

	records := make([]model.Record, length)
	for i := 0; i < length; i++ {
		row := make(model.Record, len(columns))
		for key, col := range columns {
			row[key] = col[i]
		}
		records[i] = row
	}
	return records, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Parser reads export files from disk and caches decoded payloads by
// content fingerprint.
type Parser struct {
	concurrency int
	cache       *cache.MemoryCache[any]
}

// ParseResult represents the result of parsing a single file.
type ParseResult struct {
	File    string
	Payload any
	Error   error
}

// NewParser creates a new Parser instance.
func NewParser(concurrency int) *Parser {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Parser{
		concurrency: concurrency,
		cache:       cache.NewMemoryCache[any](cache.DefaultMaxEntries),
	}
}

// ParseFile reads and decodes the export at path.
func (p *Parser) ParseFile(path string) (any, error) {
	util.LogDebug("Start parsing file", util.F("file", path))

	data, err := os.ReadFile(path)
	if err != nil {
		util.LogDebug("Failed to read file", util.F("file", path), util.F("error", err))
		return nil, err
	}

	key := util.Fingerprint(data)
	if cached, ok := p.cache.Get(key); ok {
		util.LogDebug("Payload cache hit", util.F("file", path), util.F("fingerprint", key))
		return cached, nil
	}

	payload, err := Decode(data)
	if err != nil {
		return nil, err
	}

	p.cache.Set(key, payload)

	return payload, nil
}

// ParseFiles parses multiple files concurrently and returns a channel of ParseResult.
func (p *Parser) ParseFiles(files []string) <-chan ParseResult {
	start := time.Now()
	results := make(chan ParseResult, len(files))
	var wg sync.WaitGroup

	util.LogDebugf("Start concurrent parsing of %d files, concurrency: %d", len(files), p.concurrency)

	semaphore := make(chan struct{}, p.concurrency)

	for _, file := range files {
		wg.Add(1)
		go func(f string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			fileStart := time.Now()
			payload, err := p.ParseFile(f)
			if err != nil {
				util.LogDebugf("File parsing failed: %s, duration %v - %v", f, time.Since(fileStart), err)
			}

			results <- ParseResult{
				File:    f,
				Payload: payload,
				Error:   err,
			}
		}(file)
	}

	go func() {
		wg.Wait()
		close(results)
		util.LogDebugf("Concurrent parsing finished, total duration: %v", time.Since(start))
	}()

	return results
}
