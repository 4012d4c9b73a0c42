package schema

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/penwyp/go-chat-recap/internal/core/model"
	"github.com/penwyp/go-chat-recap/internal/util"
)

// Dialect selects the rule set used to recognise source fields.
type Dialect string

const (
	DialectLoose  Dialect = "loose"
	DialectStrict Dialect = "strict"
)

// ParseDialect validates a dialect name. An empty name selects loose.
func ParseDialect(name string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(name))) {
	case "", DialectLoose:
		return DialectLoose, nil
	case DialectStrict:
		return DialectStrict, nil
	}
	return "", fmt.Errorf("unknown dialect %q (valid: loose, strict)", name)
}

// Matcher tests a case-folded field name.
type Matcher func(folded string) bool

// Rule maps a field onto Role when Match accepts its name.
type Rule struct {
	Role  string
	Match Matcher
}

// Contains matches names containing any of subs.
func Contains(subs ...string) Matcher {
	return func(folded string) bool {
		for _, s := range subs {
			if strings.Contains(folded, s) {
				return true
			}
		}
		return false
	}
}

// Equals matches names equal to any of names.
func Equals(names ...string) Matcher {
	return func(folded string) bool {
		for _, n := range names {
			if folded == n {
				return true
			}
		}
		return false
	}
}

// Excluding wraps m so names containing any of subs never match.
func Excluding(m Matcher, subs ...string) Matcher {
	return func(folded string) bool {
		for _, s := range subs {
			if strings.Contains(folded, s) {
				return false
			}
		}
		return m(folded)
	}
}

var contentRule = Rule{
	Role:  model.RoleContent,
	Match: Excluding(Contains("content", "message", "text"), "original"),
}

// LooseRules apply to generic exports.
var LooseRules = []Rule{
	{Role: model.RoleTimestamp, Match: Contains("time")},
	{Role: model.RoleSender, Match: Contains("send", "author", "user")},
	contentRule,
}

// StrictRules apply to exports with a fixed, well-known field layout.
var StrictRules = []Rule{
	{Role: model.RoleTimestamp, Match: Contains("timestamp")},
	{Role: model.RoleSender, Match: Equals("sender_name", "sender")},
	contentRule,
}

// RulesFor returns the ordered rule list of a dialect.
func RulesFor(d Dialect) []Rule {
	if d == DialectStrict {
		return StrictRules
	}
	return LooseRules
}

// Result is the output of Mapper.Map.
type Result struct {
	Records []model.NormalizedRecord
	// Assignments maps each source field that won a role onto that role.
	Assignments map[string]string
	// Dropped counts records without a sender or timestamp value.
	Dropped int
}

// Mapper renames source fields onto the canonical roles.
type Mapper struct {
	rules []Rule
}

// NewMapper creates a mapper for the given dialect.
func NewMapper(d Dialect) *Mapper {
	return &Mapper{rules: RulesFor(d)}
}

// NewMapperWithRules creates a mapper from a custom ordered rule list.
func NewMapperWithRules(rules []Rule) *Mapper {
	return &Mapper{rules: rules}
}

// Classify returns the role of a single field name, or false when the field
// is a passenger.
func (m *Mapper) Classify(field string) (string, bool) {
	return m.classify(cases.Fold().String(field))
}

func (m *Mapper) classify(folded string) (string, bool) {
	for _, rule := range m.rules {
		if rule.Match(folded) {
			return rule.Role, true
		}
	}
	return "", false
}

// Assign classifies every field once and settles collisions: a field already
// named after its role wins, otherwise the smallest name does. Losing fields
// are left out of the result and stay passengers.
func (m *Mapper) Assign(fields []string) map[string]string {
	folder := cases.Fold()
	candidates := make(map[string][]string)
	for _, field := range fields {
		role, ok := m.classify(folder.String(field))
		if !ok {
			continue
		}
		candidates[role] = append(candidates[role], field)
	}

	assignments := make(map[string]string, len(candidates))
	for role, names := range candidates {
		sort.Strings(names)
		winner := names[0]
		for _, name := range names {
			if strings.EqualFold(name, role) {
				winner = name
				break
			}
		}
		if len(names) > 1 {
			util.LogDebug("Multiple fields match one role",
				util.F("role", role), util.F("fields", strings.Join(names, ",")), util.F("chosen", winner))
		}
		assignments[winner] = role
	}
	return assignments
}

// Map normalizes records. It fails with MissingRequiredColumns when no field
// maps onto the timestamp or sender role, and with NoMessagesFound when every
// record lacks a sender or timestamp value.
func (m *Mapper) Map(records []model.Record) (*Result, error) {
	fields := observedFields(records)
	assignments := m.Assign(fields)

	byRole := make(map[string]string, len(assignments))
	for field, role := range assignments {
		byRole[role] = field
	}

	var missing []string
	for _, role := range []string{model.RoleTimestamp, model.RoleSender} {
		if _, ok := byRole[role]; !ok {
			missing = append(missing, role)
		}
	}
	if len(missing) > 0 {
		err := model.NewError(model.KindMissingRequiredColumns, "missing required columns (%s)", strings.Join(missing, ", "))
		err.Fields = fields
		return nil, err
	}

	tsField := byRole[model.RoleTimestamp]
	senderField := byRole[model.RoleSender]
	contentField, hasContent := byRole[model.RoleContent]

	result := &Result{
		Records:     make([]model.NormalizedRecord, 0, len(records)),
		Assignments: assignments,
	}
	for i, rec := range records {
		sender := model.ScalarString(rec[senderField])
		ts := rec[tsField]
		if sender == "" || ts == nil {
			util.LogDebug("Drop record without sender or timestamp", util.F("index", i))
			result.Dropped++
			continue
		}

		normalized := model.NormalizedRecord{
			Timestamp: ts,
			Sender:    sender,
			Extra:     make(model.Record),
		}
		if hasContent {
			if raw, ok := rec[contentField]; ok {
				content := model.ScalarString(raw)
				normalized.Content = &content
			}
		}
		for k, v := range rec {
			if _, mapped := assignments[k]; !mapped {
				normalized.Extra[k] = v
			}
		}
		result.Records = append(result.Records, normalized)
	}

	if len(result.Records) == 0 {
		err := model.NewError(model.KindNoMessagesFound, "no messages with both a sender and a timestamp (%d dropped)", result.Dropped)
		err.Fields = fields
		return nil, err
	}
	return result, nil
}

// observedFields returns the sorted union of field names across records.
func observedFields(records []model.Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
