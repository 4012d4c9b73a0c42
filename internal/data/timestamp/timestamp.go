package timestamp

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/penwyp/go-chat-recap/internal/core/model"
	"github.com/penwyp/go-chat-recap/internal/util"
)

// MillisecondThreshold separates epoch seconds from epoch milliseconds. Any
// second-epoch value below it is a date before 2286; any millisecond-epoch
// value above it is a date after 1970-04-26.
const MillisecondThreshold = 10_000_000_000

// Unit is the interpretation chosen for a whole record set.
type Unit int

const (
	UnitSeconds Unit = iota
	UnitMilliseconds
	UnitText
)

func (u Unit) String() string {
	switch u {
	case UnitSeconds:
		return "seconds"
	case UnitMilliseconds:
		return "milliseconds"
	case UnitText:
		return "text"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// BadRowPolicy decides what happens to a row whose timestamp cannot be parsed.
type BadRowPolicy string

const (
	PolicyDrop BadRowPolicy = "drop"
	PolicyFail BadRowPolicy = "fail"
)

// ParseBadRowPolicy validates a policy name. An empty name selects drop.
func ParseBadRowPolicy(name string) (BadRowPolicy, error) {
	switch BadRowPolicy(strings.ToLower(strings.TrimSpace(name))) {
	case "", PolicyDrop:
		return PolicyDrop, nil
	case PolicyFail:
		return PolicyFail, nil
	}
	return "", fmt.Errorf("unknown bad timestamp policy %q (valid: drop, fail)", name)
}

// Policy is the interpretation resolved once for a record set and applied
// to every value.
type Policy struct {
	Unit     Unit
	Location *time.Location
}

// ResolvePolicy classifies the non-null values. All numbers pick seconds or
// milliseconds from the maximum; all strings pick free-form text parsing.
// Anything else cannot be interpreted.
func ResolvePolicy(values []any, loc *time.Location) (Policy, error) {
	if loc == nil {
		loc = time.UTC
	}

	var numeric, textual, other int
	maxValue := math.Inf(-1)
	for _, v := range values {
		if v == nil {
			continue
		}
		if f, ok := toFloat(v); ok {
			numeric++
			if f > maxValue {
				maxValue = f
			}
			continue
		}
		if _, ok := v.(string); ok {
			textual++
			continue
		}
		other++
	}

	switch {
	case other > 0:
		return Policy{}, model.NewError(model.KindTimestampParseError, "timestamps must be numbers or strings (found %d values of other types)", other)
	case numeric > 0 && textual > 0:
		return Policy{}, model.NewError(model.KindTimestampParseError, "timestamps mix numbers (%d) and strings (%d)", numeric, textual)
	case numeric > 0:
		if maxValue > MillisecondThreshold {
			return Policy{Unit: UnitMilliseconds, Location: loc}, nil
		}
		return Policy{Unit: UnitSeconds, Location: loc}, nil
	case textual > 0:
		return Policy{Unit: UnitText, Location: loc}, nil
	default:
		return Policy{}, model.NewError(model.KindTimestampParseError, "no timestamp values present")
	}
}

// Epoch values must land in years 1 through 9999.
var (
	minEpochSeconds = float64(time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	maxEpochSeconds = float64(time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC).Unix())
)

// Parse converts one raw value under the policy. The instant is returned in
// the policy's location.
func (p Policy) Parse(v any) (time.Time, error) {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}

	switch p.Unit {
	case UnitSeconds, UnitMilliseconds:
		f, ok := toFloat(v)
		if !ok {
			return time.Time{}, fmt.Errorf("expected a number, got %T", v)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return time.Time{}, fmt.Errorf("invalid epoch value %v", f)
		}
		secs := f
		if p.Unit == UnitMilliseconds {
			secs = f / 1000
		}
		if secs < minEpochSeconds || secs > maxEpochSeconds {
			return time.Time{}, fmt.Errorf("epoch value %v is out of range", f)
		}
		if p.Unit == UnitMilliseconds {
			return time.UnixMicro(int64(math.Round(f * 1000))).In(loc), nil
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(math.Round(frac*1e9))).In(loc), nil
	case UnitText:
		s, ok := v.(string)
		if !ok {
			return time.Time{}, fmt.Errorf("expected a string, got %T", v)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return time.Time{}, fmt.Errorf("empty timestamp")
		}
		t, err := dateparse.ParseIn(s, loc)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil
	}
	return time.Time{}, fmt.Errorf("unresolved timestamp policy")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Result is the output of Resolver.Resolve.
type Result struct {
	Records []model.TimestampedRecord
	Policy  Policy
	Dropped int
}

// Resolver turns raw timestamps into instants.
type Resolver struct {
	location *time.Location
	onBad    BadRowPolicy
}

// NewResolver creates a resolver that reports instants in tp's location.
func NewResolver(tp *util.TimeProvider, onBad BadRowPolicy) *Resolver {
	if onBad == "" {
		onBad = PolicyDrop
	}
	return &Resolver{location: tp.Location(), onBad: onBad}
}

// Resolve parses every record's timestamp under a single policy.
func (r *Resolver) Resolve(records []model.NormalizedRecord) (*Result, error) {
	values := make([]any, len(records))
	for i, rec := range records {
		values[i] = rec.Timestamp
	}

	policy, err := ResolvePolicy(values, r.location)
	if err != nil {
		return nil, err
	}
	util.LogDebug("Resolved timestamp policy", util.F("unit", policy.Unit.String()), util.F("location", policy.Location.String()))

	result := &Result{
		Records: make([]model.TimestampedRecord, 0, len(records)),
		Policy:  policy,
	}
	for i, rec := range records {
		t, err := policy.Parse(rec.Timestamp)
		if err != nil {
			if r.onBad == PolicyFail {
				return nil, model.WrapError(model.KindTimestampParseError, err,
					fmt.Sprintf("cannot parse timestamp %q at row %d", model.ScalarString(rec.Timestamp), i))
			}
			util.LogDebug("Drop record with unparseable timestamp", util.F("index", i), util.F("error", err))
			result.Dropped++
			continue
		}
		result.Records = append(result.Records, model.TimestampedRecord{
			Time:    t,
			Sender:  rec.Sender,
			Content: rec.Content,
		})
	}
	return result, nil
}
