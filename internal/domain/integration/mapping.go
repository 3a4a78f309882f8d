package integration

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Data Mapping
// ---------------------------------------------------------------------------

// TransformKind identifies one pure record transformation
type TransformKind string

const (
	// TransformLowercase lowercases a string field
	TransformLowercase TransformKind = "LOWERCASE"
	// TransformUppercase uppercases a string field
	TransformUppercase TransformKind = "UPPERCASE"
	// TransformTrim trims surrounding whitespace from a string field
	TransformTrim TransformKind = "TRIM"
	// TransformEnumTranslate maps enumerated values via the "map" arg
	// (semicolon-separated from=to pairs)
	TransformEnumTranslate TransformKind = "ENUM_TRANSLATE"
	// TransformScale multiplies a numeric field by the "factor" arg
	TransformScale TransformKind = "SCALE"
	// TransformRound rounds a numeric field to "places" decimal places
	TransformRound TransformKind = "ROUND"
	// TransformTimeFormat re-renders a timestamp field using the "layout" arg
	TransformTimeFormat TransformKind = "TIME_FORMAT"
)

// Transform is one ordered step of the mapping pipeline
type Transform struct {
	Field string
	Kind  TransformKind
	Args  map[string]string
}

// RuleKind identifies one validation rule checked after transformation
type RuleKind string

const (
	RuleRequired  RuleKind = "REQUIRED"
	RuleNumeric   RuleKind = "NUMERIC"
	RuleMaxLength RuleKind = "MAX_LENGTH"
	RulePattern   RuleKind = "PATTERN"
	RuleOneOf     RuleKind = "ONE_OF"
)

// ValidationRule is one post-transform record check
type ValidationRule struct {
	Name  string
	Field string
	Kind  RuleKind
	Args  map[string]string
}

// DataMapping is the per-integration field mapping, transformation and
// validation pipeline. Fields maps remote names to local names; outbound
// application uses the inverse map.
type DataMapping struct {
	Fields     map[string]string
	Transforms []Transform
	Rules      []ValidationRule
}

// Apply runs the full pipeline on a record: field mapping, then ordered
// transforms, then validation rules. A failed rule yields a *ValidationError.
// The input record is not mutated.
func (m DataMapping) Apply(rec Record, direction Direction) (Record, error) {
	out := m.mapFields(rec, direction)

	for _, tr := range m.Transforms {
		if err := applyTransform(out, tr); err != nil {
			return nil, err
		}
	}

	for _, rule := range m.Rules {
		if err := checkRule(out, rule); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// mapFields renames fields per the configured map, direction-aware
func (m DataMapping) mapFields(rec Record, direction Direction) Record {
	if len(m.Fields) == 0 {
		return rec.Clone()
	}

	mapping := m.Fields
	if direction == DirectionOutbound {
		mapping = invert(m.Fields)
	}

	out := make(Record, len(rec))
	for k, v := range rec {
		if mapped, ok := mapping[k]; ok {
			out[mapped] = v
		} else {
			out[k] = v
		}
	}
	return out
}

// invert flips a field map for outbound application
func invert(fields map[string]string) map[string]string {
	inv := make(map[string]string, len(fields))
	for k, v := range fields {
		inv[v] = k
	}
	return inv
}

// ---------------------------------------------------------------------------
// Transforms
// ---------------------------------------------------------------------------

func applyTransform(rec Record, tr Transform) error {
	val, ok := rec[tr.Field]
	if !ok {
		return nil // no value to transform
	}

	switch tr.Kind {
	case TransformLowercase:
		if s, ok := val.(string); ok {
			rec[tr.Field] = strings.ToLower(s)
		}
	case TransformUppercase:
		if s, ok := val.(string); ok {
			rec[tr.Field] = strings.ToUpper(s)
		}
	case TransformTrim:
		if s, ok := val.(string); ok {
			rec[tr.Field] = strings.TrimSpace(s)
		}
	case TransformEnumTranslate:
		s, ok := val.(string)
		if !ok {
			return nil
		}
		for _, pair := range strings.Split(tr.Args["map"], ";") {
			from, to, found := strings.Cut(pair, "=")
			if found && from == s {
				rec[tr.Field] = to
				return nil
			}
		}
	case TransformScale:
		d, err := toDecimal(val)
		if err != nil {
			return NewValidationError(string(tr.Kind), tr.Field, "value is not numeric")
		}
		factor, err := decimal.NewFromString(tr.Args["factor"])
		if err != nil {
			return NewValidationError(string(tr.Kind), tr.Field, "invalid scale factor")
		}
		rec[tr.Field] = d.Mul(factor).String()
	case TransformRound:
		d, err := toDecimal(val)
		if err != nil {
			return NewValidationError(string(tr.Kind), tr.Field, "value is not numeric")
		}
		var places int32
		if _, err := fmt.Sscanf(tr.Args["places"], "%d", &places); err != nil {
			return NewValidationError(string(tr.Kind), tr.Field, "invalid round places")
		}
		rec[tr.Field] = d.Round(places).String()
	case TransformTimeFormat:
		layout := tr.Args["layout"]
		if layout == "" {
			layout = time.RFC3339
		}
		switch v := val.(type) {
		case time.Time:
			rec[tr.Field] = v.Format(layout)
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				rec[tr.Field] = t.Format(layout)
			}
		}
	}
	return nil
}

// toDecimal coerces common record value types into a decimal
func toDecimal(val any) (decimal.Decimal, error) {
	switch v := val.(type) {
	case string:
		return decimal.NewFromString(v)
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("integration: cannot convert %T to decimal", val)
	}
}

// ---------------------------------------------------------------------------
// Validation Rules
// ---------------------------------------------------------------------------

func checkRule(rec Record, rule ValidationRule) error {
	val, present := rec[rule.Field]

	switch rule.Kind {
	case RuleRequired:
		if !present || val == nil || val == "" {
			return NewValidationError(rule.Name, rule.Field, "field is required")
		}
	case RuleNumeric:
		if !present {
			return nil
		}
		if _, err := toDecimal(val); err != nil {
			return NewValidationError(rule.Name, rule.Field, "field must be numeric")
		}
	case RuleMaxLength:
		s, ok := val.(string)
		if !ok {
			return nil
		}
		var max int
		if _, err := fmt.Sscanf(rule.Args["max"], "%d", &max); err != nil {
			return nil
		}
		if len(s) > max {
			return NewValidationError(rule.Name, rule.Field, fmt.Sprintf("length exceeds %d", max))
		}
	case RulePattern:
		s, ok := val.(string)
		if !ok {
			return nil
		}
		re, err := regexp.Compile(rule.Args["pattern"])
		if err != nil {
			return nil
		}
		if !re.MatchString(s) {
			return NewValidationError(rule.Name, rule.Field, "value does not match pattern")
		}
	case RuleOneOf:
		s, ok := val.(string)
		if !ok {
			return nil
		}
		for _, allowed := range strings.Split(rule.Args["values"], ";") {
			if s == allowed {
				return nil
			}
		}
		return NewValidationError(rule.Name, rule.Field, "value is not in the allowed set")
	}
	return nil
}
