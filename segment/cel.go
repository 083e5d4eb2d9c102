package segment

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// CEL variables available to exported expressions.
const (
	CELFacts       = "facts"
	CELEngagements = "engagements"
	CELNow         = "now"
)

// NewCELEnv creates the CEL environment exported audience expressions are
// checked against. facts maps fact id to its property map, engagements is a
// list of {type, timestamp, properties} maps and now is the evaluation
// instant. sum, avg, least and greatest reduce a list to a double using its
// numeric elements.
func NewCELEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable(CELFacts, cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable(CELEngagements, cel.ListType(cel.DynType)),
		cel.Variable(CELNow, cel.TimestampType),
		cel.CrossTypeNumericComparisons(true),
		listReducer("sum", func(nums []float64) float64 { return sum(nums) }),
		listReducer("avg", func(nums []float64) float64 {
			if len(nums) == 0 {
				return 0
			}
			return sum(nums) / float64(len(nums))
		}),
		listReducer("least", func(nums []float64) float64 {
			if len(nums) == 0 {
				return 0
			}
			m := nums[0]
			for _, n := range nums[1:] {
				m = min(m, n)
			}
			return m
		}),
		listReducer("greatest", func(nums []float64) float64 {
			if len(nums) == 0 {
				return 0
			}
			m := nums[0]
			for _, n := range nums[1:] {
				m = max(m, n)
			}
			return m
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

func listReducer(name string, reduce func([]float64) float64) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(name+"_list_dyn",
			[]*cel.Type{cel.ListType(cel.DynType)},
			cel.DoubleType,
			cel.UnaryBinding(func(v ref.Val) ref.Val {
				l, ok := v.(traits.Lister)
				if !ok {
					return types.MaybeNoSuchOverloadErr(v)
				}
				var nums []float64
				for it := l.Iterator(); it.HasNext() == types.True; {
					switch n := it.Next().(type) {
					case types.Double:
						nums = append(nums, float64(n))
					case types.Int:
						nums = append(nums, float64(n))
					case types.Uint:
						nums = append(nums, float64(n))
					}
				}
				return types.Double(reduce(nums))
			}),
		),
	)
}

// CELActivation builds the input of an exported expression for one customer.
// Values go through the same coercion as the evaluator, so numbers are
// doubles and ISO timestamps are timestamps. Malformed timestamps are left
// out, which fails every predicate on them as the evaluator does.
func CELActivation(c Customer, now time.Time) map[string]any {
	facts := make(map[string]any, len(c.Facts))
	for id, props := range c.Facts {
		m := make(map[string]any, len(props))
		for k, v := range props {
			if cv := coerce(v); cv != nil && cv != (invalidDate{}) {
				m[k] = cv
			}
		}
		facts[id] = m
	}

	engagements := make([]any, 0, len(c.Engagements))
	for _, e := range c.Engagements {
		props := make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			if cv := coerce(v); cv != nil && cv != (invalidDate{}) {
				props[k] = cv
			}
		}
		engagements = append(engagements, map[string]any{
			"type":       e.Type,
			"timestamp":  e.Timestamp,
			"properties": props,
		})
	}

	return map[string]any{
		CELFacts:       facts,
		CELEngagements: engagements,
		CELNow:         now,
	}
}

// ToCEL renders a condition tree as a CEL boolean expression over the
// variables declared by NewCELEnv. A nil or empty group renders as true.
func ToCEL(group *ConditionGroup) (string, error) {
	return renderCondition(group)
}

func renderCondition(c Condition) (string, error) {
	switch x := c.(type) {
	case *ConditionGroup:
		if x == nil || len(x.Conditions) == 0 {
			return "true", nil
		}
		sep := " || "
		if x.Operator == And {
			sep = " && "
		}
		parts := make([]string, 0, len(x.Conditions))
		for _, child := range x.Conditions {
			s, err := renderCondition(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		if len(parts) == 1 {
			return parts[0], nil
		}
		return "(" + strings.Join(parts, sep) + ")", nil

	case *FactCondition:
		if x == nil {
			return "false", nil
		}
		field, prop := strconv.Quote(x.Field), strconv.Quote(x.Property)
		access := fmt.Sprintf("%s[%s][%s]", CELFacts, field, prop)
		pred, err := renderPredicate(access, x.Operator, x.Value)
		if err != nil {
			return "", fmt.Errorf("fact %s.%s: %w", x.Field, x.Property, err)
		}
		return fmt.Sprintf("(%s in %s && %s in %s[%s] && %s)", field, CELFacts, prop, CELFacts, field, pred), nil

	case *EngagementCondition:
		if x == nil {
			return "false", nil
		}
		s, err := renderEngagement(x)
		if err != nil {
			return "", fmt.Errorf("engagement %s: %w", x.Engagement, err)
		}
		return s, nil
	}
	return "false", nil
}

func renderEngagement(c *EngagementCondition) (string, error) {
	filter := fmt.Sprintf("e.type == %s", strconv.Quote(c.Engagement))
	if d, ok := c.TimeWindow.Duration(); ok {
		filter += fmt.Sprintf(" && e.timestamp >= %s - duration(%q)", CELNow, formatDuration(d))
	}
	selected := fmt.Sprintf("%s.filter(e, %s)", CELEngagements, filter)

	if c.Property == "" {
		return renderPredicate(fmt.Sprintf("double(size(%s))", selected), c.Operator, c.Value)
	}

	prop := strconv.Quote(c.Property)
	values := fmt.Sprintf("%s.filter(e, %s in e.properties && e.properties[%s] != null).map(e, e.properties[%s])",
		selected, prop, prop, prop)

	if c.Aggregation == "" {
		pred, err := renderPredicate("v", c.Operator, c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.exists(v, %s)", values, pred), nil
	}

	var agg string
	switch c.Aggregation {
	case AggSum:
		agg = "sum(" + values + ")"
	case AggAvg:
		agg = "avg(" + values + ")"
	case AggMin:
		agg = "least(" + values + ")"
	case AggMax:
		agg = "greatest(" + values + ")"
	default:
		agg = "double(size(" + values + "))"
	}
	pred, err := renderPredicate(agg, c.Operator, c.Value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(size(%s) > 0 && %s)", values, pred), nil
}

// renderPredicate mirrors compareAt for an operand expression x. Operator
// and value combinations the evaluator never matches render as false.
func renderPredicate(x string, op Operator, value any) (string, error) {
	switch op {
	case OpIsTrue:
		return x + " == true", nil
	case OpIsFalse:
		return x + " == false", nil

	case OpLast7Days, OpLast30Days, OpLast90Days, OpLastYear:
		d, _ := TimeWindow(op).Duration()
		return fmt.Sprintf("timestamp(%s) >= %s - duration(%q)", x, CELNow, formatDuration(d)), nil

	case OpAllTime, OpCustomRange:
		return fmt.Sprintf("timestamp(%s) >= timestamp(%q)", x, "0001-01-01T00:00:00Z"), nil

	case OpBefore, OpAfter:
		t, ok := coerce(value).(time.Time)
		if !ok {
			return "false", nil
		}
		cmp := "<"
		if op == OpAfter {
			cmp = ">"
		}
		return fmt.Sprintf("timestamp(%s) %s %s", x, cmp, timestampLiteral(t)), nil

	case OpBetween:
		lo, hi, ok := pair(value)
		if !ok {
			return "false", nil
		}
		lo, hi = coerce(lo), coerce(hi)
		if lt, ok := lo.(time.Time); ok {
			ht, ok := hi.(time.Time)
			if !ok {
				return "false", nil
			}
			return fmt.Sprintf("(timestamp(%s) >= %s && timestamp(%s) <= %s)",
				x, timestampLiteral(lt), x, timestampLiteral(ht)), nil
		}
		lf, ok1 := lo.(float64)
		hf, ok2 := hi.(float64)
		if !ok1 || !ok2 {
			return "false", nil
		}
		return fmt.Sprintf("(%s >= %s && %s <= %s)", x, doubleLiteral(lf), x, doubleLiteral(hf)), nil
	}

	switch v := coerce(value).(type) {
	case string:
		lit := strconv.Quote(v)
		switch op {
		case OpEquals:
			return x + " == " + lit, nil
		case OpNotEquals:
			return x + " != " + lit, nil
		case OpContains:
			return fmt.Sprintf("%s.matches(%s)", x, strconv.Quote("(?i)"+regexp.QuoteMeta(v))), nil
		case OpStartsWith:
			return fmt.Sprintf("%s.matches(%s)", x, strconv.Quote("(?i)^"+regexp.QuoteMeta(v))), nil
		case OpEndsWith:
			return fmt.Sprintf("%s.matches(%s)", x, strconv.Quote("(?i)"+regexp.QuoteMeta(v)+"$")), nil
		}
		return "false", nil

	case float64:
		cmp, ok := numericOps[op]
		if !ok {
			return "false", nil
		}
		return fmt.Sprintf("%s %s %s", x, cmp, doubleLiteral(v)), nil

	case bool:
		switch op {
		case OpEquals:
			return fmt.Sprintf("%s == %t", x, v), nil
		case OpNotEquals:
			return fmt.Sprintf("%s != %t", x, v), nil
		}
		return "false", nil

	case time.Time, invalidDate, nil:
		return "false", nil
	}

	return "", fmt.Errorf("unsupported value %v (%T) for operator %s", value, value, op)
}

var numericOps = map[Operator]string{
	OpEquals:             "==",
	OpNotEquals:          "!=",
	OpGreaterThan:        ">",
	OpLessThan:           "<",
	OpGreaterThanOrEqual: ">=",
	OpLessThanOrEqual:    "<=",
}

// doubleLiteral always renders a double, never an int literal.
func doubleLiteral(f float64) string {
	switch {
	case math.IsNaN(f):
		return `double("NaN")`
	case math.IsInf(f, 1):
		return `double("Infinity")`
	case math.IsInf(f, -1):
		return `double("-Infinity")`
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func timestampLiteral(t time.Time) string {
	return fmt.Sprintf("timestamp(%q)", t.UTC().Format(time.RFC3339Nano))
}

func formatDuration(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10) + "s"
}
