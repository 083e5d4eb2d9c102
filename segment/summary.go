package segment

import (
	"fmt"
	"strconv"
	"strings"
)

var operatorLabels = map[Operator]string{
	OpEquals:             "equals",
	OpNotEquals:          "does not equal",
	OpContains:           "contains",
	OpStartsWith:         "starts with",
	OpEndsWith:           "ends with",
	OpGreaterThan:        "is greater than",
	OpLessThan:           "is less than",
	OpGreaterThanOrEqual: "is at least",
	OpLessThanOrEqual:    "is at most",
	OpBetween:            "is between",
	OpIsTrue:             "is true",
	OpIsFalse:            "is false",
	OpBefore:             "is before",
	OpAfter:              "is after",
	OpLast7Days:          "in the last 7 days",
	OpLast30Days:         "in the last 30 days",
	OpLast90Days:         "in the last 90 days",
	OpLastYear:           "in the last year",
	OpAllTime:            "all time",
}

var windowLabels = map[TimeWindow]string{
	WindowLast7Days:   "in the last 7 days",
	WindowLast30Days:  "in the last 30 days",
	WindowLast90Days:  "in the last 90 days",
	WindowLastYear:    "in the last year",
	WindowAllTime:     "all time",
	WindowCustomRange: "in custom range",
}

// Label is the human-readable form of op, or op itself when it has none.
func (op Operator) Label() string {
	if l, ok := operatorLabels[op]; ok {
		return l
	}
	return string(op)
}

// Label is the human-readable form of w.
func (w TimeWindow) Label() string {
	return windowLabels[w]
}

// RuleSentence renders a rule as a short sentence such as
// "Total orders is at least 5" or "Exclude if Country equals US".
func RuleSentence(r Rule) string {
	parts := make([]string, 0, 5)
	if r.Excluded {
		parts = append(parts, "Exclude if")
	}
	parts = append(parts, r.PropertyName)

	switch {
	case r.Operator == "":
	case !r.Operator.RequiresValue():
		parts = append(parts, r.Operator.Label())
	case r.Operator == OpBetween && r.Value != nil && r.Value2 != nil:
		parts = append(parts, r.Operator.Label(), formatValue(r.Value), "and", formatValue(r.Value2))
	case r.Value != nil:
		parts = append(parts, r.Operator.Label(), formatValue(r.Value))
	}

	return strings.TrimSpace(strings.Join(parts, " "))
}

// SectionSummary renders the heading sentence of a section, for example
// "Entry all of the following in the last 30 days".
func SectionSummary(sec Section) string {
	if len(sec.Items) == 0 {
		return sec.Title + " (no rules)"
	}

	match := "any of"
	if sec.MatchType == MatchAll {
		match = "all of"
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s the following %s", sec.Title, match, sec.TimePeriod.Label()))
}

// Describe renders a section and its rules, one sentence per line. Nested
// groups are indented.
func Describe(sec Section) string {
	var b strings.Builder
	b.WriteString(SectionSummary(sec))
	describeItems(&b, sec.Items, 1)
	return b.String()
}

func describeItems(b *strings.Builder, items []Item, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, it := range items {
		switch {
		case it.Rule != nil:
			b.WriteString("\n" + indent + "- " + RuleSentence(*it.Rule))
			if it.Rule.Disabled {
				b.WriteString(" (disabled)")
			}
		case it.Group != nil:
			match := "any of"
			if it.Group.MatchType == MatchAll {
				match = "all of"
			}
			b.WriteString("\n" + indent + "- " + match)
			describeItems(b, it.Group.Items, depth+1)
		}
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
