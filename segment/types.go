// Package segment evaluates audience conditions against customer profiles.
//
// A condition tree is either built by hand or lowered from the editable
// sections of the audience builder (see Builder). Evaluation is pure: the
// same customer, condition and clock always give the same answer, and
// malformed input degrades to a non-match instead of an error.
package segment

import "time"

// Operator is a comparison applied between a customer value and a rule value.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "notEquals"
	OpGreaterThan        Operator = "greaterThan"
	OpLessThan           Operator = "lessThan"
	OpGreaterThanOrEqual Operator = "greaterThanOrEqual"
	OpLessThanOrEqual    Operator = "lessThanOrEqual"
	OpBetween            Operator = "between"
	OpContains           Operator = "contains"
	OpStartsWith         Operator = "startsWith"
	OpEndsWith           Operator = "endsWith"
	OpIsTrue             Operator = "isTrue"
	OpIsFalse            Operator = "isFalse"

	OpBefore      Operator = "before"
	OpAfter       Operator = "after"
	OpLast7Days   Operator = "last7days"
	OpLast30Days  Operator = "last30days"
	OpLast90Days  Operator = "last90days"
	OpLastYear    Operator = "lastYear"
	OpAllTime     Operator = "allTime"
	OpCustomRange Operator = "customRange"
)

// IsRelativeTime reports whether op compares a date against a lookback window.
func (op Operator) IsRelativeTime() bool {
	switch op {
	case OpLast7Days, OpLast30Days, OpLast90Days, OpLastYear:
		return true
	}
	return false
}

// RequiresValue reports whether a rule using op needs an operand.
func (op Operator) RequiresValue() bool {
	switch op {
	case OpIsTrue, OpIsFalse, OpLast7Days, OpLast30Days, OpLast90Days, OpLastYear, OpAllTime:
		return false
	}
	return true
}

// LogicalOperator combines the children of a ConditionGroup.
type LogicalOperator string

const (
	And LogicalOperator = "AND"
	Or  LogicalOperator = "OR"
)

// TimeWindow is a relative lookback period.
type TimeWindow string

const (
	WindowLast7Days   TimeWindow = "last7days"
	WindowLast30Days  TimeWindow = "last30days"
	WindowLast90Days  TimeWindow = "last90days"
	WindowLastYear    TimeWindow = "lastYear"
	WindowAllTime     TimeWindow = "allTime"
	WindowCustomRange TimeWindow = "customRange"
)

// Aggregation reduces the values of repeated engagements to one number.
type Aggregation string

const (
	AggCount Aggregation = "count"
	AggSum   Aggregation = "sum"
	AggAvg   Aggregation = "avg"
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
)

// Customer is one profile of the population.
type Customer struct {
	ID string `json:"id"`
	// Facts maps a fact definition id to that fact's property values.
	Facts       map[string]map[string]any `json:"facts"`
	Engagements []Engagement              `json:"engagements"`
}

// Engagement is a single timestamped event of a customer.
type Engagement struct {
	Type       string         `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	Properties map[string]any `json:"properties"`
}
