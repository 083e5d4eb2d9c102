package segment

import "time"

// Evaluator evaluates conditions at a fixed instant. Relative time windows
// are resolved against that instant, so a whole population scan sees one
// consistent "now". An Evaluator holds no mutable state and is safe for
// concurrent use.
type Evaluator struct {
	now time.Time
}

// NewEvaluator returns an evaluator pinned to now.
func NewEvaluator(now time.Time) *Evaluator {
	return &Evaluator{now: now}
}

// Now returns the instant relative windows are resolved against.
func (ev *Evaluator) Now() time.Time {
	return ev.now
}

// Evaluate reports whether customer satisfies condition, using the wall clock.
func Evaluate(customer Customer, condition Condition) bool {
	return NewEvaluator(time.Now()).Evaluate(customer, condition)
}

// Compare is the value comparator resolved against the evaluator's instant.
func (ev *Evaluator) Compare(actual any, op Operator, expected any) bool {
	return compareAt(actual, op, expected, ev.now)
}

// Evaluate reports whether customer satisfies condition. A nil condition
// matches nobody; a nil group behaves as the empty group.
func (ev *Evaluator) Evaluate(customer Customer, condition Condition) bool {
	switch c := condition.(type) {
	case *ConditionGroup:
		return ev.evaluateGroup(customer, c)
	case *FactCondition:
		if c == nil {
			return false
		}
		return ev.evaluateFact(customer, c)
	case *EngagementCondition:
		if c == nil {
			return false
		}
		return ev.evaluateEngagement(customer, c)
	}
	return false
}

func (ev *Evaluator) evaluateGroup(customer Customer, g *ConditionGroup) bool {
	if g == nil || len(g.Conditions) == 0 {
		return true
	}

	// Anything other than AND combines as OR.
	if g.Operator == And {
		for _, child := range g.Conditions {
			if !ev.Evaluate(customer, child) {
				return false
			}
		}
		return true
	}

	for _, child := range g.Conditions {
		if ev.Evaluate(customer, child) {
			return true
		}
	}
	return false
}

func (ev *Evaluator) evaluateFact(customer Customer, c *FactCondition) bool {
	fact, ok := customer.Facts[c.Field]
	if !ok || fact == nil {
		return false
	}

	value, ok := fact[c.Property]
	if !ok || value == nil {
		return false
	}

	return ev.Compare(value, c.Operator, c.Value)
}

func (ev *Evaluator) evaluateEngagement(customer Customer, c *EngagementCondition) bool {
	cutoff, bounded := ResolveTimeWindow(c.TimeWindow, ev.now)

	var selected []Engagement
	for _, e := range customer.Engagements {
		if e.Type != c.Engagement {
			continue
		}
		if bounded && e.Timestamp.Before(cutoff) {
			continue
		}
		selected = append(selected, e)
	}

	if c.Property == "" {
		return ev.Compare(float64(len(selected)), c.Operator, c.Value)
	}

	values := make([]any, 0, len(selected))
	for _, e := range selected {
		if v, ok := e.Properties[c.Property]; ok && v != nil {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return false
	}

	if c.Aggregation != "" {
		return ev.Compare(aggregate(values, c.Aggregation), c.Operator, c.Value)
	}

	for _, v := range values {
		if ev.Compare(v, c.Operator, c.Value) {
			return true
		}
	}
	return false
}

// aggregate reduces extracted values to one number. count counts every
// value; the others use the numeric subset and yield 0 when it is empty.
// Unknown aggregations count.
func aggregate(values []any, agg Aggregation) float64 {
	if agg == AggCount {
		return float64(len(values))
	}

	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := coerce(v).(float64); ok {
			nums = append(nums, f)
		}
	}

	switch agg {
	case AggSum:
		return sum(nums)
	case AggAvg:
		if len(nums) == 0 {
			return 0
		}
		return sum(nums) / float64(len(nums))
	case AggMin:
		if len(nums) == 0 {
			return 0
		}
		m := nums[0]
		for _, n := range nums[1:] {
			m = min(m, n)
		}
		return m
	case AggMax:
		if len(nums) == 0 {
			return 0
		}
		m := nums[0]
		for _, n := range nums[1:] {
			m = max(m, n)
		}
		return m
	}
	return float64(len(values))
}

func sum(nums []float64) float64 {
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total
}
