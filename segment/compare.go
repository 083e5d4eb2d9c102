package segment

import (
	"strings"
	"time"
)

// Compare reports whether actual satisfies op against expected, using the
// wall clock for relative-time operators. Unsupported operator and type
// combinations are false.
func Compare(actual any, op Operator, expected any) bool {
	return compareAt(actual, op, expected, time.Now())
}

func compareAt(actual any, op Operator, expected any, now time.Time) bool {
	a := coerce(actual)

	switch op {
	case OpBefore, OpAfter:
		at, ok := a.(time.Time)
		if !ok {
			return false
		}
		et, ok := coerce(expected).(time.Time)
		if !ok {
			return false
		}
		if op == OpBefore {
			return at.Before(et)
		}
		return at.After(et)

	case OpBetween:
		return between(a, expected)

	case OpLast7Days, OpLast30Days, OpLast90Days, OpLastYear:
		at, ok := a.(time.Time)
		if !ok {
			return false
		}
		cutoff, bounded := ResolveTimeWindow(TimeWindow(op), now)
		return !bounded || !at.Before(cutoff)

	case OpAllTime, OpCustomRange:
		// Windows without a lower bound accept every date.
		_, ok := a.(time.Time)
		return ok
	}

	e := coerce(expected)

	switch x := a.(type) {
	case string:
		y, ok := e.(string)
		if !ok {
			return false
		}
		return compareStrings(x, op, y)
	case float64:
		y, ok := e.(float64)
		if !ok {
			return false
		}
		return compareNumbers(x, op, y)
	case bool:
		switch op {
		case OpIsTrue:
			return x
		case OpIsFalse:
			return !x
		case OpEquals:
			y, ok := e.(bool)
			return ok && x == y
		case OpNotEquals:
			y, ok := e.(bool)
			return ok && x != y
		}
	}

	return false
}

func between(actual any, expected any) bool {
	lo, hi, ok := pair(expected)
	if !ok {
		return false
	}
	lo, hi = coerce(lo), coerce(hi)

	switch x := actual.(type) {
	case float64:
		l, ok1 := lo.(float64)
		h, ok2 := hi.(float64)
		return ok1 && ok2 && x >= l && x <= h
	case time.Time:
		l, ok1 := lo.(time.Time)
		h, ok2 := hi.(time.Time)
		return ok1 && ok2 && !x.Before(l) && !x.After(h)
	}
	return false
}

func compareStrings(a string, op Operator, b string) bool {
	switch op {
	case OpEquals:
		return a == b
	case OpNotEquals:
		return a != b
	case OpContains:
		return strings.Contains(strings.ToLower(a), strings.ToLower(b))
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(a), strings.ToLower(b))
	case OpEndsWith:
		return strings.HasSuffix(strings.ToLower(a), strings.ToLower(b))
	}
	return false
}

func compareNumbers(a float64, op Operator, b float64) bool {
	switch op {
	case OpEquals:
		return a == b
	case OpNotEquals:
		return a != b
	case OpGreaterThan:
		return a > b
	case OpLessThan:
		return a < b
	case OpGreaterThanOrEqual:
		return a >= b
	case OpLessThanOrEqual:
		return a <= b
	}
	return false
}
