package segment

import (
	"testing"
	"time"
)

func ordersCustomer(id string, orders float64) Customer {
	return Customer{
		ID: id,
		Facts: map[string]map[string]any{
			"purchaseHistory": {"total_orders": orders},
		},
	}
}

func purchase(ago time.Duration, amount float64) Engagement {
	return Engagement{
		Type:       "purchase",
		Timestamp:  refNow.Add(-ago),
		Properties: map[string]any{"amount": amount, "channel": "web"},
	}
}

func ids(customers []Customer) []string {
	out := make([]string, len(customers))
	for i, c := range customers {
		out[i] = c.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEmptyGroupMatchesEveryone(t *testing.T) {
	ev := NewEvaluator(refNow)
	customers := []Customer{
		ordersCustomer("c1", 5),
		{ID: "empty"},
	}

	for _, op := range []LogicalOperator{And, Or} {
		group := &ConditionGroup{Operator: op}
		for _, c := range customers {
			if !ev.Evaluate(c, group) {
				t.Errorf("empty %s group should match customer %s", op, c.ID)
			}
		}
	}

	var nilGroup *ConditionGroup
	if !ev.Evaluate(customers[0], nilGroup) {
		t.Error("nil group should behave as the empty group")
	}
	if ev.Evaluate(customers[0], nil) {
		t.Error("nil condition should not match")
	}
}

// Fact condition on a population of three.
func TestFactConditionScenario(t *testing.T) {
	customers := []Customer{
		ordersCustomer("c1", 5),
		ordersCustomer("c2", 0),
		ordersCustomer("c3", 2),
	}
	group := AllOf(&FactCondition{
		Field:    "purchaseHistory",
		Property: "total_orders",
		Operator: OpGreaterThanOrEqual,
		Value:    1.0,
	})

	ev := NewEvaluator(refNow)
	matched := ev.Filter(customers, group)
	if want := []string{"c1", "c3"}; !equalIDs(ids(matched), want) {
		t.Errorf("Filter() = %v, want %v", ids(matched), want)
	}
	if n := ev.Size(customers, group); n != 2 {
		t.Errorf("Size() = %d, want 2", n)
	}
}

// Engagement count inside a 30 day window.
func TestEngagementWindowScenario(t *testing.T) {
	customers := []Customer{
		{ID: "c1", Engagements: []Engagement{purchase(3*day, 20)}},
		{ID: "c2", Engagements: []Engagement{purchase(40*day, 20)}},
	}
	group := AllOf(&EngagementCondition{
		Engagement: "purchase",
		Operator:   OpGreaterThanOrEqual,
		Value:      1.0,
		TimeWindow: WindowLast30Days,
	})

	ev := NewEvaluator(refNow)
	matched := ev.Filter(customers, group)
	if want := []string{"c1"}; !equalIDs(ids(matched), want) {
		t.Errorf("Filter() = %v, want %v", ids(matched), want)
	}
}

// AND section: both conditions must hold.
func TestAllOfScenario(t *testing.T) {
	person := func(id string, age float64, country string) Customer {
		return Customer{ID: id, Facts: map[string]map[string]any{
			"demographics": {"age": age, "country": country},
		}}
	}
	group := AllOf(
		&FactCondition{Field: "demographics", Property: "age", Operator: OpGreaterThanOrEqual, Value: 30.0},
		&FactCondition{Field: "demographics", Property: "country", Operator: OpEquals, Value: "US"},
	)

	ev := NewEvaluator(refNow)
	if ev.Evaluate(person("young", 25, "US"), group) {
		t.Error("age 25 should not match")
	}
	if !ev.Evaluate(person("older", 35, "US"), group) {
		t.Error("age 35 in US should match")
	}
	if ev.Evaluate(person("abroad", 35, "CA"), group) {
		t.Error("age 35 in CA should not match")
	}
	if !ev.Evaluate(person("abroad", 35, "CA"), AnyOf(group.Conditions...)) {
		t.Error("OR group should match when one condition holds")
	}
}

func TestFactConditionMissingData(t *testing.T) {
	ev := NewEvaluator(refNow)
	cond := &FactCondition{Field: "purchaseHistory", Property: "total_orders", Operator: OpGreaterThanOrEqual, Value: 0.0}

	tests := []struct {
		name     string
		customer Customer
	}{
		{"no facts", Customer{ID: "a"}},
		{"fact missing", Customer{ID: "b", Facts: map[string]map[string]any{"other": {"x": 1.0}}}},
		{"property missing", Customer{ID: "c", Facts: map[string]map[string]any{"purchaseHistory": {}}}},
		{"property nil", Customer{ID: "d", Facts: map[string]map[string]any{"purchaseHistory": {"total_orders": nil}}}},
	}
	for _, tt := range tests {
		if ev.Evaluate(tt.customer, cond) {
			t.Errorf("%s: condition should be false", tt.name)
		}
	}
}

func TestEngagementConditionProperties(t *testing.T) {
	ev := NewEvaluator(refNow)
	c := Customer{ID: "c1", Engagements: []Engagement{
		purchase(2*day, 10),
		purchase(5*day, 30),
		purchase(60*day, 500),
		{Type: "purchase", Timestamp: refNow.Add(-day), Properties: map[string]any{"amount": "n/a"}},
		{Type: "pageView", Timestamp: refNow.Add(-day), Properties: map[string]any{"amount": 1000.0}},
	}}

	tests := []struct {
		name string
		cond *EngagementCondition
		want bool
	}{
		{"any value matches", &EngagementCondition{Engagement: "purchase", Property: "amount", Operator: OpGreaterThan, Value: 25.0, TimeWindow: WindowLast30Days}, true},
		{"window hides old value", &EngagementCondition{Engagement: "purchase", Property: "amount", Operator: OpGreaterThan, Value: 100.0, TimeWindow: WindowLast30Days}, false},
		{"all time sees old value", &EngagementCondition{Engagement: "purchase", Property: "amount", Operator: OpGreaterThan, Value: 100.0, TimeWindow: WindowAllTime}, true},
		{"sum uses numeric values", &EngagementCondition{Engagement: "purchase", Property: "amount", Operator: OpEquals, Value: 40.0, TimeWindow: WindowLast30Days, Aggregation: AggSum}, true},
		{"avg", &EngagementCondition{Engagement: "purchase", Property: "amount", Operator: OpEquals, Value: 20.0, TimeWindow: WindowLast30Days, Aggregation: AggAvg}, true},
		{"min", &EngagementCondition{Engagement: "purchase", Property: "amount", Operator: OpEquals, Value: 10.0, TimeWindow: WindowLast30Days, Aggregation: AggMin}, true},
		{"max", &EngagementCondition{Engagement: "purchase", Property: "amount", Operator: OpEquals, Value: 500.0, TimeWindow: WindowAllTime, Aggregation: AggMax}, true},
		{"count includes non-numeric values", &EngagementCondition{Engagement: "purchase", Property: "amount", Operator: OpEquals, Value: 3.0, TimeWindow: WindowLast30Days, Aggregation: AggCount}, true},
		{"missing property is false", &EngagementCondition{Engagement: "purchase", Property: "coupon", Operator: OpGreaterThanOrEqual, Value: 0.0, TimeWindow: WindowAllTime}, false},
		{"unknown engagement count is zero", &EngagementCondition{Engagement: "refund", Operator: OpEquals, Value: 0.0, TimeWindow: WindowAllTime}, true},
		{"custom range is unbounded", &EngagementCondition{Engagement: "purchase", Operator: OpEquals, Value: 4.0, TimeWindow: WindowCustomRange}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ev.Evaluate(c, tt.cond); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

// A count-only condition behaves like an explicit count aggregation over a
// property every engagement carries.
func TestCountOnlyEqualsCountAggregation(t *testing.T) {
	ev := NewEvaluator(refNow)
	customers := []Customer{
		{ID: "none"},
		{ID: "one", Engagements: []Engagement{purchase(day, 5)}},
		{ID: "three", Engagements: []Engagement{purchase(day, 5), purchase(2*day, 6), purchase(3*day, 7)}},
		{ID: "old", Engagements: []Engagement{purchase(100*day, 5)}},
	}

	for _, threshold := range []float64{1, 2, 3} {
		countOnly := &EngagementCondition{Engagement: "purchase", Operator: OpGreaterThanOrEqual, Value: threshold, TimeWindow: WindowLast30Days}
		explicit := &EngagementCondition{Engagement: "purchase", Property: "channel", Operator: OpGreaterThanOrEqual, Value: threshold, TimeWindow: WindowLast30Days, Aggregation: AggCount}

		for _, c := range customers {
			if a, b := ev.Evaluate(c, countOnly), ev.Evaluate(c, explicit); a != b {
				t.Errorf("customer %s threshold %v: count-only %v, explicit count %v", c.ID, threshold, a, b)
			}
		}
	}
}

// A customer whose latest engagement is more recent never matches fewer
// relative windows than a less recent one.
func TestRelativeWindowsAreMonotonic(t *testing.T) {
	ev := NewEvaluator(refNow)
	ages := []time.Duration{day, 10 * day, 45 * day, 120 * day, 400 * day}
	windows := []TimeWindow{WindowLast7Days, WindowLast30Days, WindowLast90Days, WindowLastYear}

	for _, w := range windows {
		prev := true
		for _, age := range ages {
			c := Customer{ID: "c", Engagements: []Engagement{purchase(age, 1)}}
			cond := &EngagementCondition{Engagement: "purchase", Operator: OpGreaterThanOrEqual, Value: 1.0, TimeWindow: w}
			got := ev.Evaluate(c, cond)
			if got && !prev {
				t.Errorf("window %s: engagement %v ago matches but a more recent one did not", w, age)
			}
			prev = got
		}
	}
}

func TestSizeIsIdempotent(t *testing.T) {
	customers := []Customer{
		ordersCustomer("c1", 5),
		ordersCustomer("c2", 0),
		ordersCustomer("c3", 2),
	}
	group := AllOf(&FactCondition{Field: "purchaseHistory", Property: "total_orders", Operator: OpGreaterThan, Value: 1.0})

	ev := NewEvaluator(refNow)
	first := ev.Size(customers, group)
	second := ev.Size(customers, group)
	if first != second {
		t.Errorf("Size() not idempotent: %d then %d", first, second)
	}
}

func TestNestedGroups(t *testing.T) {
	ev := NewEvaluator(refNow)
	c := Customer{
		ID: "c1",
		Facts: map[string]map[string]any{
			"demographics": {"country": "US", "vip": true},
		},
		Engagements: []Engagement{purchase(day, 50)},
	}

	group := AllOf(
		&FactCondition{Field: "demographics", Property: "country", Operator: OpEquals, Value: "US"},
		AnyOf(
			&FactCondition{Field: "demographics", Property: "vip", Operator: OpIsFalse},
			&EngagementCondition{Engagement: "purchase", Property: "amount", Operator: OpGreaterThan, Value: 40.0, TimeWindow: WindowLast7Days},
		),
	)
	if !ev.Evaluate(c, group) {
		t.Error("nested group should match")
	}
}
