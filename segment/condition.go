package segment

import (
	"encoding/json"
	"fmt"
)

// ConditionKind tags the variants of Condition.
type ConditionKind string

const (
	KindFact       ConditionKind = "fact"
	KindEngagement ConditionKind = "engagement"
	KindGroup      ConditionKind = "group"
)

// Condition is a single predicate or a boolean combination of predicates.
// The set of implementations is closed: *FactCondition,
// *EngagementCondition and *ConditionGroup.
type Condition interface {
	Kind() ConditionKind
	sealed()
}

// FactCondition tests one property of one fact.
type FactCondition struct {
	Field    string   `json:"field"`
	Property string   `json:"property"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// EngagementCondition tests a customer's engagements of one type. Without
// Property it compares the number of matching engagements with Value.
type EngagementCondition struct {
	Engagement  string      `json:"engagement"`
	Property    string      `json:"property,omitempty"`
	Operator    Operator    `json:"operator"`
	Value       any         `json:"value"`
	TimeWindow  TimeWindow  `json:"timeWindow"`
	Aggregation Aggregation `json:"aggregation,omitempty"`
}

// ConditionGroup combines child conditions with AND or OR. An empty group
// matches every customer.
type ConditionGroup struct {
	Operator   LogicalOperator `json:"operator"`
	Conditions []Condition     `json:"conditions"`
}

func (*FactCondition) Kind() ConditionKind       { return KindFact }
func (*EngagementCondition) Kind() ConditionKind { return KindEngagement }
func (*ConditionGroup) Kind() ConditionKind      { return KindGroup }

func (*FactCondition) sealed()       {}
func (*EngagementCondition) sealed() {}
func (*ConditionGroup) sealed()      {}

// AllOf returns an AND group of the given conditions.
func AllOf(conds ...Condition) *ConditionGroup {
	return &ConditionGroup{Operator: And, Conditions: conds}
}

// AnyOf returns an OR group of the given conditions.
func AnyOf(conds ...Condition) *ConditionGroup {
	return &ConditionGroup{Operator: Or, Conditions: conds}
}

// MatchEveryone returns the empty group that every customer satisfies.
func MatchEveryone() *ConditionGroup {
	return &ConditionGroup{Operator: And, Conditions: []Condition{}}
}

func (c *FactCondition) MarshalJSON() ([]byte, error) {
	type alias FactCondition
	return json.Marshal(struct {
		Type ConditionKind `json:"type"`
		*alias
	}{KindFact, (*alias)(c)})
}

func (c *EngagementCondition) MarshalJSON() ([]byte, error) {
	type alias EngagementCondition
	return json.Marshal(struct {
		Type ConditionKind `json:"type"`
		*alias
	}{KindEngagement, (*alias)(c)})
}

func (g *ConditionGroup) MarshalJSON() ([]byte, error) {
	conds := g.Conditions
	if conds == nil {
		conds = []Condition{}
	}
	return json.Marshal(struct {
		Operator   LogicalOperator `json:"operator"`
		Conditions []Condition     `json:"conditions"`
	}{g.Operator, conds})
}

func (g *ConditionGroup) UnmarshalJSON(data []byte) error {
	var raw struct {
		Operator   LogicalOperator   `json:"operator"`
		Conditions []json.RawMessage `json:"conditions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	g.Operator = raw.Operator
	g.Conditions = make([]Condition, 0, len(raw.Conditions))
	for i, child := range raw.Conditions {
		c, err := DecodeCondition(child)
		if err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
		g.Conditions = append(g.Conditions, c)
	}
	return nil
}

// DecodeCondition decodes any Condition variant. Leaves are recognised by
// their "type" tag, groups by their "conditions" list.
func DecodeCondition(data []byte) (Condition, error) {
	var probe struct {
		Type       ConditionKind   `json:"type"`
		Conditions json.RawMessage `json:"conditions"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid condition: %w", err)
	}

	switch probe.Type {
	case KindFact:
		var c FactCondition
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("invalid fact condition: %w", err)
		}
		return &c, nil
	case KindEngagement:
		var c EngagementCondition
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("invalid engagement condition: %w", err)
		}
		return &c, nil
	case "", KindGroup:
		if probe.Conditions == nil {
			return nil, fmt.Errorf("condition has neither a type nor a conditions list")
		}
		var g ConditionGroup
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, err
		}
		return &g, nil
	default:
		return nil, fmt.Errorf("unknown condition type %q", probe.Type)
	}
}

// DecodeGroup decodes a top-level condition group.
func DecodeGroup(data []byte) (*ConditionGroup, error) {
	var g ConditionGroup
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("invalid condition group: %w", err)
	}
	return &g, nil
}
