package segment

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/liamcoop/audiences/internal/logger"
	"github.com/liamcoop/audiences/schema"
)

// Builder lowers editor sections into condition trees against a schema.
type Builder struct {
	Schema *schema.Schema
}

// NewBuilder returns a builder resolving rule parents in s.
func NewBuilder(s *schema.Schema) *Builder {
	return &Builder{Schema: s}
}

// SectionsToConditionGroup builds the membership condition of an audience.
// Only the entry section decides membership; a missing or empty entry
// section yields the empty AND group, which matches every customer.
func SectionsToConditionGroup(sections []Section, s *schema.Schema) *ConditionGroup {
	return NewBuilder(s).Build(sections)
}

// Build returns the membership condition for sections.
func (b *Builder) Build(sections []Section) *ConditionGroup {
	entry, ok := FindSection(sections, SectionEntry)
	if !ok {
		return MatchEveryone()
	}
	return b.BuildSection(entry)
}

// BuildSections combines the named sections with AND. It is used when a
// caller explicitly asks for sections other than entry to be folded in.
// Sections that lower to an empty group are left out.
func (b *Builder) BuildSections(sections []Section, ids ...string) *ConditionGroup {
	out := MatchEveryone()
	for _, id := range ids {
		sec, ok := FindSection(sections, id)
		if !ok {
			continue
		}
		if g := b.BuildSection(sec); len(g.Conditions) > 0 {
			out.Conditions = append(out.Conditions, g)
		}
	}
	if len(out.Conditions) == 1 {
		if g, ok := out.Conditions[0].(*ConditionGroup); ok {
			return g
		}
	}
	return out
}

// BuildSection lowers one section. Incomplete rules are dropped, included
// rules become direct children and excluded rules are collected into a
// trailing AND subgroup. The subgroup keeps the rules' own polarity: the
// condition language has no negation.
func (b *Builder) BuildSection(sec Section) *ConditionGroup {
	window := sectionWindow(sec.TimePeriod)

	included, excluded := b.lowerItems(sec.Items, window)

	conds := included
	if len(excluded) > 0 {
		conds = append(conds, &ConditionGroup{Operator: And, Conditions: excluded})
	}
	if len(conds) == 0 {
		return MatchEveryone()
	}
	return &ConditionGroup{Operator: sec.MatchType.LogicalOperator(), Conditions: conds}
}

// lowerItems converts items in order. Rule groups become nested groups with
// their own match type; a group left with no conditions is dropped.
func (b *Builder) lowerItems(items []Item, window TimeWindow) (included, excluded []Condition) {
	for _, it := range items {
		switch {
		case it.Group != nil:
			in, ex := b.lowerItems(it.Group.Items, window)
			if len(ex) > 0 {
				in = append(in, &ConditionGroup{Operator: And, Conditions: ex})
			}
			if len(in) == 0 {
				continue
			}
			included = append(included, &ConditionGroup{
				Operator:   it.Group.MatchType.LogicalOperator(),
				Conditions: in,
			})

		case it.Rule != nil:
			r := *it.Rule
			if !r.IsComplete() {
				continue
			}
			c := b.ruleToCondition(r, window)
			if c == nil {
				continue
			}
			if r.Excluded {
				excluded = append(excluded, c)
			} else {
				included = append(included, c)
			}
		}
	}
	return included, excluded
}

func (b *Builder) ruleToCondition(r Rule, window TimeWindow) Condition {
	parent, ok := b.Schema.FindParent(r.ParentName)
	if !ok {
		logger.WarnSkippedRule("Rule parent not found", "rule_id", r.ID, "parent", r.ParentName)
		return nil
	}

	if parent.Kind == schema.ParentEngagement && r.PropertyID == "" {
		return &EngagementCondition{
			Engagement: parent.ID,
			Operator:   r.Operator,
			Value:      convertValue(r.Value, schema.DataTypeNumber),
			TimeWindow: window,
		}
	}

	prop, ok := schema.FindProperty(r.Properties, r.PropertyID)
	if !ok {
		prop, ok = parent.Property(r.PropertyID)
	}
	if !ok {
		logger.WarnSkippedRule("Rule property not found", "rule_id", r.ID, "parent", parent.ID, "property", r.PropertyID)
		return nil
	}

	value := convertValue(r.Value, prop.DataType)
	if r.Operator == OpBetween && r.Value2 != nil {
		value = []any{value, convertValue(r.Value2, prop.DataType)}
	}

	if parent.Kind == schema.ParentEngagement {
		return &EngagementCondition{
			Engagement: parent.ID,
			Property:   prop.ID,
			Operator:   r.Operator,
			Value:      value,
			TimeWindow: window,
		}
	}
	return &FactCondition{
		Field:    parent.ID,
		Property: prop.ID,
		Operator: r.Operator,
		Value:    value,
	}
}

// sectionWindow falls back to the last 30 days for an unset or unknown
// time period.
func sectionWindow(period TimeWindow) TimeWindow {
	if period.IsKnown() {
		return period
	}
	return WindowLast30Days
}

var leadingFloat = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// convertValue coerces a raw editor value to the property's data type.
// Numbers parse leniently from the leading digits. A value with no leading
// number stays a string, which never compares true against a number, so the
// rule matches nothing and the tree still encodes. Unparseable dates are
// kept as is.
func convertValue(v any, dt schema.DataType) any {
	if v == nil {
		return nil
	}

	switch dt {
	case schema.DataTypeNumber:
		s, ok := v.(string)
		if !ok {
			if f, ok := toFloat(v); ok {
				return f
			}
			return v
		}
		m := leadingFloat.FindString(strings.TrimSpace(s))
		if m == "" {
			return s
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return s
		}
		return f

	case schema.DataTypeBoolean:
		switch x := v.(type) {
		case bool:
			return x
		case string:
			return x == "true"
		}
		return false

	case schema.DataTypeDate:
		s, ok := v.(string)
		if !ok {
			return v
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
		return v
	}
	return v
}
