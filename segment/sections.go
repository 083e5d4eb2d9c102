package segment

import (
	"encoding/json"
	"fmt"

	"github.com/liamcoop/audiences/schema"
)

// MatchType is how the rules of a section or rule group combine.
type MatchType string

const (
	MatchAll MatchType = "all"
	MatchAny MatchType = "any"
)

// LogicalOperator maps the match type onto a group operator.
func (m MatchType) LogicalOperator() LogicalOperator {
	if m == MatchAll {
		return And
	}
	return Or
}

// Well-known section ids of the audience editor.
const (
	SectionEntry = "entry"
	SectionGoals = "goals"
	SectionSync  = "sync"
	SectionExit  = "exit"
)

// Rule is one editable targeting rule.
type Rule struct {
	ID           string `json:"id"`
	PropertyID   string `json:"propertyId"`
	PropertyName string `json:"propertyName,omitempty"`
	// ParentName is the name or id of the fact or engagement the property
	// belongs to.
	ParentName string `json:"parentName"`
	// Properties is the property list of the parent at the time the rule
	// was added.
	Properties []schema.PropertyDefinition `json:"properties,omitempty"`

	Operator      Operator `json:"operator,omitempty"`
	Value         any      `json:"value,omitempty"`
	Value2        any      `json:"value2,omitempty"`
	Excluded      bool     `json:"excluded,omitempty"`
	Disabled      bool     `json:"disabled,omitempty"`
	Comment       string   `json:"comment,omitempty"`
	TrackVariable string   `json:"trackVariable,omitempty"`
}

// IsComplete reports whether the rule takes part in membership: it is
// enabled, has an operator and, unless the operator needs none, a value.
func (r Rule) IsComplete() bool {
	if r.Disabled || r.Operator == "" {
		return false
	}
	if !r.Operator.RequiresValue() {
		return true
	}
	if r.Value == nil {
		return false
	}
	if s, ok := r.Value.(string); ok && s == "" {
		return false
	}
	return true
}

// RuleGroup nests rules (or further groups) under their own match type.
type RuleGroup struct {
	ID        string    `json:"id"`
	MatchType MatchType `json:"matchType"`
	Items     []Item    `json:"-"`
}

// Item is an entry of a section: exactly one of Rule or Group is set.
type Item struct {
	Rule  *Rule
	Group *RuleGroup
}

// RuleItem wraps a rule as a section item.
func RuleItem(r Rule) Item { return Item{Rule: &r} }

// GroupItem wraps a rule group as a section item.
func GroupItem(g RuleGroup) Item { return Item{Group: &g} }

// Section is one block of the audience editor.
type Section struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Items       []Item     `json:"items"`
	MatchType   MatchType  `json:"matchType"`
	TimePeriod  TimeWindow `json:"timePeriod"`
	IsCollapsed bool       `json:"isCollapsed,omitempty"`
}

func (it Item) MarshalJSON() ([]byte, error) {
	switch {
	case it.Group != nil:
		return json.Marshal(it.Group)
	case it.Rule != nil:
		return json.Marshal(it.Rule)
	}
	return []byte("null"), nil
}

func (it *Item) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if probe.Type == "group" {
		var g RuleGroup
		if err := json.Unmarshal(data, &g); err != nil {
			return err
		}
		*it = Item{Group: &g}
		return nil
	}

	var r Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*it = Item{Rule: &r}
	return nil
}

func (g RuleGroup) MarshalJSON() ([]byte, error) {
	type alias RuleGroup
	items := g.Items
	if items == nil {
		items = []Item{}
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
		Rules []Item `json:"rules"`
	}{"group", alias(g), items})
}

func (g *RuleGroup) UnmarshalJSON(data []byte) error {
	type alias RuleGroup
	var raw struct {
		alias
		Rules []Item `json:"rules"`
		Items []Item `json:"items"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid rule group: %w", err)
	}
	*g = RuleGroup(raw.alias)
	g.Items = raw.Items
	if g.Items == nil {
		g.Items = raw.Rules
	}
	return nil
}

// UnmarshalJSON accepts sections saved with a flat "rules" list as well as
// the current "items" list.
func (s *Section) UnmarshalJSON(data []byte) error {
	type alias Section
	var raw struct {
		alias
		Rules []Item `json:"rules"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid section: %w", err)
	}
	*s = Section(raw.alias)
	if s.Items == nil {
		s.Items = raw.Rules
	}
	return nil
}

// Rules returns every rule of the section, including rules nested in groups,
// in display order.
func (s Section) Rules() []Rule {
	return flattenRules(s.Items)
}

func flattenRules(items []Item) []Rule {
	var out []Rule
	for _, it := range items {
		switch {
		case it.Rule != nil:
			out = append(out, *it.Rule)
		case it.Group != nil:
			out = append(out, flattenRules(it.Group.Items)...)
		}
	}
	return out
}

// FindSection returns the section with the given id.
func FindSection(sections []Section, id string) (Section, bool) {
	for _, s := range sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}
