package segment

import (
	"strings"
	"testing"
)

func TestRuleSentence(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		want string
	}{
		{"standard", Rule{PropertyName: "Total orders", Operator: OpGreaterThanOrEqual, Value: 5.0}, "Total orders is at least 5"},
		{"excluded", Rule{PropertyName: "Country", Operator: OpEquals, Value: "US", Excluded: true}, "Exclude if Country equals US"},
		{"valueless", Rule{PropertyName: "VIP", Operator: OpIsTrue}, "VIP is true"},
		{"relative", Rule{PropertyName: "Last order", Operator: OpLast7Days}, "Last order in the last 7 days"},
		{"between", Rule{PropertyName: "Age", Operator: OpBetween, Value: "30", Value2: "40"}, "Age is between 30 and 40"},
		{"boolean value", Rule{PropertyName: "Subscribed", Operator: OpEquals, Value: false}, "Subscribed equals false"},
		{"incomplete", Rule{PropertyName: "Age", Operator: OpGreaterThan}, "Age"},
		{"unknown operator", Rule{PropertyName: "Score", Operator: "near", Value: 3.0}, "Score near 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RuleSentence(tt.rule); got != tt.want {
				t.Errorf("RuleSentence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSectionSummary(t *testing.T) {
	sec := Section{Title: "Entry", MatchType: MatchAll, TimePeriod: WindowLast30Days}
	if got := SectionSummary(sec); got != "Entry (no rules)" {
		t.Errorf("SectionSummary(empty) = %q", got)
	}

	sec.Items = []Item{RuleItem(Rule{PropertyName: "Age", Operator: OpGreaterThan, Value: 30.0})}
	if got := SectionSummary(sec); got != "Entry all of the following in the last 30 days" {
		t.Errorf("SectionSummary() = %q", got)
	}

	sec.MatchType = MatchAny
	sec.TimePeriod = WindowCustomRange
	if got := SectionSummary(sec); got != "Entry any of the following in custom range" {
		t.Errorf("SectionSummary() = %q", got)
	}
}

func TestDescribe(t *testing.T) {
	sec := Section{
		Title:      "Entry",
		MatchType:  MatchAll,
		TimePeriod: WindowLast7Days,
		Items: []Item{
			RuleItem(Rule{PropertyName: "Age", Operator: OpGreaterThan, Value: 30.0}),
			GroupItem(RuleGroup{MatchType: MatchAny, Items: []Item{
				RuleItem(Rule{PropertyName: "Country", Operator: OpEquals, Value: "US", Disabled: true}),
			}}),
		},
	}

	got := Describe(sec)
	for _, want := range []string{
		"Entry all of the following in the last 7 days",
		"\n  - Age is greater than 30",
		"\n  - any of",
		"\n    - Country equals US (disabled)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Describe() missing %q in:\n%s", want, got)
		}
	}
}
