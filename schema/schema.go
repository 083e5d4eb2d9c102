// Package schema describes the facts and engagements a tenant's customer
// profiles carry. Definitions are read-only reference data.
package schema

// DataType is the value domain of a property.
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeNumber  DataType = "number"
	DataTypeBoolean DataType = "boolean"
	DataTypeDate    DataType = "date"
)

// PropertyDefinition describes one attribute of a fact or engagement.
type PropertyDefinition struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	DataType      DataType `json:"dataType" yaml:"dataType"`
	AllowedValues []any    `json:"allowedValues,omitempty" yaml:"allowedValues,omitempty"`
}

// FactDefinition is a group of static or slow-changing customer attributes.
type FactDefinition struct {
	ID          string               `json:"id" yaml:"id"`
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string               `json:"category,omitempty" yaml:"category,omitempty"`
	Properties  []PropertyDefinition `json:"properties" yaml:"properties"`
}

// EngagementDefinition is a repeatable, timestamped event type.
type EngagementDefinition struct {
	ID          string               `json:"id" yaml:"id"`
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  []PropertyDefinition `json:"properties" yaml:"properties"`
}

// Schema is the full set of definitions for one industry / tenant.
type Schema struct {
	IndustryID   string                 `json:"industryId,omitempty" yaml:"industryId,omitempty"`
	IndustryName string                 `json:"industryName,omitempty" yaml:"industryName,omitempty"`
	Facts        []FactDefinition       `json:"facts" yaml:"facts"`
	Engagements  []EngagementDefinition `json:"engagements" yaml:"engagements"`
}

// ParentKind tells facts and engagements apart.
type ParentKind string

const (
	ParentFact       ParentKind = "fact"
	ParentEngagement ParentKind = "engagement"
)

// Parent is a resolved fact or engagement definition.
type Parent struct {
	Kind       ParentKind
	ID         string
	Name       string
	Properties []PropertyDefinition
}

// Property returns the property with the given id.
func (p Parent) Property(id string) (PropertyDefinition, bool) {
	return findProperty(p.Properties, id)
}

// FindParent resolves a fact or engagement by name or id. Facts are searched
// before engagements.
func (s *Schema) FindParent(nameOrID string) (Parent, bool) {
	if s == nil || nameOrID == "" {
		return Parent{}, false
	}
	for _, f := range s.Facts {
		if f.Name == nameOrID || f.ID == nameOrID {
			return Parent{Kind: ParentFact, ID: f.ID, Name: f.Name, Properties: f.Properties}, true
		}
	}
	for _, e := range s.Engagements {
		if e.Name == nameOrID || e.ID == nameOrID {
			return Parent{Kind: ParentEngagement, ID: e.ID, Name: e.Name, Properties: e.Properties}, true
		}
	}
	return Parent{}, false
}

// IsEngagement reports whether nameOrID names an engagement definition.
func (s *Schema) IsEngagement(nameOrID string) bool {
	if s == nil {
		return false
	}
	for _, e := range s.Engagements {
		if e.Name == nameOrID || e.ID == nameOrID {
			return true
		}
	}
	return false
}

// Fact returns the fact definition with the given id.
func (s *Schema) Fact(id string) (FactDefinition, bool) {
	if s == nil {
		return FactDefinition{}, false
	}
	for _, f := range s.Facts {
		if f.ID == id {
			return f, true
		}
	}
	return FactDefinition{}, false
}

// Engagement returns the engagement definition with the given id.
func (s *Schema) Engagement(id string) (EngagementDefinition, bool) {
	if s == nil {
		return EngagementDefinition{}, false
	}
	for _, e := range s.Engagements {
		if e.ID == id {
			return e, true
		}
	}
	return EngagementDefinition{}, false
}

// FindProperty looks up a property by id in a definition list.
func FindProperty(props []PropertyDefinition, id string) (PropertyDefinition, bool) {
	return findProperty(props, id)
}

func findProperty(props []PropertyDefinition, id string) (PropertyDefinition, bool) {
	for _, p := range props {
		if p.ID == id {
			return p, true
		}
	}
	return PropertyDefinition{}, false
}
