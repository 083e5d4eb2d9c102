package schema

import (
	"fmt"
	"regexp"
)

const (
	maxDefinitions = 100
	maxProperties  = 200
	maxIdentLength = 100
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks a schema before it is accepted for a tenant.
// Returns an error describing the first problem found.
func Validate(s *Schema) error {
	if s == nil || (len(s.Facts) == 0 && len(s.Engagements) == 0) {
		return fmt.Errorf("schema cannot be empty, must contain at least one fact or engagement definition")
	}

	if len(s.Facts) > maxDefinitions {
		return fmt.Errorf("schema contains %d facts, maximum allowed is %d", len(s.Facts), maxDefinitions)
	}
	if len(s.Engagements) > maxDefinitions {
		return fmt.Errorf("schema contains %d engagements, maximum allowed is %d", len(s.Engagements), maxDefinitions)
	}

	// Fact and engagement ids share one namespace: rules resolve their parent
	// by id or name without saying which kind they mean.
	seen := make(map[string]string)
	for _, f := range s.Facts {
		if err := validateDefinition("fact", f.ID, f.Name, f.Properties, seen); err != nil {
			return err
		}
	}
	for _, e := range s.Engagements {
		if err := validateDefinition("engagement", e.ID, e.Name, e.Properties, seen); err != nil {
			return err
		}
	}

	return nil
}

func validateDefinition(kind, id, name string, props []PropertyDefinition, seen map[string]string) error {
	if err := validateIdentifier(id); err != nil {
		return fmt.Errorf("invalid %s id %q: %w", kind, id, err)
	}
	if other, dup := seen[id]; dup {
		return fmt.Errorf("%s id %q is already used by a %s", kind, id, other)
	}
	seen[id] = kind

	if name == "" {
		return fmt.Errorf("%s %q must have a name", kind, id)
	}

	// Engagements may be counted without properties; facts may not.
	if kind == "fact" && len(props) == 0 {
		return fmt.Errorf("fact %q must contain at least one property", id)
	}
	if len(props) > maxProperties {
		return fmt.Errorf("%s %q contains %d properties, maximum allowed is %d", kind, id, len(props), maxProperties)
	}

	propIDs := make(map[string]bool, len(props))
	for _, p := range props {
		if err := validateIdentifier(p.ID); err != nil {
			return fmt.Errorf("invalid property id %q in %s %q: %w", p.ID, kind, id, err)
		}
		if propIDs[p.ID] {
			return fmt.Errorf("duplicate property id %q in %s %q", p.ID, kind, id)
		}
		propIDs[p.ID] = true

		if !IsValidDataType(p.DataType) {
			return fmt.Errorf("property %q in %s %q has invalid data type %q (must be one of: string, number, boolean, date)", p.ID, kind, id, p.DataType)
		}
		if len(p.AllowedValues) > 0 && p.DataType != DataTypeString && p.DataType != DataTypeNumber {
			return fmt.Errorf("property %q in %s %q: allowed values are only supported for string and number properties", p.ID, kind, id)
		}
	}

	return nil
}

// validateIdentifier checks ids against ^[a-zA-Z_][a-zA-Z0-9_]*$ and the
// 1-100 character limit.
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxIdentLength)
	}
	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$ (start with letter or underscore, followed by letters, digits, or underscores)")
	}
	return nil
}

// IsValidDataType reports whether t is one of the four supported types.
func IsValidDataType(t DataType) bool {
	switch t {
	case DataTypeString, DataTypeNumber, DataTypeBoolean, DataTypeDate:
		return true
	}
	return false
}
