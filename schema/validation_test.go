package schema

import (
	"fmt"
	"strings"
	"testing"
)

func validSchema() *Schema {
	return &Schema{
		IndustryID: "ecommerce",
		Facts: []FactDefinition{
			{
				ID:   "purchaseHistory",
				Name: "Purchase History",
				Properties: []PropertyDefinition{
					{ID: "total_orders", Name: "Total Orders", DataType: DataTypeNumber},
					{ID: "last_order_date", Name: "Last Order Date", DataType: DataTypeDate},
				},
			},
		},
		Engagements: []EngagementDefinition{
			{
				ID:   "purchase",
				Name: "Purchase",
				Properties: []PropertyDefinition{
					{ID: "amount", Name: "Amount", DataType: DataTypeNumber},
				},
			},
		},
	}
}

func TestValidate_ValidSchema(t *testing.T) {
	if err := Validate(validSchema()); err != nil {
		t.Errorf("Expected valid schema, got: %v", err)
	}
}

func TestValidate_EmptySchema(t *testing.T) {
	for _, s := range []*Schema{nil, {}} {
		err := Validate(s)
		if err == nil {
			t.Error("Expected error for empty schema, got nil")
			continue
		}
		if !strings.Contains(err.Error(), "empty") {
			t.Errorf("Expected error message about empty schema, got: %v", err)
		}
	}
}

func TestValidate_FactWithoutProperties(t *testing.T) {
	s := validSchema()
	s.Facts[0].Properties = nil

	err := Validate(s)
	if err == nil {
		t.Fatal("Expected error for fact without properties, got nil")
	}
	if !strings.Contains(err.Error(), "purchaseHistory") {
		t.Errorf("Expected error to mention 'purchaseHistory', got: %v", err)
	}
}

func TestValidate_EngagementWithoutPropertiesAllowed(t *testing.T) {
	s := validSchema()
	s.Engagements[0].Properties = nil

	if err := Validate(s); err != nil {
		t.Errorf("Engagements without properties can still be counted, got: %v", err)
	}
}

func TestValidate_TooManyFacts(t *testing.T) {
	s := validSchema()
	for i := 0; i < 101; i++ {
		s.Facts = append(s.Facts, FactDefinition{
			ID:         fmt.Sprintf("fact_%d", i),
			Name:       fmt.Sprintf("Fact %d", i),
			Properties: []PropertyDefinition{{ID: "p", DataType: DataTypeString}},
		})
	}

	err := Validate(s)
	if err == nil {
		t.Fatal("Expected error for too many facts, got nil")
	}
	if !strings.Contains(err.Error(), "100") {
		t.Errorf("Expected error message about max 100 facts, got: %v", err)
	}
}

func TestValidate_TooManyProperties(t *testing.T) {
	s := validSchema()
	props := make([]PropertyDefinition, 0, 201)
	for i := 0; i < 201; i++ {
		props = append(props, PropertyDefinition{ID: fmt.Sprintf("p_%d", i), DataType: DataTypeNumber})
	}
	s.Facts[0].Properties = props

	err := Validate(s)
	if err == nil {
		t.Fatal("Expected error for too many properties, got nil")
	}
	if !strings.Contains(err.Error(), "200") {
		t.Errorf("Expected error message about max 200 properties, got: %v", err)
	}
}

func TestValidate_InvalidDataType(t *testing.T) {
	invalid := []DataType{"", "int", "String", "datetime", " number"}

	for _, dt := range invalid {
		t.Run(string(dt), func(t *testing.T) {
			s := validSchema()
			s.Facts[0].Properties[0].DataType = dt

			err := Validate(s)
			if err == nil {
				t.Errorf("Expected error for data type %q", dt)
			}
		})
	}
}

func TestValidate_InvalidIdentifiers(t *testing.T) {
	testCases := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"starts with digit", "1orders"},
		{"contains dash", "total-orders"},
		{"contains space", "total orders"},
		{"too long", strings.Repeat("a", 101)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := validSchema()
			s.Facts[0].Properties[0].ID = tc.id

			if err := Validate(s); err == nil {
				t.Errorf("Expected error for property id %q", tc.id)
			}
		})
	}
}

func TestValidate_DuplicateIDs(t *testing.T) {
	s := validSchema()
	s.Engagements[0].ID = "purchaseHistory"

	err := Validate(s)
	if err == nil {
		t.Fatal("Expected error for id shared by a fact and an engagement")
	}
	if !strings.Contains(err.Error(), "already used") {
		t.Errorf("Expected duplicate id error, got: %v", err)
	}

	s = validSchema()
	s.Facts[0].Properties[1].ID = "total_orders"
	if err := Validate(s); err == nil {
		t.Error("Expected error for duplicate property id")
	}
}

func TestValidate_AllowedValuesOnlyForStringAndNumber(t *testing.T) {
	s := validSchema()
	s.Facts[0].Properties[1].AllowedValues = []any{"2024-01-01"}

	if err := Validate(s); err == nil {
		t.Error("Expected error for allowed values on a date property")
	}

	s = validSchema()
	s.Facts[0].Properties[0].AllowedValues = []any{1, 2, 3}
	if err := Validate(s); err != nil {
		t.Errorf("Allowed values on a number property should be accepted, got: %v", err)
	}
}
