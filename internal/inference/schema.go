package inference

// Type names follow the OpenAPI subset accepted by Gemini response schemas.
type Type string

const (
	TypeObject  Type = "OBJECT"
	TypeArray   Type = "ARRAY"
	TypeString  Type = "STRING"
	TypeInteger Type = "INTEGER"
	TypeNumber  Type = "NUMBER"
)

// Schema declares the JSON shape a response must follow. Descriptions are
// passed to the model as hints.
type Schema struct {
	Type             Type               `json:"type"`
	Description      string             `json:"description,omitempty"`
	Properties       map[string]*Schema `json:"properties,omitempty"`
	PropertyOrdering []string           `json:"propertyOrdering,omitempty"`
	Required         []string           `json:"required,omitempty"`
	Items            *Schema            `json:"items,omitempty"`
}

// Field is a named property used to build object schemas in order.
type Field struct {
	Name   string
	Schema *Schema
}

// String returns a string schema with a description.
func String(description string) *Schema {
	return &Schema{Type: TypeString, Description: description}
}

// Integer returns an integer schema with a description.
func Integer(description string) *Schema {
	return &Schema{Type: TypeInteger, Description: description}
}

// ArrayOf returns an array schema of items.
func ArrayOf(items *Schema) *Schema {
	return &Schema{Type: TypeArray, Items: items}
}

// Object builds an object schema whose properties are all required and keep
// the given order.
func Object(fields ...Field) *Schema {
	s := &Schema{Type: TypeObject, Properties: make(map[string]*Schema, len(fields))}
	for _, f := range fields {
		s.Properties[f.Name] = f.Schema
		s.PropertyOrdering = append(s.PropertyOrdering, f.Name)
		s.Required = append(s.Required, f.Name)
	}
	return s
}
