package operators

// ParameterDescriptor describes an operator parameter
type ParameterDescriptor struct {
	Name        string
	Type        ParameterType
	Required    bool
	Default     interface{}
	Description string

	// Examples
	Examples []interface{}
}

// ParameterType represents parameter type
type ParameterType string

const (
	TypeString   ParameterType = "string"
	TypeInt      ParameterType = "int"
	TypeTimecode ParameterType = "timecode" // "1:05", "00:01:05", 65
	TypeEnum     ParameterType = "enum"     // One of predefined values
	TypeObject   ParameterType = "object"
)
