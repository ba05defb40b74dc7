package field

// A Type represents the logical column type of a mapped property.
type Type uint8

// List of logical column types.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt
	TypeInt64
	TypeFloat64
	TypeString
	TypeText
	TypeBytes
	TypeTime
	TypeUUID
	TypeJSON
	TypeDecimal
	TypeEnum
	endTypes
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeBool:    "bool",
	TypeInt:     "int",
	TypeInt64:   "int64",
	TypeFloat64: "float64",
	TypeString:  "string",
	TypeText:    "text",
	TypeBytes:   "bytes",
	TypeTime:    "time",
	TypeUUID:    "uuid",
	TypeJSON:    "json",
	TypeDecimal: "decimal",
	TypeEnum:    "enum",
}

// String returns the name of the type.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return typeNames[TypeInvalid]
}

// Valid reports if the given type is a known type.
func (t Type) Valid() bool {
	return t > TypeInvalid && t < endTypes
}

// Numeric reports if the given type is a numeric type.
func (t Type) Numeric() bool {
	return t == TypeInt || t == TypeInt64 || t == TypeFloat64 || t == TypeDecimal
}

// ParseType returns the type with the given name, or TypeInvalid.
func ParseType(name string) Type {
	for t, n := range typeNames {
		if n == name {
			return Type(t)
		}
	}
	return TypeInvalid
}
