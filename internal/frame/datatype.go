package frame

// DataType identifies the pixel element type of a frame payload.
// DataTypeUnknown means the upstream source did not declare a type;
// consumers that need an element size must apply their own documented
// fallback.
type DataType int

const (
	DataTypeUnknown DataType = iota
	DataTypeUInt8
	DataTypeUInt16
	DataTypeUInt32
	DataTypeUInt64
	DataTypeFloat
)

// Size returns the element size in bytes, or 0 for DataTypeUnknown.
func (d DataType) Size() int {
	switch d {
	case DataTypeUInt8:
		return 1
	case DataTypeUInt16:
		return 2
	case DataTypeUInt32, DataTypeFloat:
		return 4
	case DataTypeUInt64:
		return 8
	default:
		return 0
	}
}

// String returns the canonical name used in status documents and file
// metadata.
func (d DataType) String() string {
	switch d {
	case DataTypeUInt8:
		return "uint8"
	case DataTypeUInt16:
		return "uint16"
	case DataTypeUInt32:
		return "uint32"
	case DataTypeUInt64:
		return "uint64"
	case DataTypeFloat:
		return "float"
	default:
		return "unknown"
	}
}
