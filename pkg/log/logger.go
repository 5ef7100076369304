package log

// Logger is the structured logger handed to every pipeline component at
// construction time. Nothing in the module logs through a global;
// components are silent unless given a logger.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is one key-value pair attached to a log message.
type Field struct {
	Key   string
	Value interface{}
}

// String builds a string field, used for plugin and dataset names.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int builds an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 builds an int64 field, used for byte counts and offsets.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Uint64 builds a uint64 field, used for frame numbers.
func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

// Err builds an error field under the key "error".
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}
