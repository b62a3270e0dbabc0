package logging

import "time"

// LogField creates a Field from a key-value pair.
func LogField(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// StringField creates a Field with a string value.
func StringField(key, value string) Field {
	return Field{Key: key, Value: value}
}

// IntField creates a Field with an integer value.
func IntField(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// BoolField creates a Field with a boolean value.
func BoolField(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// DurationField creates a Field holding a duration in
// milliseconds.
func DurationField(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.Milliseconds()}
}

// ErrorField creates a Field for an error value. If err is nil,
// the value is set to the string "<nil>".
func ErrorField(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "<nil>"}
	}
	return Field{Key: "error", Value: err.Error()}
}
