package core

// Logger is implemented by any logging service.
// args may hold an error, a map[string]interface{} of extras and domain objects the implementation knows about.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
