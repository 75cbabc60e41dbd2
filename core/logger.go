package core

// Logger reports messages to the console and the error tracker.
// args may contain errors, extra fields as map[string]interface{} and the acting user.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
