package logger

// Instance is a logging backend. The package-level functions forward to
// the active instance; before Init they are no-ops, so library code may
// log unconditionally without caring about process setup.
type Instance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

var active Instance

// Init sets the process-wide logging backend. Called once from main.
func Init(instance Instance) {
	active = instance
}

// Log writes a message at the default level.
func Log(message string, keyvals ...any) {
	if active == nil {
		return
	}
	active.Log(message, keyvals...)
}

// Debug writes a message at DEBUG level.
func Debug(message string, keyvals ...any) {
	if active == nil {
		return
	}
	active.Debug(message, keyvals...)
}

// Info writes a message at INFO level.
func Info(message string, keyvals ...any) {
	if active == nil {
		return
	}
	active.Info(message, keyvals...)
}

// Warn writes a message at WARN level.
func Warn(message string, keyvals ...any) {
	if active == nil {
		return
	}
	active.Warn(message, keyvals...)
}

// Error writes a message at ERROR level.
func Error(message string, keyvals ...any) {
	if active == nil {
		return
	}
	active.Error(message, keyvals...)
}

// Fatal writes a message at FATAL level and terminates the program.
func Fatal(message string, keyvals ...any) {
	if active == nil {
		return
	}
	active.Fatal(message, keyvals...)
}
