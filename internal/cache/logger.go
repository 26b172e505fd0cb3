package cache

import (
	"encoding/json"
	"log"
	"time"
)

// Logger is a simple structured logger interface. Fields are alternating
// key/value pairs.
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// StdLogger implements Logger using the standard log package with JSON output.
type StdLogger struct{}

// NewStdLogger returns the default JSON logger.
func NewStdLogger() *StdLogger { return &StdLogger{} }

func (l *StdLogger) Info(msg string, fields ...interface{})  { l.emit("info", msg, fields) }
func (l *StdLogger) Warn(msg string, fields ...interface{})  { l.emit("warn", msg, fields) }
func (l *StdLogger) Error(msg string, fields ...interface{}) { l.emit("error", msg, fields) }

func (l *StdLogger) emit(level, msg string, fields []interface{}) {
	record := map[string]interface{}{
		"level": level,
		"msg":   msg,
		"ts":    time.Now().Format(time.RFC3339),
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		record[key] = fields[i+1]
	}
	b, _ := json.Marshal(record)
	log.Println(string(b))
}
