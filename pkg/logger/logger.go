package logger

import (
	"fmt"
	"log"
	"os"
)

var (
	InfoLogger  *log.Logger
	ErrorLogger *log.Logger
	DebugLogger *log.Logger
	WarnLogger  *log.Logger
)

func init() {
	InfoLogger = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	DebugLogger = log.New(os.Stdout, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile)
	WarnLogger = log.New(os.Stdout, "WARN: ", log.Ldate|log.Ltime|log.Lshortfile)
}

func Info(format string, v ...interface{}) {
	InfoLogger.Output(2, fmt.Sprintf(format, v...))
}

func Error(format string, v ...interface{}) {
	ErrorLogger.Output(2, fmt.Sprintf(format, v...))
}

func Debug(format string, v ...interface{}) {
	if os.Getenv("ENVIRONMENT") == "development" {
		DebugLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

func Warn(format string, v ...interface{}) {
	WarnLogger.Output(2, fmt.Sprintf(format, v...))
}

// Component is a logger that tags every line with a component name.
type Component struct {
	name string
}

func For(name string) Component {
	return Component{name: name}
}

func (c Component) Info(format string, v ...interface{}) {
	InfoLogger.Output(2, c.prefix(format, v...))
}

func (c Component) Warn(format string, v ...interface{}) {
	WarnLogger.Output(2, c.prefix(format, v...))
}

func (c Component) Error(format string, v ...interface{}) {
	ErrorLogger.Output(2, c.prefix(format, v...))
}

func (c Component) Debug(format string, v ...interface{}) {
	if os.Getenv("ENVIRONMENT") == "development" {
		DebugLogger.Output(2, c.prefix(format, v...))
	}
}

func (c Component) prefix(format string, v ...interface{}) string {
	return fmt.Sprintf("[%s] %s", c.name, fmt.Sprintf(format, v...))
}
