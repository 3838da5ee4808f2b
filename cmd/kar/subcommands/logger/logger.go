package logger

import (
	"fmt"
	"io"
	"log"
)

// Null returns a logger discarding everything.
func Null() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// New returns a logger writing into w, prefixed with "[name] ".
func New(w io.Writer, name string) *log.Logger {
	return log.New(w, fmt.Sprintf("[%s] ", name), log.LstdFlags)
}
