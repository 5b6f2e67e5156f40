package xlog

import (
	"log"
	"os"
)

type stdLogWriter struct {
	l *Logger
}

func (s stdLogWriter) Write(b []byte) (int, error) {
	s.l.log(INFO, string(b))
	return len(b), nil
}

func init() {
	// redirect anything still going through the standard log package
	// (third-party dependencies, stray log.Print calls) into xlog so a
	// single formatter governs every line the process emits
	log.SetFlags(0)
	log.SetPrefix("")

	wr := stdLogWriter{l: NewLogger("", INFO)}
	log.SetOutput(wr)

	// default destination before a caller of the raftlog package calls
	// SetFormatter itself
	SetFormatter(NewDefaultFormatter(os.Stderr))
}
