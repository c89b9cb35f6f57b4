package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
)

var (
	// globals used to patch over calls to os.Exit() during test

	logFatalln = log.Fatalln
	logFatalf  = log.Fatalf
	osExit     = os.Exit

	// infoLogger wraps informative messages to os.Stderr without cluttering expected output in tests.
	infoLogger = log.New(os.Stderr, "", 0)

	// stdout receives command output
	stdout io.Writer = os.Stdout
)

func wrapFatalln(msg string, err error) {
	if err == nil {
		logFatalln(msg)
	} else {
		logFatalf("%v", fmt.Errorf(msg+": %w", err))
	}
}

func wrapFatalWithCodef(code int, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	osExit(code)
}
