package cmd

import (
	"fmt"
	"io"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v2"
)

// Formatter renders command output
type Formatter interface {
	Format(io.Writer, interface{}) error
}

// FormatterFunc is a function usable as a Formatter
type FormatterFunc func(io.Writer, interface{}) error

// Format the data
func (f FormatterFunc) Format(w io.Writer, data interface{}) error {
	return f(w, data)
}

var (
	yamlFormatter = FormatterFunc(func(w io.Writer, data interface{}) error {
		b, err := yaml.Marshal(data)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	})

	jsonFormatter = FormatterFunc(func(w io.Writer, data interface{}) error {
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(data, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	})
)

// formatters available to a command, with a specific rendering as a list
func formatters(list FormatterFunc) map[string]Formatter {
	return map[string]Formatter{
		"list": list,
		"yaml": yamlFormatter,
		"json": jsonFormatter,
	}
}

func printOutput(available map[string]Formatter, data interface{}) {
	f, ok := available[crawlerFlags.format]
	if !ok {
		names := make([]string, 0, len(available))
		for name := range available {
			names = append(names, name)
		}
		sort.Strings(names)
		wrapFatalln(fmt.Sprintf("unsupported format %q, expected one of %v", crawlerFlags.format, names), nil)
		return
	}
	if err := f.Format(stdout, data); err != nil {
		wrapFatalln("format output", err)
	}
}
