package cmd

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ pflag.Value = (*outputFormat)(nil)

// outputFormat is the --format flag value.
type outputFormat string

const (
	formatText outputFormat = "text"
	formatJSON outputFormat = "json"
)

func (f *outputFormat) String() string { return string(*f) }

func (f *outputFormat) Set(v string) error {
	switch outputFormat(v) {
	case formatText, formatJSON:
		*f = outputFormat(v)
		return nil
	}
	return fmt.Errorf("must be text or json")
}

func (f *outputFormat) Type() string { return "format" }

func jsonOutput() bool { return format == formatJSON }
