package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects how CLI commands print structured responses.
type OutputFormat string

const (
	OutputYAML OutputFormat = "yaml"
	OutputJSON OutputFormat = "json"
)

// current is set once by the root command's --output flag before any
// subcommand runs.
var current = OutputYAML

// SetOutputFormat applies the root command's --output flag. Unknown values
// fall back to yaml.
func SetOutputFormat(format string) {
	if OutputFormat(format) == OutputJSON {
		current = OutputJSON
		return
	}
	current = OutputYAML
}

// Output prints data to stdout in the configured format.
func Output(data any) error {
	return Fprint(os.Stdout, current, data)
}

// Fprint writes data to w in the given format.
func Fprint(w io.Writer, format OutputFormat, data any) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
