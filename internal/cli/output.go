package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"safenet/internal/tunnel"
)

// writeStructured prints v as JSON or YAML. It reports false for text
// output so the caller prints its own form.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(v)
	case "", "text":
		return false, nil
	default:
		return true, fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	return table
}

// stateColor paints running green, transitions yellow and everything
// else red.
func stateColor(st tunnel.Status) string {
	switch {
	case st.Running():
		return color.GreenString(st.String())
	case st.Transitioning():
		return color.YellowString(st.String())
	case st.State == tunnel.StateAbsent:
		return color.New(color.Faint).Sprint(st.String())
	default:
		return color.RedString(st.String())
	}
}
