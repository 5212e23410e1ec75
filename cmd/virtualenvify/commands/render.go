package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/classify"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

const yamlIndent = 2

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

func checkFormat(format string) error {
	switch format {
	case FormatText, FormatJSON, FormatYAML:
		return nil
	default:
		return fmt.Errorf("%w: %q (want %s, %s or %s)", ErrUnknownFormat, format, FormatText, FormatJSON, FormatYAML)
	}
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(yamlIndent)

		err := enc.Encode(v)
		if err != nil {
			return err
		}

		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func newTable(w io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = true
	tbl.Style().Options.SeparateHeader = true

	return tbl
}

// renderTrace prints each external module next to the line that imported it.
func renderTrace(w io.Writer, names []string, res *classify.Result) {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Module", "Imported by"})

	for _, name := range names {
		tbl.AppendRow(table.Row{name, res.Trace[name]})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d modules", len(names))})
	tbl.Render()
}

func renderDiagnostics(w io.Writer, diags []classify.Diagnostic) {
	if len(diags) == 0 {
		return
	}

	color.New(color.FgYellow).Fprintf(w, "Skipped %d entries:\n", len(diags))

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Code", "Path", "Reason"})

	for _, d := range diags {
		tbl.AppendRow(table.Row{d.Code, d.Path, d.Message})
	}

	tbl.Render()
}

func renderSummary(w io.Writer, res *classify.Result) {
	color.New(color.FgGreen).Fprintf(w, "Scanned %s files (%s) in %s: %d references, %d local, %d external\n",
		humanize.Comma(int64(res.FilesScanned)),
		humanize.Bytes(uint64(max(res.BytesScanned, 0))),
		res.Duration.Round(time.Millisecond),
		res.References.Len(), res.Local.Len(), res.External.Len())
}
