package provision

import (
	"context"
	"strings"
)

// ReportHeader opens every installation report.
const ReportHeader = "Package installation report:"

// Entry is the installation outcome of one package.
type Entry struct {
	Name    string  `json:"name"    yaml:"name"`
	Outcome Outcome `json:"outcome" yaml:"outcome"`
	Err     error   `json:"-"       yaml:"-"`
}

// Report lists installation outcomes in request order.
type Report struct {
	Entries []Entry `json:"entries" yaml:"entries"`
}

// InstallAll attempts every package in order and never stops on failure.
// Failure reasons are kept on the entries.
func InstallAll(ctx context.Context, installer Installer, envDir string, names []string) *Report {
	report := &Report{Entries: make([]Entry, 0, len(names))}

	for _, name := range names {
		outcome, err := installer.Install(ctx, envDir, name)
		report.Entries = append(report.Entries, Entry{Name: name, Outcome: outcome, Err: err})
	}

	return report
}

// Counts returns how many packages ended with each outcome.
func (r *Report) Counts() map[Outcome]int {
	counts := make(map[Outcome]int, len(r.Entries))

	for _, e := range r.Entries {
		counts[e.Outcome]++
	}

	return counts
}

// Failed returns the names that could not be installed.
func (r *Report) Failed() []string {
	var names []string

	for _, e := range r.Entries {
		if e.Outcome == OutcomeFailed {
			names = append(names, e.Name)
		}
	}

	return names
}

func (r *Report) String() string {
	var sb strings.Builder

	sb.WriteString(ReportHeader)

	for _, e := range r.Entries {
		sb.WriteString("\n")
		sb.WriteString(e.Name)
		sb.WriteString(": ")
		sb.WriteString(string(e.Outcome))
	}

	return sb.String()
}
