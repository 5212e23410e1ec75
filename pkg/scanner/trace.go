package scanner

// Trace maps a module reference to the logical source line that last
// produced it. It is a troubleshooting aid only and never affects results.
// A Trace belongs to the caller; nothing in this package retains one.
type Trace map[string]string

func (t Trace) record(name, line string) {
	if t != nil {
		t[name] = line
	}
}

// Merge copies every entry of other into t, overwriting existing names.
func (t Trace) Merge(other Trace) {
	for name, line := range other {
		t[name] = line
	}
}
