package stdlib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/executor"
)

// DefaultInterpreter is the interpreter probed when none is configured.
const DefaultInterpreter = "python3"

// probeScript prints the interpreter layout as a single JSON document.
const probeScript = `import json, sys, sysconfig
paths = sysconfig.get_paths()
print(json.dumps({
    "executable": sys.executable,
    "version": "%d.%d.%d" % tuple(sys.version_info[:3]),
    "stdlib": paths.get("stdlib", ""),
    "purelib": paths.get("purelib", ""),
    "platlib": paths.get("platlib", ""),
    "path": [p for p in sys.path if p],
    "builtins": list(sys.builtin_module_names),
}))`

// probeEnv stops the working directory from shadowing the modules the probe
// imports.
var probeEnv = map[string]string{"PYTHONSAFEPATH": "1"}

// ErrProbe is returned when the interpreter layout cannot be determined.
var ErrProbe = errors.New("interpreter probe failed")

// Prober discovers the installation layout of a Python interpreter.
type Prober interface {
	Probe(ctx context.Context) (*Layout, error)
}

// InterpreterProber asks a real interpreter about its own layout.
type InterpreterProber struct {
	runner      executor.Runner
	interpreter string
}

// NewInterpreterProber creates a prober for the given interpreter. An empty
// interpreter selects DefaultInterpreter and a nil runner uses os/exec.
func NewInterpreterProber(runner executor.Runner, interpreter string) *InterpreterProber {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}

	if runner == nil {
		runner = executor.NewExecRunner()
	}

	return &InterpreterProber{runner: runner, interpreter: interpreter}
}

// Interpreter returns the probed interpreter command.
func (p *InterpreterProber) Interpreter() string {
	return p.interpreter
}

// Probe runs the interpreter and decodes its self-description.
func (p *InterpreterProber) Probe(ctx context.Context) (*Layout, error) {
	res, err := p.runner.Run(ctx, executor.Command{
		Program: p.interpreter,
		Args:    []string{"-c", probeScript},
		Dir:     os.TempDir(),
		Env:     probeEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProbe, p.interpreter, err)
	}

	var layout Layout

	err = json.Unmarshal([]byte(res.Stdout), &layout)
	if err != nil {
		return nil, fmt.Errorf("%w: decode output of %s: %w", ErrProbe, p.interpreter, err)
	}

	if layout.StdlibDir == "" {
		return nil, fmt.Errorf("%w: %s reported no stdlib directory", ErrProbe, p.interpreter)
	}

	return &layout, nil
}
