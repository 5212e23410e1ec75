package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/executor"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/stdlib"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/wsgi"
)

var errNoDistribution = errors.New("exit status 1")

// fakeRunner records command lines, fails the listed ones and answers the
// others with stdout.
type fakeRunner struct {
	mu      sync.Mutex
	failing map[string]bool
	stdout  string
	calls   []string
	outputs []io.Writer
}

func (r *fakeRunner) Run(_ context.Context, cmd executor.Command) (*executor.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := cmd.String()
	r.calls = append(r.calls, line)
	r.outputs = append(r.outputs, cmd.Stdout)

	if r.failing[line] {
		return &executor.Result{Stderr: "no matching distribution", ExitCode: 1}, errNoDistribution
	}

	return &executor.Result{Stdout: r.stdout}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// fixture creates a project, a WSGI entry point and a config file pointing at
// both. It returns the project root, the entry point and the globals.
func fixture(t *testing.T, envDir string) (string, string, *Globals) {
	t.Helper()

	base := t.TempDir()
	root := filepath.Join(base, "app")
	entry := filepath.Join(base, "www", "wsgi.py")

	writeFile(t, filepath.Join(root, "app.py"), "import os\nimport flask\nimport requests\nimport views\n")
	writeFile(t, filepath.Join(root, "views.py"), "from json import dumps\n")
	writeFile(t, entry, "from app import application\n")

	cfgPath := filepath.Join(base, "virtualenvify.yaml")
	writeFile(t, cfgPath, strings.Join([]string{
		"python:",
		"  cache: false",
		"environment:",
		"  dir: \"" + envDir + "\"",
		"wsgi:",
		"  path: \"" + entry + "\"",
		"  backup: false",
		"",
	}, "\n"))

	return root, entry, &Globals{ConfigPath: cfgPath}
}

func testDeps(runner executor.Runner) Deps {
	return Deps{
		Runner:    runner,
		Catalog:   stdlib.NewStatic("os", "sys", "json"),
		LogWriter: io.Discard,
	}
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return stdout.String(), stderr.String(), err
}

func TestScanCommand_Text(t *testing.T) {
	t.Parallel()

	root, _, g := fixture(t, "")

	stdout, stderr, err := execute(t, newScanCommandWithDeps(g, testDeps(&fakeRunner{})), root)
	require.NoError(t, err)

	assert.Equal(t, "The following external package imports have been detected:\nflask\nrequests\n", stdout)
	assert.Contains(t, stderr, "Scanned 2 files")
}

func TestScanCommand_QuietHidesSummary(t *testing.T) {
	t.Parallel()

	root, _, g := fixture(t, "")
	g.Quiet = true

	_, stderr, err := execute(t, newScanCommandWithDeps(g, testDeps(&fakeRunner{})), root)
	require.NoError(t, err)
	assert.Empty(t, stderr)
}

func TestScanCommand_Debug(t *testing.T) {
	t.Parallel()

	root, _, g := fixture(t, "")

	stdout, _, err := execute(t, newScanCommandWithDeps(g, testDeps(&fakeRunner{})), root, "--debug")
	require.NoError(t, err)

	assert.Contains(t, stdout, "import flask")
	assert.Contains(t, stdout, "Total: 2 modules")
}

func TestScanCommand_JSON(t *testing.T) {
	t.Parallel()

	root, _, g := fixture(t, "")

	stdout, _, err := execute(t, newScanCommandWithDeps(g, testDeps(&fakeRunner{})), root, "--format", "json", "--debug")
	require.NoError(t, err)

	var report ScanReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))

	assert.Equal(t, []string{"flask", "requests"}, report.External)
	assert.Equal(t, []string{"app", "views"}, report.Local)
	assert.Equal(t, 2, report.FilesScanned)
	assert.Equal(t, "import requests", report.Trace["requests"])
}

func TestScanCommand_YAML(t *testing.T) {
	t.Parallel()

	root, _, g := fixture(t, "")

	stdout, _, err := execute(t, newScanCommandWithDeps(g, testDeps(&fakeRunner{})), root, "-f", "yaml")
	require.NoError(t, err)

	var report ScanReport
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &report))

	assert.Equal(t, []string{"flask", "requests"}, report.External)
	assert.Empty(t, report.Trace)
}

func TestScanCommand_Errors(t *testing.T) {
	t.Parallel()

	root, _, g := fixture(t, "")

	_, _, err := execute(t, newScanCommandWithDeps(g, testDeps(&fakeRunner{})), root, "--format", "xml")
	require.ErrorIs(t, err, ErrUnknownFormat)

	_, _, err = execute(t, newScanCommandWithDeps(g, testDeps(&fakeRunner{})), filepath.Join(root, "missing"))
	require.Error(t, err)

	_, _, err = execute(t, newScanCommandWithDeps(g, testDeps(&fakeRunner{})))
	require.Error(t, err)
}

func TestProvisionCommand(t *testing.T) {
	t.Parallel()

	root, entry, g := fixture(t, "venv")
	pip := filepath.Join(root, "venv", "bin", "pip")
	runner := &fakeRunner{failing: map[string]bool{pip + " install requests": true}}

	stdout, stderr, err := execute(t, newProvisionCommandWithDeps(g, testDeps(runner)), root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"virtualenv " + filepath.Join(root, "venv"),
		pip + " install flask",
		pip + " install requests",
	}, runner.calls)

	assert.Contains(t, stdout, "The following external package imports have been detected:\nflask\nrequests\n")
	assert.Contains(t, stdout, "Package installation report:\nflask: installed successfully\nrequests: could not install")
	assert.Contains(t, stdout, "updated wsgi file "+entry)
	assert.Contains(t, stderr, "1 of 2 packages could not be installed: requests")

	patched, err := os.ReadFile(entry)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(patched), wsgi.Snippet(filepath.Join(root, "venv"))))
}

func TestProvisionCommand_VerboseStreamsToolOutput(t *testing.T) {
	t.Parallel()

	root, _, g := fixture(t, "venv")
	runner := &fakeRunner{}

	_, _, err := execute(t, newProvisionCommandWithDeps(g, testDeps(runner)), root, "--no-wsgi")
	require.NoError(t, err)

	for _, w := range runner.outputs {
		assert.Nil(t, w)
	}

	g.Verbose = true
	verbose := &fakeRunner{}

	_, _, err = execute(t, newProvisionCommandWithDeps(g, testDeps(verbose)), root, "--no-wsgi")
	require.NoError(t, err)

	require.Len(t, verbose.outputs, 3)

	for _, w := range verbose.outputs {
		assert.NotNil(t, w)
	}
}

func TestProvisionCommand_Strict(t *testing.T) {
	t.Parallel()

	root, _, g := fixture(t, "venv")
	pip := filepath.Join(root, "venv", "bin", "pip")
	runner := &fakeRunner{failing: map[string]bool{pip + " install flask": true}}

	_, _, err := execute(t, newProvisionCommandWithDeps(g, testDeps(runner)), root, "--strict", "--no-wsgi")
	require.ErrorIs(t, err, ErrInstallFailed)
}

func TestProvisionCommand_Fake(t *testing.T) {
	t.Parallel()

	root, entry, g := fixture(t, "")
	runner := &fakeRunner{}

	stdout, _, err := execute(t, newProvisionCommandWithDeps(g, testDeps(runner)), root, "--fake")
	require.NoError(t, err)

	assert.Empty(t, runner.calls)
	assert.Contains(t, stdout, "Virtualenv command-line would be:\nvirtualenv "+root+"\n")
	assert.Contains(t, stdout, "new wsgi file contents would be:")
	assert.NotContains(t, stdout, "Package installation report:")

	content, err := os.ReadFile(entry)
	require.NoError(t, err)
	assert.Equal(t, "from app import application\n", string(content))
}

func TestProvisionCommand_NoWSGI(t *testing.T) {
	t.Parallel()

	root, entry, g := fixture(t, "")

	stdout, _, err := execute(t, newProvisionCommandWithDeps(g, testDeps(&fakeRunner{})), root, "--no-wsgi")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "wsgi")

	content, err := os.ReadFile(entry)
	require.NoError(t, err)
	assert.Equal(t, "from app import application\n", string(content))
}

func TestStdlibCommand(t *testing.T) {
	t.Parallel()

	_, _, g := fixture(t, "")

	stdout, stderr, err := execute(t, newStdlibCommandWithDeps(g, testDeps(&fakeRunner{})))
	require.NoError(t, err)
	assert.Equal(t, "json\nos\nsys\n", stdout)
	assert.Contains(t, stderr, "3 standard library modules for python3")

	stdout, _, err = execute(t, newStdlibCommandWithDeps(g, testDeps(&fakeRunner{})), "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `["json", "os", "sys"]`, stdout)
}

func TestFreezeCommand(t *testing.T) {
	t.Parallel()

	root, _, g := fixture(t, "venv")
	runner := &fakeRunner{stdout: "Flask==3.0.0\n\nrequests==2.31.0\n"}

	stdout, _, err := execute(t, newFreezeCommandWithDeps(g, testDeps(runner)), root)
	require.NoError(t, err)

	assert.Equal(t, "Flask==3.0.0\nrequests==2.31.0\n", stdout)
	assert.Equal(t, []string{filepath.Join(root, "venv", "bin", "pip") + " freeze"}, runner.calls)
}

func TestFreezeCommand_HostAndOverride(t *testing.T) {
	t.Parallel()

	_, _, g := fixture(t, "")

	runner := &fakeRunner{}
	_, _, err := execute(t, newFreezeCommandWithDeps(g, testDeps(runner)))
	require.NoError(t, err)

	runner2 := &fakeRunner{}
	_, _, err = execute(t, newFreezeCommandWithDeps(g, testDeps(runner2)), "--pip", "/opt/pip3")
	require.NoError(t, err)

	assert.Equal(t, []string{"pip freeze"}, runner.calls)
	assert.Equal(t, []string{"/opt/pip3 freeze"}, runner2.calls)
}

func TestNewApp_BadConfig(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, newStdlibCommandWithDeps(&Globals{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")},
		testDeps(&fakeRunner{})))
	require.Error(t, err)
}
