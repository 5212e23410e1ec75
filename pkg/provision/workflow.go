package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/classify"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/wsgi"
)

// Classifier finds the external dependencies of a tree.
type Classifier interface {
	Classify(ctx context.Context, root string) (*classify.Result, error)
}

// Previewer renders the command an EnvBuilder would run.
type Previewer interface {
	CommandLine(dir string) string
}

// Patcher edits the web entry point to activate the environment.
type Patcher interface {
	Patch(ctx context.Context, envDir string) (*wsgi.Result, error)
}

// Recorder receives run measurements.
type Recorder interface {
	RecordScan(ctx context.Context, files int, bytes int64, references, external int, elapsed time.Duration)
	RecordInstall(ctx context.Context, outcome string)
}

// Workflow runs the whole provisioning sequence for one project.
type Workflow struct {
	Classifier Classifier
	Builder    EnvBuilder
	Installer  Installer
	// Patcher is optional; nil leaves the entry point alone.
	Patcher Patcher
	// Recorder is optional.
	Recorder Recorder
	// EnvDir places the environment relative to the target. Empty uses the
	// target itself.
	EnvDir string
	// Fake previews every step without changing anything.
	Fake   bool
	Out    io.Writer
	Logger *slog.Logger
}

// RunResult collects what each step produced.
type RunResult struct {
	EnvDir         string           `json:"env_dir"         yaml:"env_dir"`
	External       []string         `json:"external"        yaml:"external"`
	Classification *classify.Result `json:"classification"  yaml:"classification"`
	Report         *Report          `json:"report,omitempty" yaml:"report,omitempty"`
	Patch          *wsgi.Result     `json:"patch,omitempty"  yaml:"patch,omitempty"`
}

// Run classifies target, builds the environment, installs the external
// packages and patches the entry point.
func (w *Workflow) Run(ctx context.Context, target string) (*RunResult, error) {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := w.Out
	if out == nil {
		out = io.Discard
	}

	classification, err := w.Classifier.Classify(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", target, err)
	}

	if w.Recorder != nil {
		w.Recorder.RecordScan(ctx, classification.FilesScanned, classification.BytesScanned,
			classification.References.Len(), classification.External.Len(), classification.Duration)
	}

	res := &RunResult{
		EnvDir:         w.envDir(classification.Root),
		External:       classification.External.Sorted(),
		Classification: classification,
	}

	fmt.Fprintln(out, "The following external package imports have been detected:")

	for _, name := range res.External {
		fmt.Fprintln(out, name)
	}

	err = w.build(ctx, out, res.EnvDir)
	if err != nil {
		return res, err
	}

	if !w.Fake {
		fmt.Fprintln(out, "Installing dependencies into virtualenv")

		res.Report = InstallAll(ctx, w.Installer, res.EnvDir, res.External)
		w.recordOutcomes(ctx, logger, res.Report)

		fmt.Fprintln(out, res.Report.String())
	}

	if w.Patcher == nil {
		return res, nil
	}

	res.Patch, err = w.Patcher.Patch(ctx, res.EnvDir)
	if err != nil {
		return res, fmt.Errorf("patch entry point: %w", err)
	}

	printPatch(out, res.Patch)

	return res, nil
}

func (w *Workflow) envDir(root string) string {
	if w.EnvDir == "" {
		return root
	}

	if filepath.IsAbs(w.EnvDir) {
		return w.EnvDir
	}

	return filepath.Join(root, w.EnvDir)
}

func (w *Workflow) build(ctx context.Context, out io.Writer, dir string) error {
	if w.Fake {
		fmt.Fprintln(out, "Virtualenv command-line would be:")

		if p, ok := w.Builder.(Previewer); ok {
			fmt.Fprintln(out, p.CommandLine(dir))
		}

		return nil
	}

	fmt.Fprintln(out, "Building virtualenv in", dir)

	return w.Builder.Build(ctx, dir)
}

func (w *Workflow) recordOutcomes(ctx context.Context, logger *slog.Logger, report *Report) {
	for _, e := range report.Entries {
		if w.Recorder != nil {
			w.Recorder.RecordInstall(ctx, string(e.Outcome))
		}

		if e.Err != nil {
			logger.WarnContext(ctx, "package not installed", "package", e.Name, "outcome", e.Outcome, "error", e.Err)
		}
	}
}

func printPatch(out io.Writer, patch *wsgi.Result) {
	switch patch.Status {
	case wsgi.StatusAlreadyPatched:
		fmt.Fprintln(out, "activation code already found in WSGI file")
	case wsgi.StatusPreview:
		fmt.Fprintln(out, "new wsgi file contents would be:")
		fmt.Fprint(out, patch.Diff)
	case wsgi.StatusPatched:
		if patch.Backup != "" {
			fmt.Fprintln(out, "backed up old wsgi file to", patch.Backup)
		}

		fmt.Fprintln(out, "updated wsgi file", patch.Path)
	}
}
