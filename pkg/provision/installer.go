package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/executor"
)

// Outcome is the per-package result of an installation attempt.
type Outcome string

// Installation outcomes.
const (
	OutcomeInstalled Outcome = "installed successfully"
	OutcomeFailed    Outcome = "could not install"
	OutcomeCopied    Outcome = "copied from existing installation"
)

const (
	copyDirPerm        = 0o755
	sitePackagesGlob   = "lib/python*/site-packages"
	sharedObjectSuffix = ".*.so"
)

// Sentinel errors.
var (
	// ErrEmptyPackageName is returned when asked to install "".
	ErrEmptyPackageName = errors.New("empty package name")
	// ErrNotOnHost is returned when the copy fallback finds no host copy.
	ErrNotOnHost = errors.New("package not found in host site-packages")
	// ErrNoSitePackages is returned when the environment has no site-packages.
	ErrNoSitePackages = errors.New("environment has no site-packages directory")
)

// Installer installs one package into an environment. A failed attempt is
// reported as OutcomeFailed together with the reason.
type Installer interface {
	Install(ctx context.Context, envDir, name string) (Outcome, error)
}

// PipOptions configures a PipInstaller.
type PipOptions struct {
	// Pip overrides the pip executable. Empty uses <env>/bin/pip.
	Pip string
	// HostSitePackages enables the copy fallback from these directories.
	HostSitePackages []string
	// Fs is the filesystem used by the copy fallback. Nil uses the OS.
	Fs afero.Fs
	// Output streams pip's stdout and stderr while it runs.
	Output io.Writer
}

// pipEnv keeps pip quiet about its own upgrades.
var pipEnv = map[string]string{"PIP_DISABLE_PIP_VERSION_CHECK": "1"}

// PipInstaller installs packages with the environment's pip and, when pip
// fails, copies an existing host installation of the package.
type PipInstaller struct {
	runner executor.Runner
	opts   PipOptions
	logger *slog.Logger
}

// NewPipInstaller creates a pip-backed installer.
func NewPipInstaller(runner executor.Runner, opts PipOptions, logger *slog.Logger) *PipInstaller {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PipInstaller{runner: runner, opts: opts, logger: logger}
}

// PipPath returns the pip executable used for envDir.
func (i *PipInstaller) PipPath(envDir string) string {
	if i.opts.Pip != "" {
		return i.opts.Pip
	}

	return filepath.Join(envDir, "bin", "pip")
}

// Install runs "pip install name" inside the environment.
func (i *PipInstaller) Install(ctx context.Context, envDir, name string) (Outcome, error) {
	if name == "" {
		return OutcomeFailed, ErrEmptyPackageName
	}

	cmd := executor.Command{
		Program: i.PipPath(envDir),
		Args:    []string{"install", name},
		Env:     pipEnv,
		Stdout:  i.opts.Output,
		Stderr:  i.opts.Output,
	}

	_, err := i.runner.Run(ctx, cmd)
	if err == nil {
		return OutcomeInstalled, nil
	}

	pipErr := fmt.Errorf("pip install %s: %w", name, err)

	if len(i.opts.HostSitePackages) == 0 {
		return OutcomeFailed, pipErr
	}

	i.logger.DebugContext(ctx, "pip failed, trying host copy", "package", name, "error", err)

	copyErr := i.copyFromHost(envDir, name)
	if copyErr != nil {
		return OutcomeFailed, errors.Join(pipErr, copyErr)
	}

	return OutcomeCopied, nil
}

func (i *PipInstaller) copyFromHost(envDir, name string) error {
	dest, err := i.envSitePackages(envDir)
	if err != nil {
		return err
	}

	for _, site := range i.opts.HostSitePackages {
		copied, err := i.copyCandidates(site, dest, name)
		if err != nil {
			return err
		}

		if copied {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrNotOnHost, name)
}

func (i *PipInstaller) envSitePackages(envDir string) (string, error) {
	matches, err := afero.Glob(i.opts.Fs, filepath.Join(envDir, sitePackagesGlob))
	if err != nil {
		return "", fmt.Errorf("find site-packages in %s: %w", envDir, err)
	}

	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoSitePackages, envDir)
	}

	return matches[0], nil
}

// copyCandidates copies a package directory, a single module file or
// compiled extension modules named after name.
func (i *PipInstaller) copyCandidates(site, dest, name string) (bool, error) {
	fs := i.opts.Fs

	pkgDir := filepath.Join(site, name)

	isDir, err := afero.DirExists(fs, pkgDir)
	if err == nil && isDir {
		return true, copyTree(fs, pkgDir, filepath.Join(dest, name))
	}

	module := filepath.Join(site, name+".py")

	exists, err := afero.Exists(fs, module)
	if err == nil && exists {
		return true, copyFile(fs, module, filepath.Join(dest, name+".py"))
	}

	shared, err := afero.Glob(fs, filepath.Join(site, name+sharedObjectSuffix))
	if err != nil {
		return false, fmt.Errorf("match %s: %w", name, err)
	}

	if len(shared) == 0 {
		return false, nil
	}

	for _, src := range shared {
		err = copyFile(fs, src, filepath.Join(dest, filepath.Base(src)))
		if err != nil {
			return true, err
		}
	}

	return true, nil
}

func copyTree(fs afero.Fs, src, dst string) error {
	return afero.Walk(fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return fs.MkdirAll(target, copyDirPerm)
		}

		return copyFile(fs, path, target)
	})
}

func copyFile(fs afero.Fs, src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	err = fs.MkdirAll(filepath.Dir(dst), copyDirPerm)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()

		return fmt.Errorf("copy %s: %w", src, err)
	}

	return out.Close()
}
