// Package wsgi prepends virtualenv activation code to a web application's
// WSGI entry point.
package wsgi

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// DefaultPath is the entry point patched when none is configured.
const DefaultPath = "/var/www/wsgi.py"

// Marker is the first line of the activation snippet.
const Marker = "# This activates the virtualenv for your web app"

const (
	backupTimeLayout = "2006-01-02-15-04"
	backupExt        = ".bak"
)

// ErrEntryPointMissing is returned when the entry point file does not exist.
var ErrEntryPointMissing = errors.New("wsgi entry point not found")

// Status tells what Patch did.
type Status string

// Patch statuses.
const (
	StatusPatched        Status = "patched"
	StatusAlreadyPatched Status = "already patched"
	StatusPreview        Status = "preview"
)

// Options configures a Patcher.
type Options struct {
	// Path is the entry point file. Empty uses DefaultPath.
	Path string
	// Backup keeps a timestamped copy of the file before writing.
	Backup bool
	// Fake computes the change without writing anything.
	Fake bool
	// Now supplies the backup timestamp. Nil uses the current UTC time.
	Now func() time.Time
}

// Result describes one patch attempt.
type Result struct {
	Path   string `json:"path"             yaml:"path"`
	Status Status `json:"status"           yaml:"status"`
	Backup string `json:"backup,omitempty" yaml:"backup,omitempty"`
	// Diff previews the change in fake mode.
	Diff string `json:"diff,omitempty" yaml:"diff,omitempty"`
}

// Patcher edits one entry point file.
type Patcher struct {
	fs     afero.Fs
	opts   Options
	logger *slog.Logger
}

// New creates a patcher. A nil fs uses the OS filesystem.
func New(opts Options, fsys afero.Fs, logger *slog.Logger) *Patcher {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}

	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Patcher{fs: fsys, opts: opts, logger: logger}
}

// Path returns the entry point file.
func (p *Patcher) Path() string {
	return p.opts.Path
}

// Snippet returns the activation code for the environment in envDir.
func Snippet(envDir string) string {
	activate := filepath.Join(envDir, "bin", "activate_this.py")

	return Marker + "\n" +
		fmt.Sprintf("activate_this = %q\n", activate) +
		"exec(open(activate_this).read(), dict(__file__=activate_this))\n\n"
}

// Patch prepends the activation snippet unless it is already present.
func (p *Patcher) Patch(ctx context.Context, envDir string) (*Result, error) {
	abs, err := filepath.Abs(envDir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", envDir, err)
	}

	path := p.opts.Path

	info, err := p.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrEntryPointMissing, path)
	}

	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	old, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	snippet := Snippet(abs)
	res := &Result{Path: path}

	if strings.Contains(string(old), snippet) {
		p.logger.InfoContext(ctx, "activation code already found", "path", path)

		res.Status = StatusAlreadyPatched

		return res, nil
	}

	updated := snippet + string(old)

	if p.opts.Fake {
		res.Status = StatusPreview
		res.Diff = RenderDiff(string(old), updated)

		return res, nil
	}

	if p.opts.Backup {
		res.Backup = p.backupPath()

		err = afero.WriteFile(p.fs, res.Backup, old, info.Mode().Perm())
		if err != nil {
			return nil, fmt.Errorf("back up %s: %w", path, err)
		}

		p.logger.InfoContext(ctx, "backed up entry point", "backup", res.Backup)
	}

	err = afero.WriteFile(p.fs, path, []byte(updated), info.Mode().Perm())
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}

	p.logger.InfoContext(ctx, "entry point updated", "path", path, "env", abs)

	res.Status = StatusPatched

	return res, nil
}

func (p *Patcher) backupPath() string {
	return p.opts.Path + "." + p.opts.Now().Format(backupTimeLayout) + backupExt
}
