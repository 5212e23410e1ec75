package stdlib

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/modset"
)

// PackageMarker is the file that turns a directory into a Python package.
const PackageMarker = "__init__.py"

// Module file extensions found in the interpreter's search path.
const (
	sourceExt   = ".py"
	sharedExt   = ".so"
	windowsExt  = ".pyd"
	sitePackage = "site-packages"
	distPackage = "dist-packages"
)

// ErrStdlibDir is returned when the interpreter's standard library directory
// cannot be listed.
var ErrStdlibDir = errors.New("standard library directory unreadable")

// Layout describes the installation of one Python interpreter.
type Layout struct {
	Executable string   `json:"executable"`
	Version    string   `json:"version"`
	StdlibDir  string   `json:"stdlib"`
	PurelibDir string   `json:"purelib"`
	PlatlibDir string   `json:"platlib"`
	Path       []string `json:"path"`
	Builtins   []string `json:"builtins"`
}

// SitePackages returns the site-specific directories of the layout, the
// places third-party packages are installed into.
func (l *Layout) SitePackages() []string {
	seen := modset.New()

	var dirs []string

	for _, dir := range append([]string{l.PurelibDir, l.PlatlibDir}, l.Path...) {
		if dir == "" || seen.Has(dir) || !isSitePath(dir) {
			continue
		}

		seen.Add(dir)
		dirs = append(dirs, dir)
	}

	return dirs
}

// Collect builds the standard-library set from an interpreter layout:
// top-level modules and packages of the stdlib directory, module files in
// non-site search path entries below it, and the compiled-in module names.
func Collect(l *Layout) (modset.Set, error) {
	names := modset.New(l.Builtins...)

	entries, err := os.ReadDir(l.StdlibDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStdlibDir, l.StdlibDir, err)
	}

	for _, entry := range entries {
		switch {
		case entry.IsDir():
			if isPackageDir(filepath.Join(l.StdlibDir, entry.Name())) {
				names.Add(entry.Name())
			}
		case strings.HasSuffix(entry.Name(), sourceExt):
			names.Add(strings.TrimSuffix(entry.Name(), sourceExt))
		}
	}

	for _, dir := range l.Path {
		if !strings.HasPrefix(dir, l.StdlibDir) || isSitePath(dir) {
			continue
		}

		names.Union(moduleFiles(dir))
	}

	return names, nil
}

// moduleFiles lists the source and extension modules of dir. Entries that
// are missing or not directories (zip archives on sys.path) yield nothing.
func moduleFiles(dir string) modset.Set {
	names := modset.New()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return names
	}

	for _, entry := range entries {
		if entry.Type()&fs.ModeDir != 0 || !isModuleFile(entry.Name()) {
			continue
		}

		name, _, _ := strings.Cut(entry.Name(), ".")
		if name != "" {
			names.Add(name)
		}
	}

	return names
}

func isModuleFile(name string) bool {
	ext := filepath.Ext(name)

	return ext == sourceExt || ext == sharedExt || ext == windowsExt
}

func isPackageDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, PackageMarker))

	return err == nil && !info.IsDir()
}

func isSitePath(dir string) bool {
	return strings.Contains(dir, sitePackage) || strings.Contains(dir, distPackage)
}
