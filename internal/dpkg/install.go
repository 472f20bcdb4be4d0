package dpkg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/julien-sobczak/libreoffice-installer/internal/deb"
)

// PackagesDir is the directory of the release tarballs holding the .deb files.
const PackagesDir = "DEBS"

var (
	// ErrInstall matches every *InstallError with errors.Is.
	ErrInstall = errors.New("installation failed")

	ErrNoPackagesDir  = errors.New("no " + PackagesDir + " directory")
	ErrNoPackages     = errors.New("no .deb files found")
	ErrInvalidPackage = errors.New("invalid package file")
)

// InstallError reports a failed installation of the packages under Dir.
// Output holds what the package manager printed, if it ran.
type InstallError struct {
	Dir    string
	Output string
	Err    error
}

func (e *InstallError) Error() string {
	msg := fmt.Sprintf("unable to install packages from %s: %v", e.Dir, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *InstallError) Unwrap() []error { return []error{ErrInstall, e.Err} }

// Result describes a successful installation.
type Result struct {
	Files    []string
	Packages []*deb.Control
	Repaired bool // True when apt-get had to fix missing dependencies
}

// Installer installs the .deb files of an extracted release.
type Installer struct {
	runner Runner
	sudo   string
	logger *log.Logger
}

// Option configures an Installer.
type Option func(*Installer)

// WithSudo prefixes every command with the given privilege wrapper.
// An empty string runs the commands directly.
func WithSudo(sudo string) Option {
	return func(i *Installer) {
		i.sudo = sudo
	}
}

func WithLogger(l *log.Logger) Option {
	return func(i *Installer) {
		i.logger = l
	}
}

// NewInstaller returns an Installer running commands through runner, with
// sudo as privilege wrapper unless WithSudo says otherwise.
func NewInstaller(runner Runner, opts ...Option) *Installer {
	i := &Installer{
		runner: runner,
		sudo:   "sudo",
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = log.New(io.Discard)
	}
	return i
}

// Packages returns the sorted .deb files under <root>/DEBS.
func Packages(root string) ([]string, error) {
	dir := filepath.Join(root, PackagesDir)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, &InstallError{Dir: root, Err: ErrNoPackagesDir}
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.deb"))
	if err != nil {
		return nil, &InstallError{Dir: root, Err: err}
	}
	if len(files) == 0 {
		return nil, &InstallError{Dir: root, Err: fmt.Errorf("%w in %s", ErrNoPackages, dir)}
	}
	sort.Strings(files)
	return files, nil
}

// Install runs dpkg -i on every package of the release extracted in root.
// When dpkg fails, apt-get -f install fixes the missing dependencies and
// dpkg is run a second and last time.
func (i *Installer) Install(ctx context.Context, root string) (*Result, error) {
	files, err := Packages(root)
	if err != nil {
		i.logger.Error("No package to install", "dir", root, "err", err)
		return nil, err
	}

	result := &Result{Files: files}
	for _, file := range files {
		control, err := deb.Inspect(file)
		if err != nil {
			return nil, &InstallError{Dir: root, Err: fmt.Errorf("%w: %v", ErrInvalidPackage, err)}
		}
		result.Packages = append(result.Packages, control)
	}

	i.logger.Info("Installing packages", "dir", root, "count", len(files))

	out, err := i.run(ctx, "dpkg", append([]string{"-i"}, files...)...)
	if err == nil {
		i.logger.Info("Installation completed")
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, &InstallError{Dir: root, Output: string(out), Err: ctx.Err()}
	}
	i.logger.Warn("Missing dependencies, running apt-get -f install", "err", err)

	if out, err := i.run(ctx, "apt-get", "-f", "install", "-y"); err != nil {
		i.logger.Error("Dependency repair failed", "err", err, "output", string(out))
		return nil, &InstallError{Dir: root, Output: string(out), Err: err}
	}
	out, err = i.run(ctx, "dpkg", append([]string{"-i"}, files...)...)
	if err != nil {
		i.logger.Error("Installation failed after dependency repair", "err", err, "output", string(out))
		return nil, &InstallError{Dir: root, Output: string(out), Err: err}
	}

	result.Repaired = true
	i.logger.Info("Installation completed after dependency repair")
	return result, nil
}

func (i *Installer) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if i.sudo != "" {
		args = append([]string{name}, args...)
		name = i.sudo
	}
	return i.runner.Run(ctx, name, args...)
}
