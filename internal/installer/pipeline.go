// Package installer chains the stages of a LibreOffice installation:
// version discovery, then download, extraction and installation of each
// archive of the release, one after the other.
package installer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/julien-sobczak/libreoffice-installer/internal/acquire"
	"github.com/julien-sobczak/libreoffice-installer/internal/archive"
	"github.com/julien-sobczak/libreoffice-installer/internal/config"
	"github.com/julien-sobczak/libreoffice-installer/internal/dpkg"
	"github.com/julien-sobczak/libreoffice-installer/internal/logging"
	"github.com/julien-sobczak/libreoffice-installer/internal/release"
)

// Summary describes what a run did.
type Summary struct {
	Version   release.Version
	Canceled  bool
	Installed []release.Package
	Repaired  []release.Kind // Packages that needed apt-get -f install
}

// Pipeline runs an installation with the given collaborators.
type Pipeline struct {
	cfg      *config.Config
	client   *http.Client
	runner   dpkg.Runner
	verifier *acquire.Verifier
	in       io.Reader
	console  *logging.Console
	logger   *log.Logger
	progress acquire.Progress
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHTTPClient replaces the client used for discovery and downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) { p.client = c }
}

// WithRunner replaces the runner executing dpkg and apt-get.
func WithRunner(r dpkg.Runner) Option {
	return func(p *Pipeline) { p.runner = r }
}

// WithVerifier enables the verification of archive signatures.
func WithVerifier(v *acquire.Verifier) Option {
	return func(p *Pipeline) { p.verifier = v }
}

// WithInput sets where the confirmation is read from.
func WithInput(r io.Reader) Option {
	return func(p *Pipeline) { p.in = r }
}

// WithConsole sets where status lines are printed.
func WithConsole(c *logging.Console) Option {
	return func(p *Pipeline) { p.console = c }
}

// WithLogger sets the logger of the log file.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithProgress overrides the default progress bar printed on the console.
func WithProgress(fn acquire.Progress) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// NewPipeline creates a pipeline for cfg. Missing collaborators default to
// the real system: network, dpkg, stdin and stdout.
func NewPipeline(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = acquire.NewClient(cfg.Timeout)
	}
	if p.runner == nil {
		p.runner = dpkg.ExecRunner{}
	}
	if p.in == nil {
		p.in = os.Stdin
	}
	if p.console == nil {
		p.console = logging.NewConsole(os.Stdout)
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	if p.progress == nil {
		p.progress = acquire.NewBar(p.console.Writer()).Update
	}
	return p
}

// Run installs the latest release. A refused confirmation is not an error:
// the returned summary is marked as canceled.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	p.console.Banner("LibreOffice Automatic Installer for Debian/Ubuntu")

	p.logger.Info(strings.Repeat("=", 50))
	p.logger.Info("Starting LibreOffice installer")
	p.logger.Info("Configuration", "base_url", p.cfg.BaseURL, "download_dir", p.cfg.DownloadDir, "lang", p.cfg.Lang)
	p.logger.Info(strings.Repeat("=", 50))

	if err := p.Preflight(); err != nil {
		return nil, err
	}

	p.console.Header("Looking for the latest stable version...")
	p.logger.Info("Querying versions", "url", p.cfg.BaseURL)
	version, err := p.discover(ctx)
	if err != nil {
		p.console.Fail("Error:", err)
		p.logger.Error("Version discovery failed", "err", err)
		return nil, err
	}
	p.console.Info("Version detected:", "%s", version)
	p.logger.Info("Latest version detected", "version", version)

	summary := &Summary{Version: version}
	ok, err := p.confirm(ctx, version)
	if err != nil {
		p.logger.Warn("Confirmation interrupted", "err", err)
		return summary, err
	}
	if !ok {
		p.console.Warn("Operation canceled by the user")
		p.logger.Info("User canceled the operation")
		summary.Canceled = true
		return summary, nil
	}

	if err := os.MkdirAll(p.cfg.DownloadDir, 0755); err != nil {
		err = fmt.Errorf("unable to create download directory: %w", err)
		p.console.Fail("Error:", err)
		p.logger.Error("Unable to create download directory", "err", err)
		return summary, err
	}
	lock, err := AcquireLock(p.cfg.DownloadDir)
	if err != nil {
		p.console.Fail("Error:", err)
		p.logger.Error("Unable to lock download directory", "err", err)
		return summary, err
	}
	defer lock.Release()

	packages := release.Packages(p.cfg.BaseURL, version, p.cfg.Lang)

	p.console.Header("Downloading and installing %d packages", len(packages))
	for idx, pkg := range packages {
		label := pkg.Kind.Label(p.cfg.Lang)
		p.console.Header("\n[%d/%d] Processing: %s", idx+1, len(packages), label)
		p.logger.Info("Processing package", "index", idx+1, "total", len(packages), "package", label)

		result, err := p.process(ctx, pkg)
		if err != nil {
			p.console.Fail(fmt.Sprintf("ERROR in %s:", label), err)
			logging.Critical(p.logger, "Package failed", "package", label, "kind", Classify(err), "err", err)
			p.console.Warn("Installation stopped. See the log: %s", p.cfg.LogFile)
			return summary, fmt.Errorf("%s: %w", label, err)
		}

		summary.Installed = append(summary.Installed, pkg)
		if result.Repaired {
			summary.Repaired = append(summary.Repaired, pkg.Kind)
		}
		p.console.OK("%s installed", label)
	}

	p.console.OK("\nLibreOffice %s installed", version)
	p.console.Println("Downloaded files: %s", p.cfg.DownloadDir)
	p.console.Println("Log file: %s", p.cfg.LogFile)
	p.console.Info("To start LibreOffice, run:", "libreoffice%s", majorMinor(version))

	p.logger.Info(strings.Repeat("=", 50))
	p.logger.Info("Installation completed", "version", version)
	p.logger.Info(strings.Repeat("=", 50))
	return summary, nil
}

// discover bounds the listing request as a whole. Downloads are only
// bounded while idle.
func (p *Pipeline) discover(ctx context.Context) (release.Version, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	return release.Discover(ctx, p.client, p.cfg.BaseURL)
}

func (p *Pipeline) confirm(ctx context.Context, version release.Version) (bool, error) {
	if p.cfg.AssumeYes {
		p.logger.Info("Confirmation skipped (assume yes)")
		return true, nil
	}
	p.console.Warn("This will download and install LibreOffice %s", version)
	p.console.Println("Destination: %s", p.cfg.DownloadDir)
	p.console.Prompt("\nContinue? [Y/S/Yes/Si]:")
	return Confirm(ctx, p.in)
}

// process downloads, extracts and installs a single package.
func (p *Pipeline) process(ctx context.Context, pkg release.Package) (*dpkg.Result, error) {
	acq := acquire.New(p.client, p.cfg.DownloadDir,
		acquire.WithLogger(p.logger),
		acquire.WithProgress(p.progress),
		acquire.WithIdleTimeout(p.cfg.Timeout))

	tarball, skipped, err := acq.FetchVerified(ctx, acquire.ArchiveItem{URL: pkg.URL}, p.verifier)
	if err != nil {
		return nil, err
	}
	if skipped {
		p.console.Warn("Already exists (skipping): %s", pkg.Archive())
	} else {
		p.console.OK("Downloaded: %s", pkg.Archive())
	}

	root, err := archive.Extract(tarball, p.cfg.DownloadDir, archive.Options{
		AllowMixedRoots: p.cfg.AllowMixedRoots,
		Logger:          p.logger,
	})
	if err != nil {
		return nil, err
	}
	p.console.OK("Extracted: %s", root)

	installer := dpkg.NewInstaller(p.runner,
		dpkg.WithSudo(p.sudo()),
		dpkg.WithLogger(p.logger))
	if files, err := dpkg.Packages(root); err == nil {
		p.console.Info("Installing", "%d packages from %s", len(files), root)
	}
	result, err := installer.Install(ctx, root)
	if err != nil {
		return nil, err
	}
	if result.Repaired {
		p.console.Warn("Missing dependencies were fixed")
	}
	for _, control := range result.Packages {
		p.logger.Info("Package installed", "package", control.String())
	}

	if p.cfg.StatusFile != "" {
		if _, err := installer.Verify(p.cfg.StatusFile, result); err != nil {
			p.logger.Warn("Unable to verify installation", "err", err)
		}
	}
	return result, nil
}

// majorMinor returns the suffix of the launcher installed by the packages.
// Ex: 24.2.3 => 24.2
func majorMinor(v release.Version) string {
	parts := strings.Split(v.String(), ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + "." + parts[1]
}
