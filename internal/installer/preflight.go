package installer

import (
	"errors"
	"fmt"
	"os"

	"github.com/julien-sobczak/libreoffice-installer/internal/logging"
)

var (
	// ErrUnsupportedSystem is returned when dpkg cannot be found.
	ErrUnsupportedSystem = errors.New("a Debian/Ubuntu system with dpkg is required")

	// Geteuid is replaced in tests.
	Geteuid = os.Geteuid
)

// Preflight checks the system can install .deb packages and warns when
// sudo will prompt for a password.
func (p *Pipeline) Preflight() error {
	if _, err := os.Stat(p.cfg.DpkgPath); err != nil {
		p.console.Fail("Unsupported system:", fmt.Errorf("%w (%s not found)", ErrUnsupportedSystem, p.cfg.DpkgPath))
		logging.Critical(p.logger, "Unsupported system: dpkg not found", "path", p.cfg.DpkgPath)
		return fmt.Errorf("%w: %v", ErrUnsupportedSystem, err)
	}
	p.logger.Info("Compatible system", "dpkg", p.cfg.DpkgPath)

	if Geteuid() != 0 {
		if p.cfg.Sudo != "" {
			p.console.Warn("%s will be requested during package installation", p.cfg.Sudo)
		}
		p.logger.Warn("Not running as root, privileges will be elevated", "wrapper", p.cfg.Sudo)
	}
	return nil
}

// sudo returns the privilege wrapper to use. None is needed as root.
func (p *Pipeline) sudo() string {
	if Geteuid() == 0 {
		return ""
	}
	return p.cfg.Sudo
}
