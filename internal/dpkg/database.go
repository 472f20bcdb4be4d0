package dpkg

import (
	"fmt"
	"os"
	"strings"

	"github.com/julien-sobczak/deb822"
)

// StatusInstalled is the Status field of a correctly installed package.
const StatusInstalled = "install ok installed"

// Database is a read-only view of the dpkg status file.
type Database struct {
	status map[string]string // Package name => Status field
}

// Load parses the status file (usually /var/lib/dpkg/status).
func Load(statusPath string) (*Database, error) {
	f, err := os.Open(statusPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	parser, err := deb822.NewParser(f)
	if err != nil {
		return nil, err
	}
	statusContent, err := parser.Parse()
	if err != nil {
		return nil, fmt.Errorf("malformed status file %s: %w", statusPath, err)
	}

	db := &Database{status: make(map[string]string)}
	for _, paragraph := range statusContent.Paragraphs {
		name := paragraph.Value("Package")
		if name == "" {
			continue
		}
		db.status[name] = strings.TrimSpace(paragraph.Value("Status"))
	}
	return db, nil
}

// Status returns the Status field of the package, if known.
func (d *Database) Status(name string) (string, bool) {
	s, ok := d.status[name]
	return s, ok
}

// Installed reports whether the package is fully installed.
func (d *Database) Installed(name string) bool {
	return d.status[name] == StatusInstalled
}

// Missing returns the packages of the result not reported as installed.
func (d *Database) Missing(result *Result) []string {
	var missing []string
	for _, pkg := range result.Packages {
		if !d.Installed(pkg.Name()) {
			missing = append(missing, pkg.Name())
		}
	}
	return missing
}

// Verify checks every package of result is marked as installed in the
// status file and returns the names of the others.
func (i *Installer) Verify(statusPath string, result *Result) ([]string, error) {
	db, err := Load(statusPath)
	if err != nil {
		return nil, err
	}
	missing := db.Missing(result)
	if len(missing) > 0 {
		i.logger.Warn("Packages not reported as installed", "packages", strings.Join(missing, ", "))
	}
	return missing, nil
}
