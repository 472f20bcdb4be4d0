// Package archive unpacks the release tarballs.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

var (
	// ErrExtraction matches every *ExtractionError with errors.Is.
	ErrExtraction = errors.New("extraction failed")

	ErrNotTarball   = errors.New("not a gzip-compressed tar archive")
	ErrEmptyArchive = errors.New("archive is empty")
	ErrUnsafePath   = errors.New("member escapes the destination directory")
	ErrMixedRoots   = errors.New("members do not share a single root directory")
	ErrMissingRoot  = errors.New("extracted root directory not found")
)

// ExtractionError reports a failure while unpacking Archive.
type ExtractionError struct {
	Archive string
	Member  string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("unable to extract %s (member %s): %v", e.Archive, e.Member, e.Err)
	}
	return fmt.Sprintf("unable to extract %s: %v", e.Archive, e.Err)
}

func (e *ExtractionError) Unwrap() []error { return []error{ErrExtraction, e.Err} }

// Options tunes the extraction.
type Options struct {
	// AllowMixedRoots accepts members outside the root directory inferred
	// from the first member. They are still extracted.
	AllowMixedRoots bool

	Logger *log.Logger
}

// Extract unpacks the .tar.gz at archivePath into dest and returns the
// path of the top-level directory, taken from the first member.
//
// The archive is read twice: a first pass validates every member before
// anything is written on disk.
func Extract(archivePath, dest string, opts Options) (string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	members, err := List(archivePath)
	if err != nil {
		logger.Error("Invalid archive", "path", archivePath, "err", err)
		return "", err
	}
	if len(members) == 0 {
		return "", &ExtractionError{Archive: archivePath, Err: ErrEmptyArchive}
	}

	c := newChecker(dest)
	for _, m := range members {
		if err := c.check(m); err != nil {
			return "", &ExtractionError{Archive: archivePath, Member: m.Name, Err: err}
		}
	}

	// "./" entries (tar -C dir .) name the destination itself
	var root string
	for _, m := range members {
		if r := RootOf(m.Name); r != "" && r != "." {
			root = r
			break
		}
	}
	if root == "" {
		return "", &ExtractionError{Archive: archivePath, Member: members[0].Name, Err: ErrMissingRoot}
	}
	for _, m := range members {
		r := RootOf(m.Name)
		if r == "" || r == "." {
			continue
		}
		if !opts.AllowMixedRoots && r != root {
			return "", &ExtractionError{Archive: archivePath, Member: m.Name, Err: ErrMixedRoots}
		}
	}

	logger.Info("Extracting", "archive", filepath.Base(archivePath), "members", len(members))
	if err := unpack(archivePath, dest); err != nil {
		logger.Error("Extraction failed", "path", archivePath, "err", err)
		return "", err
	}

	extracted := filepath.Join(dest, root)
	if info, err := os.Stat(extracted); err != nil || !info.IsDir() {
		logger.Error("Extracted directory not found", "path", extracted)
		return "", &ExtractionError{Archive: archivePath, Err: fmt.Errorf("%w: %s", ErrMissingRoot, extracted)}
	}

	logger.Info("Extraction completed", "path", extracted)
	return extracted, nil
}

// List returns the headers of every member in archive order.
func List(archivePath string) ([]*tar.Header, error) {
	var members []*tar.Header
	err := walk(archivePath, func(hdr *tar.Header, _ io.Reader) error {
		members = append(members, hdr)
		return nil
	})
	return members, err
}

// RootOf returns the first segment of a member name.
// Ex: LibreOffice_24.2.3.2_Linux_x86-64_deb/DEBS/libobasis24.2-core.deb => LibreOffice_24.2.3.2_Linux_x86-64_deb
func RootOf(name string) string {
	name = strings.TrimPrefix(name, "./")
	if i := strings.Index(name, "/"); i >= 0 {
		return name[:i]
	}
	return name
}

// checker validates members in archive order. It remembers the symbolic
// links accepted so far: no later member may be written through one of them.
type checker struct {
	dest  string
	links map[string]bool
}

func newChecker(dest string) *checker {
	return &checker{dest: dest, links: make(map[string]bool)}
}

func (c *checker) check(hdr *tar.Header) error {
	if filepath.IsAbs(hdr.Name) {
		return ErrUnsafePath
	}
	name, err := c.resolve(nil, hdr.Name)
	if err != nil {
		return err
	}
	key := strings.Join(name, "/")
	if c.links[key] {
		// Writing the member would follow the link
		return ErrUnsafePath
	}

	switch hdr.Typeflag {
	case tar.TypeSymlink:
		link := hdr.Linkname
		var base []string
		if filepath.IsAbs(link) {
			rel, err := filepath.Rel(filepath.Clean(c.dest), filepath.Clean(link))
			if err != nil {
				return ErrUnsafePath
			}
			link = rel
		} else if len(name) > 0 {
			base = name[:len(name)-1]
		}
		if _, err := c.resolve(base, link); err != nil {
			return err
		}
		c.links[key] = true
	case tar.TypeLink:
		if filepath.IsAbs(hdr.Linkname) {
			return ErrUnsafePath
		}
		if _, err := c.resolve(nil, hdr.Linkname); err != nil {
			return err
		}
	}
	return nil
}

// resolve walks rel from the directory base (relative to the destination)
// and returns the segments of the resulting path. It fails when the walk
// leaves the destination or passes through a link accepted earlier.
// Ex: base=[Foo] rel=../Bar/baz.txt => [Bar baz.txt]
func (c *checker) resolve(base []string, rel string) ([]string, error) {
	parts := append([]string(nil), base...)
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == "" || seg == "." {
			continue
		}
		if len(parts) > 0 && c.links[strings.Join(parts, "/")] {
			return nil, ErrUnsafePath
		}
		if seg == ".." {
			if len(parts) == 0 {
				return nil, ErrUnsafePath
			}
			parts = parts[:len(parts)-1]
			continue
		}
		parts = append(parts, seg)
	}
	return parts, nil
}

func unpack(archivePath, dest string) error {
	return walk(archivePath, func(hdr *tar.Header, r io.Reader) error {
		target := filepath.Join(dest, hdr.Name)
		mode := os.FileMode(hdr.Mode).Perm()

		var err error
		switch hdr.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, 0755)
		case tar.TypeReg:
			err = writeFile(target, r, mode)
		case tar.TypeSymlink:
			if err = os.MkdirAll(filepath.Dir(target), 0755); err == nil {
				os.Remove(target)
				err = os.Symlink(hdr.Linkname, target)
			}
		case tar.TypeLink:
			if err = os.MkdirAll(filepath.Dir(target), 0755); err == nil {
				os.Remove(target)
				err = os.Link(filepath.Join(dest, hdr.Linkname), target)
			}
		default:
			// Devices, FIFOs... never present in release tarballs
			return nil
		}
		if err != nil {
			return &ExtractionError{Archive: archivePath, Member: hdr.Name, Err: err}
		}
		return nil
	})
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// walk calls fn for every member of the gzip-compressed tarball.
func walk(archivePath string, fn func(*tar.Header, io.Reader) error) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return &ExtractionError{Archive: archivePath, Err: err}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return &ExtractionError{Archive: archivePath, Err: fmt.Errorf("%w: %v", ErrNotTarball, err)}
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil // End of archive
		}
		if err != nil {
			return &ExtractionError{Archive: archivePath, Err: fmt.Errorf("%w: %v", ErrNotTarball, err)}
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}
