// Package deb reads the metadata of Debian binary packages without
// installing them.
package deb

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/julien-sobczak/deb822"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

var (
	// ErrNotDebianArchive is returned for files lacking the debian-binary member.
	ErrNotDebianArchive = errors.New("not a debian archive")

	// ErrMissingControl is returned when the control file cannot be found.
	ErrMissingControl = errors.New("missing control file")
)

// Control holds the fields of DEBIAN/control.
type Control struct {
	Path      string
	Paragraph deb822.Paragraph
}

func (c *Control) Name() string {
	return c.Paragraph.Value("Package")
}

func (c *Control) Version() string {
	return c.Paragraph.Value("Version")
}

func (c *Control) Architecture() string {
	return c.Paragraph.Value("Architecture")
}

// String returns "name version arch" like dpkg-deb --show.
func (c *Control) String() string {
	return fmt.Sprintf("%s %s %s", c.Name(), c.Version(), c.Architecture())
}

// Inspect reads the control file of the .deb at path.
func Inspect(path string) (*Control, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reader := ar.NewReader(f)

	// debian-binary
	header, err := reader.Next()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrNotDebianArchive, err)
	}
	if memberName(header) != "debian-binary" {
		return nil, fmt.Errorf("%s: %w: first member is %q", path, ErrNotDebianArchive, memberName(header))
	}

	// control.tar
	for {
		header, err = reader.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%s: %w", path, ErrMissingControl)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if strings.HasPrefix(memberName(header), "control.tar") {
			break
		}
	}

	var bufControl bytes.Buffer
	if err := extractTar(memberName(header), &bufControl, reader); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	paragraph, err := ParseControl(bufControl)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Control{Path: path, Paragraph: paragraph}, nil
}

func memberName(header *ar.Header) string {
	return strings.TrimSuffix(strings.TrimSpace(header.Name), "/")
}

// extractTar decompresses the member according to its extension.
func extractTar(filename string, writer io.Writer, reader io.Reader) error {
	switch filepath.Ext(filename) {
	case ".gz":
		gzf, err := gzip.NewReader(reader)
		if err != nil {
			return err
		}
		defer gzf.Close()
		reader = gzf
	case ".xz":
		xzf, err := xz.NewReader(reader)
		if err != nil {
			return err
		}
		reader = xzf
	case ".zst":
		zf, err := zstd.NewReader(reader)
		if err != nil {
			return err
		}
		defer zf.Close()
		reader = zf
	case ".tar":
	default:
		return fmt.Errorf("unsupported compression for %s", filename)
	}
	_, err := io.Copy(writer, reader)
	return err
}

// ParseControl searches the control file inside the control tarball.
func ParseControl(buf bytes.Buffer) (deb822.Paragraph, error) {
	tr := tar.NewReader(&buf)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break // End of archive
		}
		if err != nil {
			return deb822.Paragraph{}, err
		}
		if filepath.Base(hdr.Name) != "control" {
			continue
		}

		var content bytes.Buffer
		if _, err := io.Copy(&content, tr); err != nil {
			return deb822.Paragraph{}, err
		}
		parser, err := deb822.NewParser(strings.NewReader(content.String()))
		if err != nil {
			return deb822.Paragraph{}, err
		}
		document, err := parser.Parse()
		if err != nil {
			return deb822.Paragraph{}, err
		}
		if len(document.Paragraphs) == 0 {
			return deb822.Paragraph{}, ErrMissingControl
		}
		return document.Paragraphs[0], nil
	}

	return deb822.Paragraph{}, ErrMissingControl
}
