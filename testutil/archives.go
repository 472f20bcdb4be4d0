package testutil

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// TarEntry is a member of a test tarball.
// Directories end with a slash. Linkname makes the entry a symlink.
type TarEntry struct {
	Name     string
	Body     string
	Linkname string
}

// WriteTarGz creates a gzip-compressed tarball whose members appear in the given order.
func WriteTarGz(t *testing.T, dest string, entries []TarEntry) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{
			Name: e.Name,
			Mode: 0644,
			Size: int64(len(e.Body)),
		}
		switch {
		case e.Linkname != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Linkname
			hdr.Size = 0
		case len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/':
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0755
			hdr.Size = 0
		default:
			hdr.Typeflag = tar.TypeReg
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.Body)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dest, buf.Bytes())
}

// BuildDebianArchive writes a minimal .deb whose control member holds the
// given control file. compression is one of "", "gz", "xz" or "zst".
func BuildDebianArchive(t *testing.T, dest string, control string, compression string) {
	t.Helper()

	controlTarball := tarballPack(t, map[string]string{"./control": control})
	dataTarball := tarballPack(t, map[string]string{"./usr/share/doc/README": "test"})

	name := "control.tar"
	if compression != "" {
		name += "." + compression
		controlTarball = compress(t, controlTarball, compression)
	}

	var buf bytes.Buffer
	writer := ar.NewWriter(&buf)
	if err := writer.WriteGlobalHeader(); err != nil {
		t.Fatal(err)
	}
	arPutFile(t, writer, "debian-binary", []byte("2.0\n"))
	arPutFile(t, writer, name, controlTarball)
	arPutFile(t, writer, "data.tar", dataTarball)

	writeFile(t, dest, buf.Bytes())
}

/** arPutFile appends a new file in an ar archive. */
func arPutFile(t *testing.T, w *ar.Writer, name string, body []byte) {
	hdr := &ar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(body)),
	}
	if err := w.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(body); err != nil {
		t.Fatal(err)
	}
}

/** tarballPack creates a tar archive containing the files in lexical order. */
func tarballPack(t *testing.T, files map[string]string) []byte {
	var names []string
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range names {
		content := files[name]
		hdr := &tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func compress(t *testing.T, data []byte, compression string) []byte {
	var buf bytes.Buffer
	switch compression {
	case "gz":
		w := gzip.NewWriter(&buf)
		w.Write(data)
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	case "xz":
		w, err := xz.NewWriter(&buf)
		if err != nil {
			t.Fatal(err)
		}
		w.Write(data)
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	case "zst":
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			t.Fatal(err)
		}
		w.Write(data)
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	default:
		t.Fatalf("unsupported compression %q", compression)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, dest string, data []byte) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		t.Fatal(err)
	}
}
