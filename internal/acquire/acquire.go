package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// ChunkSize is the size of the buffer used to stream downloads to disk.
const ChunkSize = 8192

var (
	// ErrDownload matches every *DownloadError with errors.Is.
	ErrDownload = errors.New("download failed")

	ErrStalled = errors.New("no data received")
)

// PartialSuffix is appended to the destination while a download is running.
const PartialSuffix = ".part"

// DownloadError reports a failed retrieval of an item.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("unable to download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() []error { return []error{ErrDownload, e.Err} }

// Item is a remote file to retrieve.
type Item interface {
	// URI to retrieve the item.
	DownloadURI() string

	// DestFile returns the path where the file must be written under dir.
	DestFile(dir string) string
}

// Progress receives the cumulative number of bytes written for a file.
// total is -1 when the server did not advertise a size.
type Progress func(name string, done, total int64)

// Acquirer downloads items into a single directory.
type Acquirer struct {
	client   *http.Client
	dir      string
	progress Progress
	logger   *log.Logger
	idle     time.Duration
}

// Option configures an Acquirer.
type Option func(*Acquirer)

// WithProgress reports the transfer of every downloaded file.
func WithProgress(p Progress) Option {
	return func(a *Acquirer) {
		a.progress = p
	}
}

// WithLogger sets the logger receiving download events.
func WithLogger(l *log.Logger) Option {
	return func(a *Acquirer) {
		a.logger = l
	}
}

// WithIdleTimeout aborts a download when no byte is received for d.
func WithIdleTimeout(d time.Duration) Option {
	return func(a *Acquirer) {
		a.idle = d
	}
}

// NewClient returns an HTTP client suitable for large downloads: timeout
// bounds connecting and waiting for the response headers, not the transfer.
func NewClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport}
}

// New creates an Acquirer writing into dir.
func New(client *http.Client, dir string, opts ...Option) *Acquirer {
	a := &Acquirer{
		client: client,
		dir:    dir,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = log.New(io.Discard)
	}
	return a
}

// Dir returns the destination directory.
func (a *Acquirer) Dir() string {
	return a.dir
}

// Fetch retrieves item unless a file already exists at its destination.
// Nothing is checked about an existing file. The body is written to
// <dest>.part and renamed once complete: an interrupted download restarts
// from scratch on the next run.
func (a *Acquirer) Fetch(ctx context.Context, item Item) (string, bool, error) {
	uri := item.DownloadURI()
	dest := item.DestFile(a.dir)

	if _, err := os.Stat(dest); err == nil {
		a.logger.Info("File already exists", "path", dest)
		return dest, true, nil
	}

	a.logger.Info("Downloading", "url", uri)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	alive := func() {}
	if a.idle > 0 {
		watchdog := time.AfterFunc(a.idle, func() { cancel(ErrStalled) })
		defer watchdog.Stop()
		alive = func() { watchdog.Reset(a.idle) }
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", false, &DownloadError{URL: uri, Err: err}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		err = a.stalled(ctx, err)
		a.logger.Error("Download failed", "url", uri, "err", err)
		return "", false, &DownloadError{URL: uri, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		a.logger.Error("Download failed", "url", uri, "err", err)
		return "", false, &DownloadError{URL: uri, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", false, &DownloadError{URL: uri, Err: err}
	}
	partial := dest + PartialSuffix
	out, err := os.Create(partial)
	if err != nil {
		return "", false, &DownloadError{URL: uri, Err: err}
	}
	defer out.Close()

	if err := a.copy(out, resp.Body, filepath.Base(dest), resp.ContentLength, alive); err != nil {
		err = a.stalled(ctx, err)
		a.logger.Error("Download interrupted", "url", uri, "err", err, "partial", partial)
		return "", false, &DownloadError{URL: uri, Err: err}
	}
	if err := out.Close(); err != nil {
		return "", false, &DownloadError{URL: uri, Err: err}
	}
	if err := os.Rename(partial, dest); err != nil {
		return "", false, &DownloadError{URL: uri, Err: err}
	}

	a.logger.Info("Download completed", "path", dest, "size", HumanReadable(fileSize(dest)))
	return dest, false, nil
}

// stalled replaces the cancellation error caused by the idle watchdog.
func (a *Acquirer) stalled(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrStalled) {
		return fmt.Errorf("%w for %s", ErrStalled, a.idle)
	}
	return err
}

func (a *Acquirer) copy(dst io.Writer, src io.Reader, name string, total int64, alive func()) error {
	buf := make([]byte, ChunkSize)
	var done int64
	if a.progress != nil {
		a.progress(name, 0, total)
	}
	for {
		n, err := src.Read(buf)
		if n > 0 {
			alive()
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			done += int64(n)
			if a.progress != nil {
				a.progress(name, done, total)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ArchiveItem is a release archive identified by its URL.
type ArchiveItem struct {
	URL string
}

func (i ArchiveItem) DownloadURI() string {
	return i.URL
}

// DestFile keeps the last segment of the URL.
// Ex: <dir>/LibreOffice_24.2.3_Linux_x86-64_deb.tar.gz
func (i ArchiveItem) DestFile(dir string) string {
	return filepath.Join(dir, path.Base(i.URL))
}

func (i ArchiveItem) String() string {
	return i.URL
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// HumanReadable formats a number of bytes using SI units.
func HumanReadable(b int64) string {
	// From https://yourbasic.org/golang/formatting-byte-size-to-human-readable-format/
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(b)/float64(div), "kMGTPE"[exp])
}
