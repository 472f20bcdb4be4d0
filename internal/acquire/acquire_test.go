package acquire_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/julien-sobczak/libreoffice-installer/internal/acquire"
	"github.com/julien-sobczak/libreoffice-installer/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	payload := bytes.Repeat([]byte("libreoffice"), 3000) // several chunks

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer srv.Close()

	var calls []int64
	var lastTotal int64
	dir := t.TempDir()
	a := acquire.New(srv.Client(), dir, acquire.WithProgress(func(name string, done, total int64) {
		assert.Equal(t, "archive.tar.gz", name)
		calls = append(calls, done)
		lastTotal = total
	}))

	path, skipped, err := a.Fetch(context.Background(), acquire.ArchiveItem{URL: srv.URL + "/24.2.3/deb/archive.tar.gz"})
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Equal(t, filepath.Join(dir, "archive.tar.gz"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	require.NotEmpty(t, calls)
	assert.Equal(t, int64(0), calls[0])
	assert.Equal(t, int64(len(payload)), calls[len(calls)-1])
	assert.Equal(t, int64(len(payload)), lastTotal)
	for i := 1; i < len(calls); i++ {
		assert.LessOrEqual(t, calls[i]-calls[i-1], int64(acquire.ChunkSize))
	}
}

func TestFetchSkipsExistingFile(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write([]byte("new content"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	testutil.PopulateTestDir(t, dir, map[string][]byte{
		"archive.tar.gz": []byte("partial"),
	})

	a := acquire.New(srv.Client(), dir)
	path, skipped, err := a.Fetch(context.Background(), acquire.ArchiveItem{URL: srv.URL + "/archive.tar.gz"})
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Equal(t, filepath.Join(dir, "archive.tar.gz"), path)
	assert.Equal(t, int32(0), atomic.LoadInt32(&requests))
	testutil.CheckFileContains(t, path, "partial")
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir := t.TempDir()
	a := acquire.New(srv.Client(), dir)
	url := srv.URL + "/missing.tar.gz"
	_, _, err := a.Fetch(context.Background(), acquire.ArchiveItem{URL: url})
	require.Error(t, err)
	assert.True(t, errors.Is(err, acquire.ErrDownload))

	var derr *acquire.DownloadError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, url, derr.URL)
	assert.Contains(t, derr.Error(), "404")

	// Nothing is written for a rejected request
	_, statErr := os.Stat(filepath.Join(dir, "missing.tar.gz"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := acquire.New(srv.Client(), t.TempDir())
	_, _, err := a.Fetch(ctx, acquire.ArchiveItem{URL: srv.URL + "/a.tar.gz"})
	assert.ErrorIs(t, err, acquire.ErrDownload)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchSlowSteadyDownload(t *testing.T) {
	chunk := bytes.Repeat([]byte("x"), acquire.ChunkSize)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 500ms in total, far beyond the timeout, but never idle for long
		for i := 0; i < 10; i++ {
			w.Write(chunk)
			w.(http.Flusher).Flush()
			time.Sleep(50 * time.Millisecond)
		}
	}))
	defer srv.Close()

	timeout := 200 * time.Millisecond
	dir := t.TempDir()
	a := acquire.New(acquire.NewClient(timeout), dir, acquire.WithIdleTimeout(timeout))

	path, skipped, err := a.Fetch(context.Background(), acquire.ArchiveItem{URL: srv.URL + "/big.tar.gz"})
	require.NoError(t, err)
	assert.False(t, skipped)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, 10*acquire.ChunkSize)
	testutil.CheckFileExists(t, path)
	_, statErr := os.Stat(path + acquire.PartialSuffix)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchStalledDownloadIsNotReused(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.Write([]byte("partial"))
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		}
		w.Write([]byte("complete"))
	}))
	defer srv.Close()

	timeout := 100 * time.Millisecond
	dir := t.TempDir()
	a := acquire.New(acquire.NewClient(time.Second), dir, acquire.WithIdleTimeout(timeout))
	item := acquire.ArchiveItem{URL: srv.URL + "/archive.tar.gz"}

	_, _, err := a.Fetch(context.Background(), item)
	require.Error(t, err)
	assert.ErrorIs(t, err, acquire.ErrDownload)
	assert.ErrorIs(t, err, acquire.ErrStalled)

	// The partial body is left aside, not under the final name
	dest := filepath.Join(dir, "archive.tar.gz")
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
	testutil.CheckFileContains(t, dest+acquire.PartialSuffix, "partial")

	path, skipped, err := a.Fetch(context.Background(), item)
	require.NoError(t, err)
	assert.False(t, skipped)
	testutil.CheckFileContains(t, path, "complete")
}

func TestBarNonInteractive(t *testing.T) {
	var buf bytes.Buffer
	bar := acquire.NewBar(&buf)

	bar.Update("a.tar.gz", 0, 1000)
	bar.Update("a.tar.gz", 50, 1000)
	bar.Update("a.tar.gz", 500, 1000)
	bar.Update("a.tar.gz", 510, 1000)
	bar.Update("a.tar.gz", 1000, 1000)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"a.tar.gz:   0% (0 B / 1.0 kB)",
		"a.tar.gz:  50% (500 B / 1.0 kB)",
		"a.tar.gz: 100% (1.0 kB / 1.0 kB)",
	}, lines)

	buf.Reset()
	bar.Update("b.tar.gz", 0, -1)
	bar.Update("b.tar.gz", 10, -1)
	assert.Equal(t, "b.tar.gz: downloading (size unknown)\n", buf.String())
}

func TestHumanReadable(t *testing.T) {
	assert.Equal(t, "999 B", acquire.HumanReadable(999))
	assert.Equal(t, "1.5 kB", acquire.HumanReadable(1500))
	assert.Equal(t, "245.3 MB", acquire.HumanReadable(245300000))
}
