package release

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	// ErrDiscovery matches every *DiscoveryError with errors.Is.
	ErrDiscovery = errors.New("version discovery failed")

	// ErrNoVersions indicates the listing contained no version directory.
	ErrNoVersions = errors.New("no versions found in listing")

	hrefPattern = regexp.MustCompile(`^(\d+\.\d+\.\d+)/?$`)
	textPattern = regexp.MustCompile(`\d+\.\d+\.\d+`)
)

// DiscoveryError reports why the latest version could not be determined.
type DiscoveryError struct {
	URL string
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("unable to discover latest version at %s: %v", e.URL, e.Err)
}

func (e *DiscoveryError) Unwrap() []error { return []error{ErrDiscovery, e.Err} }

// Discover downloads the directory listing at baseURL and returns
// the highest version directory it links to.
func Discover(ctx context.Context, client *http.Client, baseURL string) (Version, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return "", &DiscoveryError{URL: baseURL, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &DiscoveryError{URL: baseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &DiscoveryError{URL: baseURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &DiscoveryError{URL: baseURL, Err: err}
	}

	latest, ok := Latest(ListVersions(body))
	if !ok {
		return "", &DiscoveryError{URL: baseURL, Err: ErrNoVersions}
	}
	return latest, nil
}

// ListVersions extracts the version directories from a listing page.
// Anchors are used when the page has any. Otherwise every N.N.N found
// in the raw text is returned.
func ListVersions(listing []byte) []string {
	var versions []string
	anchors := 0

	z := html.NewTokenizer(bytes.NewReader(listing))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or malformed markup, either way we keep what we got
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		if string(name) != "a" {
			continue
		}
		anchors++
		for hasAttr {
			var key, val []byte
			key, val, hasAttr = z.TagAttr()
			if string(key) != "href" {
				continue
			}
			if m := hrefPattern.FindStringSubmatch(strings.TrimSpace(string(val))); m != nil {
				versions = append(versions, m[1])
			}
		}
	}

	if anchors == 0 {
		versions = textPattern.FindAllString(string(listing), -1)
	}
	return versions
}
