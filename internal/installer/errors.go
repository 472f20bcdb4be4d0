package installer

import (
	"errors"

	"github.com/julien-sobczak/libreoffice-installer/internal/acquire"
	"github.com/julien-sobczak/libreoffice-installer/internal/archive"
	"github.com/julien-sobczak/libreoffice-installer/internal/dpkg"
	"github.com/julien-sobczak/libreoffice-installer/internal/release"
)

// Kind classifies the errors returned by the pipeline.
type Kind int

const (
	KindNone Kind = iota
	KindDiscovery
	KindDownload
	KindExtraction
	KindInstall
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindDiscovery:
		return "discovery"
	case KindDownload:
		return "download"
	case KindExtraction:
		return "extraction"
	case KindInstall:
		return "install"
	}
	return "fatal"
}

// Classify returns the stage responsible for err.
// Anything not raised by a stage is fatal.
func Classify(err error) Kind {
	var (
		discoveryErr  *release.DiscoveryError
		downloadErr   *acquire.DownloadError
		extractionErr *archive.ExtractionError
		installErr    *dpkg.InstallError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &discoveryErr):
		return KindDiscovery
	case errors.As(err, &downloadErr):
		return KindDownload
	case errors.As(err, &extractionErr):
		return KindExtraction
	case errors.As(err, &installErr):
		return KindInstall
	}
	return KindFatal
}
