package release

import (
	"fmt"
	"path"
	"strings"
)

// Kind identifies one of the archives published for a release.
type Kind string

const (
	KindBase     Kind = "base"
	KindHelpPack Kind = "helppack"
	KindLangPack Kind = "langpack"
)

// Label is the name printed to the operator.
func (k Kind) Label(lang string) string {
	switch k {
	case KindHelpPack:
		return fmt.Sprintf("HELPPACK (%s)", strings.ToUpper(lang))
	case KindLangPack:
		return fmt.Sprintf("LANGPACK (%s)", strings.ToUpper(lang))
	}
	return "BASE"
}

// Package describes an archive to download and install.
type Package struct {
	Kind Kind
	URL  string
}

// Archive returns the file name of the archive (the last URL segment).
func (p Package) Archive() string {
	return path.Base(p.URL)
}

// Packages returns the archives of a release in installation order.
// The base package always comes first.
//
// Ex: https://download.documentfoundation.org/libreoffice/stable/24.2.3/deb/x86_64/LibreOffice_24.2.3_Linux_x86-64_deb.tar.gz
func Packages(baseURL string, v Version, lang string) []Package {
	prefix := fmt.Sprintf("%s/%s/deb/x86_64/LibreOffice_%s_Linux_x86-64_deb", strings.TrimRight(baseURL, "/"), v, v)
	return []Package{
		{Kind: KindBase, URL: prefix + ".tar.gz"},
		{Kind: KindHelpPack, URL: fmt.Sprintf("%s_helppack_%s.tar.gz", prefix, lang)},
		{Kind: KindLangPack, URL: fmt.Sprintf("%s_langpack_%s.tar.gz", prefix, lang)},
	}
}
