// Package credentials supplies optional authentication material to the
// media downloader. Remote hosts increasingly gate downloads behind bot
// detection; a cookie jar exported from a signed-in browser session
// raises the fetch success rate. Absence of material is never an error.
package credentials

import (
	"os"
	"path/filepath"
)

// Provider hands out a cookie jar path when one is available.
type Provider struct {
	dir string
}

// NewProvider creates a provider that looks for cookies.txt inside dir.
func NewProvider(dir string) *Provider {
	return &Provider{dir: dir}
}

// CookieFile returns the path to a Netscape-format cookie file, or ""
// when no usable jar exists.
func (p *Provider) CookieFile() string {
	if p == nil || p.dir == "" {
		return ""
	}
	path := filepath.Join(p.dir, "cookies.txt")
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return ""
	}
	return path
}
