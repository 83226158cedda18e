package offlinecache

import "strings"

// Manifest is the ordered list of precached paths, relative to the scope.
type Manifest []string

// Matches reports whether the request path is one of the manifest entries.
func (m Manifest) Matches(pathname string) bool {
	for _, entry := range m {
		if SamePath(pathname, entry) {
			return true
		}
	}
	return false
}

// SamePath compares a request path with a relative manifest entry.
// A leading "./" of the entry is replaced with "/", then the path must either
// equal the entry or end with it. The suffix form lets "./" and "./index.html"
// match a page deployed under a sub-path such as /project/index.html.
func SamePath(pathname, relative string) bool {
	norm := relative
	if strings.HasPrefix(norm, "./") {
		norm = "/" + strings.TrimPrefix(norm, "./")
	}
	return pathname == norm || strings.HasSuffix(pathname, norm)
}
