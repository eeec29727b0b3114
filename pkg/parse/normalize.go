package parse

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

const (
	// DefaultBaseURL is the site every relative link is resolved against
	DefaultBaseURL = "https://en.wikipedia.org"
	// DefaultArticlePrefix is the path prefix that marks an article URL
	DefaultArticlePrefix = "/wiki/"
)

// NamespacePrefixes are the non-article namespaces never followed by the crawler.
// Matching is case-sensitive and includes the trailing colon.
var NamespacePrefixes = []string{
	"Wikipedia:",
	"Help:",
	"File:",
	"Template:",
	"Category:",
	"Special:",
	"Talk:",
	"Portal:",
	"User:",
	"Draft:",
	"Media:",
}

// Normalizer turns raw hrefs into canonical article URLs for one site.
// It is safe for concurrent use.
type Normalizer struct {
	base          *url.URL
	articlePrefix string
	articleRoot   string // base + articlePrefix, the required prefix of followable URLs
	skip          map[string]struct{}
}

// NewNormalizer builds a Normalizer rooted at baseURL (scheme and host only are used).
// An empty articlePrefix selects DefaultArticlePrefix.
func NewNormalizer(baseURL, articlePrefix string) (*Normalizer, error) {
	if articlePrefix == "" {
		articlePrefix = DefaultArticlePrefix
	}
	if !strings.HasPrefix(articlePrefix, "/") || !strings.HasSuffix(articlePrefix, "/") {
		return nil, fmt.Errorf("article prefix %q must start and end with '/'", articlePrefix)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	root := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}

	skip := make(map[string]struct{}, len(NamespacePrefixes))
	for _, p := range NamespacePrefixes {
		skip[p] = struct{}{}
	}

	return &Normalizer{
		base:          root,
		articlePrefix: articlePrefix,
		articleRoot:   root.Scheme + "://" + root.Host + articlePrefix,
		skip:          skip,
	}, nil
}

// BaseURL returns the scheme://host the normalizer resolves against
func (n *Normalizer) BaseURL() string {
	return n.base.Scheme + "://" + n.base.Host
}

// ArticlePrefix returns the configured article path prefix
func (n *Normalizer) ArticlePrefix() string {
	return n.articlePrefix
}

// Normalize returns the canonical form of raw, or "" when raw is malformed or
// does not point under the article prefix.
// The canonical form is scheme://host/path: relative references are resolved
// against the base, a missing scheme becomes the base scheme, trailing slashes
// are stripped, and the query and fragment are dropped. Host case is preserved.
// Normalize is idempotent on its own output.
func (n *Normalizer) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Host == "" {
		u = n.base.ResolveReference(u)
	}

	scheme := u.Scheme
	if scheme == "" {
		scheme = n.base.Scheme
	}

	p := strings.TrimRight(u.EscapedPath(), "/")
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, n.articlePrefix) {
		return ""
	}

	return scheme + "://" + u.Host + p
}

// IsFollowable reports whether a canonical URL is an article on the base site
// outside every namespace in NamespacePrefixes.
func (n *Normalizer) IsFollowable(canonical string) bool {
	if !strings.HasPrefix(canonical, n.articleRoot) {
		return false
	}
	slug := canonical[len(n.articleRoot):]
	if slug == "" {
		return false
	}
	if idx := strings.Index(slug, ":"); idx >= 0 {
		if _, blocked := n.skip[slug[:idx+1]]; blocked {
			return false
		}
	}
	return true
}

// TitleFromURL derives a display title from the final path segment of a
// canonical URL, replacing underscores with spaces.
func TitleFromURL(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	segment := path.Base(u.EscapedPath())
	if segment == "/" || segment == "." {
		return ""
	}
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}
	return strings.TrimSpace(strings.ReplaceAll(segment, "_", " "))
}
