// Package whitelist implements the page-whitelist matcher gating screenshot
// capture. A pattern string is classified by syntactic sniffing into one of
// five mutually exclusive interpretations, tried in a fixed precedence
// order; the matcher allows a page when any configured pattern matches.
package whitelist

import (
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/contextbridge/backend/internal/logging"
)

// Matcher decides whether a URL/path/hash combination is whitelisted.
// Matching depends only on the inputs and the configured patterns; the
// regex cache is the only internal state and never affects outcomes.
type Matcher struct {
	patterns   []string
	log        *logging.Logger
	regexCache sync.Map // pattern string -> *regexp.Regexp, nil for invalid
}

// New creates a matcher over an ordered pattern list.
func New(patterns []string, log *logging.Logger) *Matcher {
	if log == nil {
		log = logging.NewNop()
	}
	return &Matcher{patterns: patterns, log: log.WithComponent("whitelist")}
}

// Patterns returns the configured pattern list.
func (m *Matcher) Patterns() []string {
	return m.patterns
}

// Allowed reports whether the page identified by url, path and hash matches
// any configured pattern. An empty pattern list allows everything.
func (m *Matcher) Allowed(url, path, hash string) bool {
	if len(m.patterns) == 0 {
		return true
	}
	for _, pattern := range m.patterns {
		if m.matches(pattern, url, path, hash) {
			return true
		}
	}
	return false
}

// matches applies the five-rule classification, in precedence order:
//
//  1. leading "#":          hash match, exact or prefix
//  2. leading "http":       substring OR regex against the full URL
//  3. contains "*":         wildcard, anchored full match against the path
//  4. leading "^" or \d/\w: raw regex against the path
//  5. otherwise:            exact path match or path-prefix match
func (m *Matcher) matches(pattern, url, path, hash string) bool {
	switch {
	case strings.HasPrefix(pattern, "#"):
		return hash == pattern || strings.HasPrefix(hash, pattern)

	case strings.HasPrefix(pattern, "http"):
		if strings.Contains(url, pattern) {
			return true
		}
		return m.regexMatch(pattern, url, false)

	case strings.Contains(pattern, "*"):
		if m.regexMatch(wildcardToRegex(pattern), path, true) {
			return true
		}
		// "/admin/*" also admits "/admin" itself. Only trailing wildcards
		// get this; a mid-pattern "*" keeps strict full-match semantics.
		if !strings.HasSuffix(pattern, "/*") {
			return false
		}
		stem := strings.TrimSuffix(pattern, "/*")
		return stem != "" && (path == stem || strings.HasPrefix(path, stem+"/"))

	case strings.HasPrefix(pattern, "^") || strings.Contains(pattern, `\d`) || strings.Contains(pattern, `\w`):
		return m.regexMatch(pattern, path, false)

	default:
		return path == pattern || strings.HasPrefix(path, pattern)
	}
}

// wildcardToRegex rewrites a wildcard pattern into an anchored regex:
// "*" becomes ".*" and "?" is escaped. Any other regex metacharacters the
// pattern carries (e.g. "\d") pass through intact, so mixed patterns keep
// their regex residue.
func wildcardToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(`\?`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString("$")
	return b.String()
}

// regexMatch compiles (with caching) and applies a regex. A pattern that
// fails to compile is logged once and contributes false forever after;
// it never panics or errors out of the matcher.
func (m *Matcher) regexMatch(pattern, input string, derived bool) bool {
	if cached, ok := m.regexCache.Load(pattern); ok {
		re, _ := cached.(*regexp.Regexp)
		if re == nil {
			return false
		}
		return re.MatchString(input)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		m.log.Warn("invalid whitelist pattern, treating as non-matching",
			zap.String("pattern", pattern),
			zap.Bool("wildcard_derived", derived),
			zap.Error(err),
		)
		m.regexCache.Store(pattern, (*regexp.Regexp)(nil))
		return false
	}

	m.regexCache.Store(pattern, re)
	return re.MatchString(input)
}
