// Package pattern implements the glob-style key matching used by
// query(), getByPrefix(), namespace clearing, and backup key enumeration.
// Grounded directly on pkg/utils/pattern.go in the retrieval pack: the same
// exact/prefix/regex fast-path structure, with a compiled-regex cache, plus
// a SQL LIKE translator for L3 enumeration that pattern.go didn't need
// (the teacher only ever matched in-process key lists).
package pattern

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var regexCache sync.Map // pattern string -> *regexp.Regexp

// Match reports whether key matches pattern. Pattern syntax:
//   - "" or omitted is the caller's responsibility to treat as match-all
//   - exact: "user:123" matches only "user:123"
//   - prefix: "users:*" matches any key starting with "users:"
//   - wildcard: "*" matches everything; "?" matches a single rune
//   - anything else is translated to a cached, anchored regex in which
//     every character other than '*' and '?' (including '.') matches literally
func Match(pattern, key string) (bool, error) {
	if pattern == "" {
		return false, fmt.Errorf("pattern cannot be empty")
	}
	if pattern == key {
		return true, nil
	}
	if pattern == "*" {
		return true, nil
	}
	if strings.HasSuffix(pattern, "*") && !strings.Contains(pattern[:len(pattern)-1], "*") && !strings.Contains(pattern, "?") {
		return strings.HasPrefix(key, pattern[:len(pattern)-1]), nil
	}

	regexPattern := globToRegex(pattern)

	var re *regexp.Regexp
	if cached, ok := regexCache.Load(regexPattern); ok {
		re = cached.(*regexp.Regexp)
	} else {
		compiled, err := regexp.Compile("^" + regexPattern + "$")
		if err != nil {
			return false, fmt.Errorf("invalid pattern: %w", err)
		}
		regexCache.Store(regexPattern, compiled)
		re = compiled
	}
	return re.MatchString(key), nil
}

// Filter returns the subset of keys matching pattern, preserving order.
func Filter(pattern string, keys []string) ([]string, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern cannot be empty")
	}
	if pattern == "*" {
		out := make([]string, len(keys))
		copy(out, keys)
		return out, nil
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		ok, err := Match(pattern, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func globToRegex(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) * 2)
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch ch {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '.', '+', '(', ')', '|', '[', ']', '{', '}', '^', '$', '\\':
			b.WriteByte('\\')
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// ToSQLLike translates the same glob syntax to a SQL LIKE pattern, escaping
// LIKE's own metacharacters ('%', '_') so they're matched literally unless
// the caller's glob explicitly used '*'/'?'. Used by the L3 layer to
// enumerate keys without pulling the whole table into the process (see
// SPEC_FULL.md §9's resolution of the keys(pattern) open question). The
// escape character is backslash; callers must pass `ESCAPE '\'` alongside.
func ToSQLLike(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) * 2)
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch ch {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// IsLiteral reports whether pattern has no glob metacharacters, meaning
// exact-match lookup can be used instead of a LIKE/regex scan.
func IsLiteral(pattern string) bool {
	return !strings.ContainsAny(pattern, "*?")
}

// IsGlobOnly reports whether pattern uses nothing but literal runes and the
// glob wildcards '*'/'?', meaning it can be handed directly to Redis' own
// MATCH syntax (SCAN/DeletePattern) unchanged. A pattern containing any of
// the characters globToRegex escapes is reported as not glob-only: Match
// treats those characters literally, while Redis' matcher gives some of
// them ('[', ']', '\\') a special meaning.
func IsGlobOnly(pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*', '?':
		case '.', '+', '(', ')', '|', '[', ']', '{', '}', '^', '$', '\\':
			return false
		}
	}
	return true
}
