package metadata

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrInvalidPattern is returned when a configured extraction pattern does not compile.
var ErrInvalidPattern = errors.New("invalid metadata pattern")

// Metadata maps lower-case metadata keys to values.
type Metadata map[string]string

// Get returns the value for key, matching case-insensitively.
func (m Metadata) Get(key string) string {
	return m[normalizeKey(key)]
}

// Has reports whether key is set, even to an empty value.
func (m Metadata) Has(key string) bool {
	_, ok := m[normalizeKey(key)]
	return ok
}

// SetDefault sets key to value unless it is already set.
// It reports whether the value was stored.
func (m Metadata) SetDefault(key, value string) bool {
	key = normalizeKey(key)
	if _, ok := m[key]; ok {
		return false
	}
	m[key] = value
	return true
}

// MergeDefaults copies every default whose key is not set yet.
func (m Metadata) MergeDefaults(defaults map[string]string) {
	for key, value := range defaults {
		m.SetDefault(key, value)
	}
}

// Clone returns a shallow copy of m.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Rule extracts the value of one metadata key from text.
type Rule struct {
	Key     string
	Pattern *regexp.Regexp
}

// Rules is an ordered set of extraction rules.
type Rules []Rule

// CompileRules compiles a key -> pattern mapping. Rules are ordered by key so
// that extraction is deterministic.
//
// Patterns use RE2 syntax. A pattern may also be written with slash delimiters
// and trailing flags ("/Author=([^\n]+)/i"); the flags i, m, s and U are
// translated to their inline RE2 equivalents.
func CompileRules(patterns map[string]string) (Rules, error) {
	keys := make([]string, 0, len(patterns))
	for key := range patterns {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rules := make(Rules, 0, len(keys))
	for _, key := range keys {
		re, err := regexp.Compile(translatePattern(patterns[key]))
		if err != nil {
			return nil, fmt.Errorf("%w for key %q: %v", ErrInvalidPattern, key, err)
		}

		rules = append(rules, Rule{Key: normalizeKey(key), Pattern: re})
	}

	return rules, nil
}

// Extract applies rules to text and returns current extended with every key
// that was not set before and whose pattern matched. The value is the first
// capture group, or the empty string when the pattern has none.
// current is not modified.
func Extract(text string, rules Rules, current Metadata) Metadata {
	out := current.Clone()
	for _, rule := range rules {
		if out.Has(rule.Key) {
			continue
		}

		match := rule.Pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}

		value := ""
		if len(match) > 1 {
			value = match[1]
		}
		out[rule.Key] = value
	}
	return out
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// translatePattern converts "/expr/flags" to "(?flags)expr". Anything that
// does not look delimited is returned unchanged.
func translatePattern(pattern string) string {
	if len(pattern) < 2 || pattern[0] != '/' {
		return pattern
	}

	end := strings.LastIndexByte(pattern, '/')
	if end == 0 {
		return pattern
	}

	expr, flags := pattern[1:end], pattern[end+1:]
	if strings.Trim(flags, "imsuU") != "" {
		return pattern
	}

	var inline strings.Builder
	for _, flag := range flags {
		// RE2 is always UTF-8 aware, so "u" needs no translation
		if flag != 'u' {
			inline.WriteRune(flag)
		}
	}

	if inline.Len() == 0 {
		return expr
	}
	return "(?" + inline.String() + ")" + expr
}
