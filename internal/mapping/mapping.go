// Package mapping resolves local source paths to repository-relative
// target paths using longest-prefix matching over an ordered rule set.
package mapping

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

// ErrNoMapping is returned when no rule's source prefix matches a path.
// Callers skip the file and log it; they never guess a target path.
var ErrNoMapping = errors.New("no mapping rule matches path")

// RepoPrefix is the fixed repository directory all synced files live
// under. It is a project convention, not configurable.
const RepoPrefix = "data"

// Rule maps a local source path prefix to a repository path prefix.
// Both sides are normalized, slash-separated relative paths without
// leading or trailing separators.
type Rule struct {
	Source string `yaml:"source" toml:"source" json:"source"`
	Target string `yaml:"target" toml:"target" json:"target"`
}

func (r Rule) segments() int {
	return strings.Count(r.Source, "/") + 1
}

// DefaultRules returns the built-in rule set used when the configuration
// supplies no rules.
func DefaultRules() []Rule {
	return []Rule{
		{Source: "usr/local/httpd/htdocs", Target: "htdocs"},
		{Source: "usr/local/asterisk/etc/asterisk/script", Target: "script"},
		{Source: "home/storage/local", Target: "home/storage/local"},
		{Source: "htdocs", Target: "htdocs"},
		{Source: "script", Target: "script"},
	}
}

// RuleSet is an ordered set of mapping rules. Rules are evaluated
// longest-source-first regardless of the order they were supplied in;
// ties keep the original configuration order, so the first listed rule
// wins. Resolution is pure and safe for concurrent use.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet validates, normalizes and orders the given rules. An empty
// slice yields the built-in default rules.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		src, err := normalizeRulePath(r.Source)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid source %q: %w", i, r.Source, err)
		}
		if src == "" {
			return nil, fmt.Errorf("rule %d: source prefix must not be empty", i)
		}
		dst, err := normalizeRulePath(r.Target)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid target %q: %w", i, r.Target, err)
		}
		normalized[i] = Rule{Source: src, Target: dst}
	}

	// Longest source first, measured in path segments; stable so that
	// equal-length rules keep configuration order.
	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].segments() > normalized[j].segments()
	})

	return &RuleSet{rules: normalized}, nil
}

// MustRuleSet is NewRuleSet for rule slices known to be valid, such as
// the built-in defaults.
func MustRuleSet(rules []Rule) *RuleSet {
	rs, err := NewRuleSet(rules)
	if err != nil {
		panic(err)
	}
	return rs
}

// Rules returns the rules in evaluation order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Resolve maps a normalized relative source path to its repository path.
// The empty path resolves to the empty target (files dropped directly at
// the watch convention root land under data/ without a subdirectory).
// Returns ErrNoMapping when no rule's source prefix matches.
func (rs *RuleSet) Resolve(localPath string) (string, error) {
	p, err := normalizeRulePath(localPath)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", localPath, err)
	}
	if p == "" {
		return "", nil
	}

	for _, r := range rs.rules {
		remainder, ok := cutPrefix(p, r.Source)
		if !ok {
			continue
		}
		if remainder == "" {
			return r.Target, nil
		}
		if r.Target == "" {
			return remainder, nil
		}
		return r.Target + "/" + remainder, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoMapping, p)
}

// RepoPath composes the final repository path for a resolved target
// directory and filename: data/<target>/<filename>.
func RepoPath(targetDir, filename string) string {
	if targetDir == "" {
		return path.Join(RepoPrefix, filename)
	}
	return path.Join(RepoPrefix, targetDir, filename)
}

// cutPrefix strips prefix from p when prefix is a whole-segment prefix,
// i.e. it matches the entire path or is followed by a separator.
func cutPrefix(p, prefix string) (string, bool) {
	if p == prefix {
		return "", true
	}
	if strings.HasPrefix(p, prefix+"/") {
		return p[len(prefix)+1:], true
	}
	return "", false
}

// normalizeRulePath canonicalizes separators and trims leading/trailing
// slashes. Absolute paths and parent traversal are rejected.
func normalizeRulePath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")
	if p == "" || p == "." {
		return "", nil
	}
	cleaned := path.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("path escapes its root")
	}
	return cleaned, nil
}
