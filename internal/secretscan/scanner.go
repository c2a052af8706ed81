// Package secretscan implements the Secret Scanner (spec §4.5): a registry
// of provider regex patterns walked over an arbitrary JSON value, flagging
// any string leaf that matches an enabled pattern.
package secretscan

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/tidwall/gjson"
)

// Severity mirrors the provider pattern's configured risk level.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Pattern is one registered provider signature.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Severity    Severity
	BuiltIn     bool
	Enabled     bool
}

// Match is one detection surfaced by Scan.
type Match struct {
	Pattern      string
	JSONPath     string
	MaskedValue  string
	Severity     Severity
}

// Scanner holds the pattern registry and scans JSON values against it.
type Scanner struct {
	mu       sync.RWMutex
	patterns map[string]*Pattern
}

// builtins are the non-removable patterns (spec §4.5: "Built-in patterns
// are non-removable"), covering the credential shapes most likely to leak
// into a workflow definition or its step params.
func builtins() []*Pattern {
	return []*Pattern{
		{Name: "aws_access_key_id", Regex: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), Severity: SeverityCritical, BuiltIn: true, Enabled: true},
		{Name: "generic_api_key_assignment", Regex: regexp.MustCompile(`(?i)\bapi[_-]?key["']?\s*[:=]\s*["']?[A-Za-z0-9_\-]{20,}`), Severity: SeverityHigh, BuiltIn: true, Enabled: true},
		{Name: "stripe_live_secret", Regex: regexp.MustCompile(`\bsk_live_[A-Za-z0-9]{24,}\b`), Severity: SeverityCritical, BuiltIn: true, Enabled: true},
		{Name: "slack_token", Regex: regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`), Severity: SeverityHigh, BuiltIn: true, Enabled: true},
		{Name: "private_key_block", Regex: regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`), Severity: SeverityCritical, BuiltIn: true, Enabled: true},
		{Name: "bearer_jwt", Regex: regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`), Severity: SeverityMedium, BuiltIn: true, Enabled: true},
	}
}

// New builds a Scanner seeded with the non-removable built-in patterns.
func New() *Scanner {
	s := &Scanner{patterns: make(map[string]*Pattern)}
	for _, p := range builtins() {
		s.patterns[p.Name] = p
	}
	return s
}

// AddPattern registers a user-defined pattern; an invalid regex is
// rejected outright rather than stored disabled (spec: "Invalid regex at
// creation is rejected").
func (s *Scanner) AddPattern(name, rawRegex string, severity Severity) error {
	re, err := regexp.Compile(rawRegex)
	if err != nil {
		return fmt.Errorf("secretscan: invalid pattern %q: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[name] = &Pattern{Name: name, Regex: re, Severity: severity, Enabled: true}
	return nil
}

// SetEnabled toggles a non-built-in pattern; built-ins cannot be disabled.
func (s *Scanner) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patterns[name]
	if !ok {
		return fmt.Errorf("secretscan: unknown pattern %q", name)
	}
	if p.BuiltIn {
		return fmt.Errorf("secretscan: pattern %q is built-in and cannot be disabled", name)
	}
	p.Enabled = enabled
	return nil
}

// RemovePattern deletes a user-defined pattern; built-ins are rejected.
func (s *Scanner) RemovePattern(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patterns[name]
	if !ok {
		return fmt.Errorf("secretscan: unknown pattern %q", name)
	}
	if p.BuiltIn {
		return fmt.Errorf("secretscan: pattern %q is built-in and cannot be removed", name)
	}
	delete(s.patterns, name)
	return nil
}

// Scan walks value's JSON tree, testing every string leaf against every
// enabled pattern, returning one Match per (leaf, pattern) hit.
func (s *Scanner) Scan(value any) ([]Match, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("secretscan: marshal scan target: %w", err)
	}
	return s.ScanJSON(raw)
}

// ScanJSON scans an already-serialized JSON document.
func (s *Scanner) ScanJSON(raw []byte) ([]Match, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("secretscan: invalid JSON input")
	}
	s.mu.RLock()
	patterns := make([]*Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		if p.Enabled {
			patterns = append(patterns, p)
		}
	}
	s.mu.RUnlock()

	var matches []Match
	walk(gjson.ParseBytes(raw), "$", patterns, &matches)
	return matches, nil
}

func walk(result gjson.Result, path string, patterns []*Pattern, matches *[]Match) {
	switch {
	case result.IsObject():
		result.ForEach(func(key, value gjson.Result) bool {
			walk(value, path+"."+key.String(), patterns, matches)
			return true
		})
	case result.IsArray():
		i := 0
		result.ForEach(func(_, value gjson.Result) bool {
			walk(value, fmt.Sprintf("%s[%d]", path, i), patterns, matches)
			i++
			return true
		})
	case result.Type == gjson.String:
		text := result.String()
		for _, p := range patterns {
			if p.Regex.MatchString(text) {
				*matches = append(*matches, Match{
					Pattern: p.Name, JSONPath: path,
					MaskedValue: mask(text), Severity: p.Severity,
				})
			}
		}
	}
}

// mask keeps only the last 4 characters, per spec §4.5.
func mask(s string) string {
	if len(s) <= 4 {
		return s
	}
	masked := make([]byte, len(s)-4)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked) + s[len(s)-4:]
}
