package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Rule is one acceptance rule. Rules are configuration, loaded once per
// process lifetime, and evaluated in declaration order: the first rule whose
// type pattern and identity restriction both match wins.
type Rule struct {
	// Type is an exact MIME type, a prefix wildcard like "image/*", or "*".
	Type string `yaml:"type"`
	// MaxSize bounds the declared size in bytes; zero means unbounded.
	MaxSize int64 `yaml:"maxSize,omitempty"`
	// Pubkeys restricts the rule to the listed identities; empty means anyone.
	Pubkeys []string `yaml:"pubkeys,omitempty"`
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// Load reads the ordered rule list from a YAML file.
func Load(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	for i, r := range f.Rules {
		if r.Type == "" {
			return nil, fmt.Errorf("rule %d: type is required", i)
		}
	}
	return f.Rules, nil
}

// MatchInput describes one upload's declared properties.
type MatchInput struct {
	Type   string
	Size   int64 // 0 when not declared
	Pubkey string
}

// Match scans rules in declaration order and returns the first match, or nil.
// Absence of a match is not an error; the caller decides what it means.
//
// When requirePubkeyInRule is set, only rules that explicitly list the caller's
// pubkey can match. Otherwise a rule with a pubkey restriction still only
// matches listed pubkeys, while an unrestricted rule matches anyone.
func Match(rs []Rule, in MatchInput, requirePubkeyInRule bool) *Rule {
	for i := range rs {
		r := &rs[i]
		if !typeMatches(r.Type, in.Type) {
			continue
		}
		if r.MaxSize > 0 && in.Size > r.MaxSize {
			continue
		}
		if requirePubkeyInRule {
			if in.Pubkey == "" || !hasPubkey(r, in.Pubkey) {
				continue
			}
		} else if len(r.Pubkeys) > 0 && !hasPubkey(r, in.Pubkey) {
			continue
		}
		return r
	}
	return nil
}

func typeMatches(pattern, contentType string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(contentType, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == contentType
}

func hasPubkey(r *Rule, pubkey string) bool {
	for _, pk := range r.Pubkeys {
		if pk == pubkey {
			return true
		}
	}
	return false
}
