// Package envstore implements the process.env bridge's host-side store
// (spec.md §6, SPEC_FULL.md §4 from original_source/env_store.rs): a
// five-part policy gating which environment variables script can observe
// through __env_has/__env_get/__env_keys, independent of whatever the
// capability gate's CanEnv grants at the coarser per-name level.
//
// Resolution order for a given name: (1) default deny; (2) an explicit
// allowlist always wins; (3) a passthrough set (visible but not
// separately audited) also wins; (4) a deny-pattern glob filter rejects
// anything matching a cloud-credential-shaped name; (5) anything left
// over after 1-4 is denied.
package envstore

import "strings"

// Pattern is a compiled deny-pattern glob: "*PREFIX" (suffix match),
// "SUFFIX*" (prefix match), "*CONTAINS*" (substring match), or an exact
// literal (no wildcard).
type Pattern struct {
	raw      string
	hasLead  bool
	hasTrail bool
	core     string
}

// CompilePattern parses one of the three glob forms or an exact match.
func CompilePattern(p string) Pattern {
	lead := strings.HasPrefix(p, "*")
	trail := strings.HasSuffix(p, "*")
	core := p
	if lead {
		core = strings.TrimPrefix(core, "*")
	}
	if trail {
		core = strings.TrimSuffix(core, "*")
	}
	return Pattern{raw: p, hasLead: lead, hasTrail: trail, core: core}
}

// Match reports whether name satisfies the pattern.
func (p Pattern) Match(name string) bool {
	switch {
	case p.hasLead && p.hasTrail:
		return strings.Contains(name, p.core)
	case p.hasLead:
		return strings.HasSuffix(name, p.core)
	case p.hasTrail:
		return strings.HasPrefix(name, p.core)
	default:
		return name == p.core
	}
}

// DefaultDenyPatterns covers the cloud-credential-shaped names spec.md §6
// names explicitly: AWS/*_SECRET/*_TOKEN/*_KEY/DATABASE_URL/POSTGRES_*/
// OPENAI_*/ANTHROPIC_*/GITHUB_TOKEN/JWT_*/SSH_*.
var DefaultDenyPatterns = []string{
	"AWS*",
	"*_SECRET*",
	"*_TOKEN*",
	"*_KEY*",
	"DATABASE_URL",
	"POSTGRES_*",
	"OPENAI_*",
	"ANTHROPIC_*",
	"GITHUB_TOKEN",
	"JWT_*",
	"SSH_*",
}

// Store is the compiled, queryable policy plus the backing key/value data
// it's allowed to expose a view over.
type Store struct {
	data        map[string]string
	allowlist   map[string]bool
	passthrough map[string]bool
	deny        []Pattern
}

// NewStore builds a store over data (typically os.Environ() decoded into a
// map by the caller) with no grants: every name is denied until allowed or
// passed through.
func NewStore(data map[string]string) *Store {
	s := &Store{data: data, allowlist: map[string]bool{}, passthrough: map[string]bool{}}
	for _, p := range DefaultDenyPatterns {
		s.deny = append(s.deny, CompilePattern(p))
	}
	return s
}

// Allow adds names to the explicit allowlist (policy step 2): these are
// always visible regardless of the deny-pattern filter.
func (s *Store) Allow(names ...string) *Store {
	for _, n := range names {
		s.allowlist[n] = true
	}
	return s
}

// Passthrough adds names to the passthrough set (policy step 3): visible
// like an allowlist entry, but conceptually "not secret-shaped" rather
// than "explicitly vetted" — the distinction matters to callers auditing
// which grants were deliberate.
func (s *Store) Passthrough(names ...string) *Store {
	for _, n := range names {
		s.passthrough[n] = true
	}
	return s
}

// DenyPattern adds an additional deny-pattern beyond the defaults.
func (s *Store) DenyPattern(p string) *Store {
	s.deny = append(s.deny, CompilePattern(p))
	return s
}

// visible applies the five-part policy to decide whether name may be
// surfaced to script at all.
func (s *Store) visible(name string) bool {
	if s.allowlist[name] || s.passthrough[name] {
		return true
	}
	for _, p := range s.deny {
		if p.Match(name) {
			return false
		}
	}
	return false
}

// Has implements __env_has(name).
func (s *Store) Has(name string) bool {
	return s.visible(name)
}

// Get implements __env_get(name): returns ("", false) if name is denied
// or absent.
func (s *Store) Get(name string) (string, bool) {
	if !s.visible(name) {
		return "", false
	}
	v, ok := s.data[name]
	return v, ok
}

// Keys implements __env_keys(): every data key that passes the policy,
// in no particular guaranteed order (callers needing a stable order sort
// it themselves, matching how a real process.env's key enumeration order
// isn't part of this store's contract).
func (s *Store) Keys() []string {
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		if s.visible(k) {
			out = append(out, k)
		}
	}
	return out
}
