// Package capability implements the process-wide capability gate spec.md
// §6 describes: native ops that touch the host consult it before acting
// and fail with a typed PermissionDenied error naming the operation,
// rather than silently succeeding or panicking.
package capability

import (
	"strings"

	"github.com/quillrt/quill/internal/vmerr"
)

// Gate is a queryable permission boundary. The zero value denies
// everything; use NewGate to start from an explicit policy.
type Gate struct {
	allowAllNet    bool
	allowedHosts   map[string]bool
	allowAllRead   bool
	allowedReads   []string
	allowAllWrite  bool
	allowedWrites  []string
	allowAllEnv    bool
	allowedEnvVars map[string]bool
	subprocess     bool
	hrtime         bool
}

// NewGate builds a deny-by-default gate. Use the With... methods to grant
// capabilities before handing it to a realm.
func NewGate() *Gate {
	return &Gate{allowedHosts: map[string]bool{}, allowedEnvVars: map[string]bool{}}
}

func (g *Gate) WithNet(hosts ...string) *Gate {
	if len(hosts) == 0 {
		g.allowAllNet = true
		return g
	}
	for _, h := range hosts {
		g.allowedHosts[h] = true
	}
	return g
}

func (g *Gate) WithRead(paths ...string) *Gate {
	if len(paths) == 0 {
		g.allowAllRead = true
		return g
	}
	g.allowedReads = append(g.allowedReads, paths...)
	return g
}

func (g *Gate) WithWrite(paths ...string) *Gate {
	if len(paths) == 0 {
		g.allowAllWrite = true
		return g
	}
	g.allowedWrites = append(g.allowedWrites, paths...)
	return g
}

func (g *Gate) WithEnv(names ...string) *Gate {
	if len(names) == 0 {
		g.allowAllEnv = true
		return g
	}
	for _, n := range names {
		g.allowedEnvVars[n] = true
	}
	return g
}

func (g *Gate) WithSubprocess() *Gate { g.subprocess = true; return g }
func (g *Gate) WithHrtime() *Gate     { g.hrtime = true; return g }

// CanNet reports whether host may be connected to.
func (g *Gate) CanNet(host string) bool {
	return g.allowAllNet || g.allowedHosts[host]
}

// CanRead reports whether path may be read. Allowed prefixes are
// directory grants (a grant of "/data" covers "/data/x.json").
func (g *Gate) CanRead(path string) bool {
	return g.allowAllRead || matchesPrefix(g.allowedReads, path)
}

// CanWrite reports whether path may be written.
func (g *Gate) CanWrite(path string) bool {
	return g.allowAllWrite || matchesPrefix(g.allowedWrites, path)
}

// CanEnv reports whether the named environment variable may be read by
// script (this is the capability check; internal/envstore applies the
// finer-grained deny-pattern policy on top once this passes).
func (g *Gate) CanEnv(name string) bool {
	return g.allowAllEnv || g.allowedEnvVars[name]
}

func (g *Gate) CanSubprocess() bool { return g.subprocess }
func (g *Gate) CanHrtime() bool     { return g.hrtime }

func matchesPrefix(allowed []string, path string) bool {
	for _, a := range allowed {
		if path == a || strings.HasPrefix(path, a+"/") {
			return true
		}
	}
	return false
}

// Check is the shared denial path: native ops call this and propagate the
// error unchanged on failure. name is the operation name that appears in
// the error message (spec.md §6: "a typed PermissionDenied error
// containing the operation name").
func Check(ok bool, name string) error {
	if ok {
		return nil
	}
	return vmerr.New(vmerr.KindPermissionDenied, "permission denied: "+name)
}
