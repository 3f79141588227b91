// Package access decides who may see which view and what the menu shows.
//
// Both decisions are driven by a Policy: a static route table and a
// role-to-menu table, loaded once from TOML and never mutated afterwards.
package access

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/BurntSushi/toml"

	"hrportal/internal/domain/auth"
)

//go:embed policy.toml
var defaultPolicy []byte

const baselineKey = "baseline"

// RouteRule declares which roles may view a path. A nil AllowedRoles means
// any authenticated identity.
type RouteRule struct {
	Path         string      `json:"path"`
	Title        string      `json:"title"`
	AllowedRoles []auth.Role `json:"allowedRoles"`
}

func (r RouteRule) Restricted() bool {
	return r.AllowedRoles != nil
}

func (r RouteRule) Allows(role auth.Role) bool {
	if !r.Restricted() {
		return true
	}
	for _, allowed := range r.AllowedRoles {
		if allowed.Matches(role) {
			return true
		}
	}
	return false
}

type NavEntry struct {
	Path  string `json:"path"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

type Policy struct {
	LoginPath   string
	LandingPath string

	routes     []RouteRule
	navigation map[auth.Role][]NavEntry
	baseline   []NavEntry
}

type policyFile struct {
	LoginPath   string              `toml:"login_path"`
	LandingPath string              `toml:"landing_path"`
	Routes      []routeFile         `toml:"routes"`
	Menu        []menuFile          `toml:"menu"`
	Navigation  map[string][]string `toml:"navigation"`
}

type routeFile struct {
	Path         string    `toml:"path"`
	Title        string    `toml:"title"`
	AllowedRoles *[]string `toml:"allowed_roles"`
}

type menuFile struct {
	Key   string `toml:"key"`
	Path  string `toml:"path"`
	Label string `toml:"label"`
	Icon  string `toml:"icon"`
}

// Default returns the embedded policy.
func Default() (*Policy, error) {
	return Parse(defaultPolicy)
}

func MustDefault() *Policy {
	p, err := Default()
	if err != nil {
		panic(fmt.Sprintf("embedded access policy: %v", err))
	}
	return p
}

// Load reads a policy file, or the embedded default when path is empty.
func Load(filePath string) (*Policy, error) {
	if strings.TrimSpace(filePath) == "" {
		return Default()
	}
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read access policy: %w", err)
	}
	p, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("access policy %s: %w", filePath, err)
	}
	return p, nil
}

func Parse(raw []byte) (*Policy, error) {
	var file policyFile
	md, err := toml.NewDecoder(bytes.NewReader(raw)).Decode(&file)
	if err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	// A misspelled key must not silently drop a restriction.
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys: %v", undecoded)
	}
	return build(file)
}

func build(file policyFile) (*Policy, error) {
	var errs []error
	p := &Policy{
		LoginPath:   strings.TrimSpace(file.LoginPath),
		LandingPath: strings.TrimSpace(file.LandingPath),
		navigation:  map[auth.Role][]NavEntry{},
	}
	if !strings.HasPrefix(p.LoginPath, "/") {
		errs = append(errs, errors.New("login_path must be an absolute path"))
	}
	if !strings.HasPrefix(p.LandingPath, "/") {
		errs = append(errs, errors.New("landing_path must be an absolute path"))
	}

	seenPaths := map[string]struct{}{}
	for i, rf := range file.Routes {
		rule, err := buildRoute(rf)
		if err != nil {
			errs = append(errs, fmt.Errorf("routes[%d]: %w", i, err))
			continue
		}
		if _, dup := seenPaths[rule.Path]; dup {
			errs = append(errs, fmt.Errorf("routes[%d]: duplicate path %s", i, rule.Path))
			continue
		}
		seenPaths[rule.Path] = struct{}{}
		p.routes = append(p.routes, rule)
	}

	if landing, ok := p.lookup(p.LandingPath); !ok {
		errs = append(errs, fmt.Errorf("landing_path %s has no route", p.LandingPath))
	} else if landing.Restricted() {
		errs = append(errs, fmt.Errorf("landing_path %s must be open to every role", p.LandingPath))
	}

	menu := map[string]NavEntry{}
	for i, mf := range file.Menu {
		key := strings.TrimSpace(mf.Key)
		if key == "" {
			errs = append(errs, fmt.Errorf("menu[%d]: key is required", i))
			continue
		}
		if _, dup := menu[key]; dup {
			errs = append(errs, fmt.Errorf("menu[%d]: duplicate key %s", i, key))
			continue
		}
		entry := NavEntry{Path: cleanPath(mf.Path), Label: strings.TrimSpace(mf.Label), Icon: strings.TrimSpace(mf.Icon)}
		if entry.Label == "" {
			entry.Label = key
		}
		if _, ok := p.lookup(entry.Path); !ok {
			errs = append(errs, fmt.Errorf("menu %s: path %s has no route", key, entry.Path))
			continue
		}
		menu[key] = entry
	}

	baselineKeys, ok := file.Navigation[baselineKey]
	if !ok || len(baselineKeys) == 0 {
		errs = append(errs, errors.New("navigation.baseline must list at least one entry"))
	} else {
		baseline, err := p.buildMenu(baselineKey, "", baselineKeys, menu)
		if err != nil {
			errs = append(errs, err)
		}
		p.baseline = baseline
	}

	for name, keys := range file.Navigation {
		if name == baselineKey {
			continue
		}
		role := auth.ParseRole(name)
		if !role.Known() {
			errs = append(errs, fmt.Errorf("navigation.%s: unknown role", name))
			continue
		}
		if _, dup := p.navigation[role]; dup {
			errs = append(errs, fmt.Errorf("navigation.%s: role listed twice", name))
			continue
		}
		entries, err := p.buildMenu(name, role, keys, menu)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(p.baseline) > 0 && (len(entries) == 0 || entries[0] != p.baseline[0]) {
			errs = append(errs, fmt.Errorf("navigation.%s: must start with %s", name, p.baseline[0].Path))
			continue
		}
		p.navigation[role] = entries
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return p, nil
}

func buildRoute(rf routeFile) (RouteRule, error) {
	rule := RouteRule{Path: cleanPath(rf.Path), Title: strings.TrimSpace(rf.Title)}
	if strings.TrimSpace(rf.Path) == "" {
		return RouteRule{}, errors.New("path is required")
	}
	if rule.Title == "" {
		rule.Title = rule.Path
	}
	if rf.AllowedRoles == nil {
		return rule, nil
	}
	if len(*rf.AllowedRoles) == 0 {
		return RouteRule{}, fmt.Errorf("%s: allowed_roles must be omitted or non-empty", rule.Path)
	}
	rule.AllowedRoles = make([]auth.Role, 0, len(*rf.AllowedRoles))
	for _, raw := range *rf.AllowedRoles {
		role := auth.ParseRole(raw)
		if !role.Known() {
			return RouteRule{}, fmt.Errorf("%s: unknown role %q", rule.Path, raw)
		}
		rule.AllowedRoles = append(rule.AllowedRoles, role)
	}
	return rule, nil
}

// buildMenu resolves keys for one role. An empty role stands for the
// baseline, whose entries must be open to everyone.
func (p *Policy) buildMenu(name string, role auth.Role, keys []string, menu map[string]NavEntry) ([]NavEntry, error) {
	entries := make([]NavEntry, 0, len(keys))
	seen := map[string]struct{}{}
	for _, key := range keys {
		entry, ok := menu[key]
		if !ok {
			return nil, fmt.Errorf("navigation.%s: unknown menu key %s", name, key)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("navigation.%s: duplicate menu key %s", name, key)
		}
		seen[key] = struct{}{}
		rule, _ := p.lookup(entry.Path)
		if role == "" && rule.Restricted() || role != "" && !rule.Allows(role) {
			return nil, fmt.Errorf("navigation.%s: %s is not reachable for this role", name, entry.Path)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Routes returns a copy of the route table in declaration order.
func (p *Policy) Routes() []RouteRule {
	out := make([]RouteRule, len(p.routes))
	for i, rule := range p.routes {
		out[i] = rule
		if rule.AllowedRoles != nil {
			out[i].AllowedRoles = append([]auth.Role(nil), rule.AllowedRoles...)
		}
	}
	return out
}

// Match finds the rule for a request path: an exact match, otherwise the
// longest rule that is a segment prefix of the path.
func (p *Policy) Match(requestPath string) (RouteRule, bool) {
	cleaned := cleanPath(requestPath)
	var best RouteRule
	found := false
	for _, rule := range p.routes {
		if rule.Path == cleaned {
			return rule, true
		}
		prefix := strings.TrimSuffix(rule.Path, "/") + "/"
		if strings.HasPrefix(cleaned, prefix) && (!found || len(rule.Path) > len(best.Path)) {
			best = rule
			found = true
		}
	}
	return best, found
}

func (p *Policy) lookup(exact string) (RouteRule, bool) {
	for _, rule := range p.routes {
		if rule.Path == exact {
			return rule, true
		}
	}
	return RouteRule{}, false
}

func cleanPath(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "/"
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return path.Clean(trimmed)
}
