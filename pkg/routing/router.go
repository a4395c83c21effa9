/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package routing implements the URI-template route table used by the federation engine.
// Templates use the `{name}` variable syntax. Matching is segment-based: a variable
// matches exactly one non-'/' segment, and an exact literal segment always beats a
// variable segment.
package routing

import (
	"fmt"
	"strings"
)

// RouterError indicates that a route was misregistered. It is fatal and raised at
// registration time.
type RouterError struct {
	msg string
}

func (e *RouterError) Error() string {
	return e.msg
}

func routerErrorf(format string, a ...interface{}) *RouterError {
	return &RouterError{msg: fmt.Sprintf(format, a...)}
}

type segment struct {
	literal  string
	variable string
}

func (s *segment) isVariable() bool {
	return s.variable != ""
}

type route struct {
	name     string
	segments []segment
}

// signature returns the route's pattern with variable names erased, which determines
// ambiguity: two routes with the same signature match exactly the same paths.
func (r *route) signature() string {
	b := &strings.Builder{}

	for _, s := range r.segments {
		b.WriteByte('/')

		if s.isVariable() {
			b.WriteByte('*')
		} else {
			b.WriteString(s.literal)
		}
	}

	return b.String()
}

// Match is the result of routing a path.
type Match struct {
	Name   string
	Values map[string]string
}

// Router maps URI templates to named routes and builds paths back from route names.
type Router struct {
	routes                   []*route
	byName                   map[string]*route
	signatures               map[string]string
	trailingSlashInsensitive bool
}

// Opt sets a router option.
type Opt func(r *Router)

// WithTrailingSlashInsensitive makes `/x` and `/x/` match the same route.
func WithTrailingSlashInsensitive() Opt {
	return func(r *Router) {
		r.trailingSlashInsensitive = true
	}
}

// New returns a new Router.
func New(opts ...Opt) *Router {
	r := &Router{
		byName:     make(map[string]*route),
		signatures: make(map[string]string),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Add registers the given template under the given unique route name and returns the set
// of variable names that the template declares. It fails with a *RouterError on a
// duplicate name, a malformed template, a template that does not start with '/', or a
// template whose pattern is indistinguishable from an already registered one.
func (r *Router) Add(template, name string) (map[string]struct{}, error) {
	if _, ok := r.byName[name]; ok {
		return nil, routerErrorf("route [%s] is already registered", name)
	}

	if !strings.HasPrefix(template, "/") {
		return nil, routerErrorf("template for route [%s] must start with '/': %s", name, template)
	}

	segments, variables, err := parseTemplate(template, name)
	if err != nil {
		return nil, err
	}

	rt := &route{name: name, segments: segments}

	if existing, ok := r.signatures[rt.signature()]; ok {
		return nil, routerErrorf("template for route [%s] is ambiguous with route [%s]: %s",
			name, existing, template)
	}

	r.routes = append(r.routes, rt)
	r.byName[name] = rt
	r.signatures[rt.signature()] = name

	return variables, nil
}

// Variables returns the variable names declared by the named route, or false if the route
// is not registered.
func (r *Router) Variables(name string) (map[string]struct{}, bool) {
	rt, ok := r.byName[name]
	if !ok {
		return nil, false
	}

	variables := make(map[string]struct{})

	for _, s := range rt.segments {
		if s.isVariable() {
			variables[s.variable] = struct{}{}
		}
	}

	return variables, true
}

// Route matches the given path against the registered templates. It returns nil when no
// route matches. When several routes match, the one with exact literal segments in the
// earliest differing position wins.
func (r *Router) Route(path string) *Match {
	segments, ok := r.splitPath(path)
	if !ok {
		return nil
	}

	var (
		best      *route
		bestScore []bool
	)

	for _, rt := range r.routes {
		if len(rt.segments) != len(segments) {
			continue
		}

		score, matched := matchSegments(rt.segments, segments)
		if !matched {
			continue
		}

		if best == nil || moreSpecific(score, bestScore) {
			best = rt
			bestScore = score
		}
	}

	if best == nil {
		return nil
	}

	values := make(map[string]string)

	for i, s := range best.segments {
		if s.isVariable() {
			values[s.variable] = segments[i]
		}
	}

	return &Match{Name: best.name, Values: values}
}

// Build substitutes the given values into the named route's template and returns the
// resulting path. It returns false if the route is not registered or a variable value is
// missing.
func (r *Router) Build(name string, values map[string]string) (string, bool) {
	rt, ok := r.byName[name]
	if !ok {
		return "", false
	}

	b := &strings.Builder{}

	for _, s := range rt.segments {
		b.WriteByte('/')

		if s.isVariable() {
			value, ok := values[s.variable]
			if !ok {
				return "", false
			}

			b.WriteString(value)
		} else {
			b.WriteString(s.literal)
		}
	}

	if b.Len() == 0 {
		return "/", true
	}

	return b.String(), true
}

func (r *Router) splitPath(path string) ([]string, bool) {
	if !strings.HasPrefix(path, "/") {
		return nil, false
	}

	if r.trailingSlashInsensitive && len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}

	if path == "/" {
		return nil, true
	}

	return strings.Split(path[1:], "/"), true
}

func matchSegments(template []segment, segments []string) ([]bool, bool) {
	score := make([]bool, len(template))

	for i, s := range template {
		if s.isVariable() {
			if segments[i] == "" {
				return nil, false
			}

			continue
		}

		if s.literal != segments[i] {
			return nil, false
		}

		score[i] = true
	}

	return score, true
}

// moreSpecific reports whether score a beats score b: a literal match at the earliest
// differing segment wins.
func moreSpecific(a, b []bool) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i]
		}
	}

	return false
}

func parseTemplate(template, name string) ([]segment, map[string]struct{}, error) {
	trimmed := strings.TrimSuffix(template, "/")

	var segments []segment

	variables := make(map[string]struct{})

	if trimmed == "" {
		return segments, variables, nil
	}

	for _, part := range strings.Split(trimmed[1:], "/") {
		switch {
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			variable := part[1 : len(part)-1]
			if !isIdentifier(variable) {
				return nil, nil, routerErrorf("invalid variable [%s] in template for route [%s]: %s",
					variable, name, template)
			}

			if _, ok := variables[variable]; ok {
				return nil, nil, routerErrorf("duplicate variable [%s] in template for route [%s]: %s",
					variable, name, template)
			}

			variables[variable] = struct{}{}

			segments = append(segments, segment{variable: variable})
		case strings.ContainsAny(part, "{}"):
			return nil, nil, routerErrorf("malformed segment [%s] in template for route [%s]: %s",
				part, name, template)
		case part == "":
			return nil, nil, routerErrorf("empty segment in template for route [%s]: %s", name, template)
		default:
			segments = append(segments, segment{literal: part})
		}
	}

	return segments, variables, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}

	return true
}
