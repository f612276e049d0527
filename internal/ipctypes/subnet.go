// Package ipctypes holds the wire/data model shared by every component:
// subnet identifiers, addresses, token amounts, signed messages and the
// small value types exchanged between the top-down and bottom-up flows.
package ipctypes

import (
	"fmt"
	"strconv"
	"strings"
)

// SubnetID is a path from the root chain: a numeric root ID followed by an
// ordered sequence of actor addresses, one per hop down the subnet tree.
type SubnetID struct {
	Root  uint64
	Route []Address
}

// NewRootSubnetID returns the identifier of a root chain itself (no route).
func NewRootSubnetID(root uint64) SubnetID {
	return SubnetID{Root: root}
}

// Equal reports structural equality.
func (s SubnetID) Equal(o SubnetID) bool {
	if s.Root != o.Root || len(s.Route) != len(o.Route) {
		return false
	}
	for i := range s.Route {
		if !s.Route[i].Equal(o.Route[i]) {
			return false
		}
	}
	return true
}

// IsRoot reports whether this identifier names the root chain.
func (s SubnetID) IsRoot() bool { return len(s.Route) == 0 }

// Parent returns the identifier of the immediate parent, or false if this
// is already the root.
func (s SubnetID) Parent() (SubnetID, bool) {
	if s.IsRoot() {
		return SubnetID{}, false
	}
	route := make([]Address, len(s.Route)-1)
	copy(route, s.Route[:len(s.Route)-1])
	return SubnetID{Root: s.Root, Route: route}, true
}

// ChildrenAsRef returns the route entries that extend this subnet's path,
// i.e. the part of other's route beyond this subnet's own depth.
func (s SubnetID) ChildrenAsRef(other SubnetID) ([]Address, bool) {
	if s.Root != other.Root || len(other.Route) < len(s.Route) {
		return nil, false
	}
	for i := range s.Route {
		if !s.Route[i].Equal(other.Route[i]) {
			return nil, false
		}
	}
	return other.Route[len(s.Route):], true
}

// CommonParent returns the deepest subnet that is an ancestor of both s and
// other, along with its depth (number of route hops from the root).
func (s SubnetID) CommonParent(other SubnetID) (depth int, common SubnetID, ok bool) {
	if s.Root != other.Root {
		return 0, SubnetID{}, false
	}
	n := len(s.Route)
	if len(other.Route) < n {
		n = len(other.Route)
	}
	i := 0
	for i < n && s.Route[i].Equal(other.Route[i]) {
		i++
	}
	route := make([]Address, i)
	copy(route, s.Route[:i])
	return i, SubnetID{Root: s.Root, Route: route}, true
}

// String renders the canonical human-readable form: /r<root>/<addr>/<addr>/...
func (s SubnetID) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "/r%d", s.Root)
	for _, a := range s.Route {
		b.WriteByte('/')
		b.WriteString(a.String())
	}
	return b.String()
}

// ParseSubnetID parses the canonical form produced by String.
func ParseSubnetID(s string) (SubnetID, error) {
	if !strings.HasPrefix(s, "/r") {
		return SubnetID{}, fmt.Errorf("ipctypes: subnet id must start with /r: %q", s)
	}
	parts := strings.Split(s[1:], "/")
	root, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "r"), 10, 64)
	if err != nil {
		return SubnetID{}, fmt.Errorf("ipctypes: invalid root in subnet id %q: %w", s, err)
	}
	route := make([]Address, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		addr, err := ParseAddress(p)
		if err != nil {
			return SubnetID{}, fmt.Errorf("ipctypes: invalid route segment %q: %w", p, err)
		}
		route = append(route, addr)
	}
	return SubnetID{Root: root, Route: route}, nil
}
