package messaging

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// RoleAuthority is the role of the policy authority
	RoleAuthority = "policy-server"

	// RolePolicyHost is the role of the endpoint hosting a remote
	// policy manager
	RolePolicyHost = "policy-host"

	// RoleActor prefixes the names of actors
	RoleActor = "actor"
)

// DefaultTimeout caps a single round trip unless configured otherwise
const DefaultTimeout = 30 * time.Second

var ports = map[string]int{
	RoleAuthority:  7070,
	RolePolicyHost: 7071,
}

// DefaultAddr returns the canonical in-network HTTP base URL of a role
// in a group, or "" for roles without a well-known port
func DefaultAddr(group, role string) string {
	port, ok := ports[strings.TrimSpace(role)]
	if !ok {
		return ""
	}
	host := role
	if group != "" {
		host = group + "-" + role
	}
	return "http://" + host + ":" + strconv.Itoa(port)
}

// DefaultPort returns the well-known port of a role, or 0
func DefaultPort(role string) int {
	return ports[role]
}

// ActorName returns the endpoint name of the actor with index i
func ActorName(i int) string {
	return fmt.Sprintf("%v.%v", RoleActor, i)
}

// Resolver maps roles to endpoint addresses. Explicit peers win over
// the naming conventions of DefaultAddr.
type Resolver struct {
	group string
	peers map[string]string
}

// NewResolver returns a Resolver for group with explicit peers by role
func NewResolver(group string, peers map[string]string) *Resolver {
	r := &Resolver{group: group, peers: make(map[string]string, len(peers))}
	for role, addr := range peers {
		if addr = strings.TrimSpace(addr); addr != "" {
			r.peers[role] = addr
		}
	}
	return r
}

// Resolve returns the address serving role
func (r *Resolver) Resolve(role string) (string, error) {
	if addr, ok := r.peers[role]; ok {
		return addr, nil
	}
	if addr := DefaultAddr(r.group, role); addr != "" {
		return addr, nil
	}
	return "", fmt.Errorf("%w %q", ErrNoPeer, role)
}
