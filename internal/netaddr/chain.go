// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netaddr

// Chain is the unordered set of addresses associated with one request:
// the remote address plus every address parsed out of honored forwarded
// headers.
type Chain map[Addr]struct{}

// NewChain builds a Chain from the given addresses.
func NewChain(addrs ...Addr) Chain {
	c := make(Chain, len(addrs))
	for _, a := range addrs {
		c[a] = struct{}{}
	}
	return c
}

// Add inserts a into the chain.
func (c Chain) Add(a Addr) {
	c[a] = struct{}{}
}

// Addrs returns the chain's members as a slice, in no particular order.
func (c Chain) Addrs() []Addr {
	out := make([]Addr, 0, len(c))
	for a := range c {
		out = append(out, a)
	}
	return out
}

// Allowed reports whether every address in chain is contained in
// allowList: a request must pass through only permitted intermediaries.
func Allowed(chain Chain, allowList []Block) bool {
	for a := range chain {
		if !AnyContains(allowList, a) {
			return false
		}
	}
	return true
}

// Denied reports whether any address in chain is contained in denyList:
// one bad hop poisons the chain.
func Denied(chain Chain, denyList []Block) bool {
	for a := range chain {
		if AnyContains(denyList, a) {
			return true
		}
	}
	return false
}
