// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netaddr implements the CIDR engine (parsing, containment, and
// allow/deny chain evaluation over IPv4/IPv6 addresses) and the
// forwarded-header client-chain extractor that sits in front of it.
package netaddr

import (
	"net/netip"
	"strconv"
	"strings"

	"grimm.is/wardgate/internal/gerr"
)

// Family tags which address space an Addr belongs to.
type Family uint8

const (
	FamilyUnknown Family = iota
	FamilyV4
	FamilyV6
)

// Addr is a parsed IPv4 or IPv6 address. Two Addrs are equal iff same
// family and byte-equal.
type Addr struct {
	raw netip.Addr
}

// ParseAddr parses a dotted-quad IPv4 or colon-hex IPv6 (including "::"
// elision) address.
func ParseAddr(text string) (Addr, error) {
	text = strings.TrimSpace(text)
	a, err := netip.ParseAddr(text)
	if err != nil {
		return Addr{}, gerr.Wrap(gerr.KindValidation, err, "netaddr: invalid address "+strconv.Quote(text))
	}
	return Addr{raw: a.Unmap()}, nil
}

// Family reports whether a is IPv4 or IPv6 (FamilyUnknown for a zero Addr).
func (a Addr) Family() Family {
	switch {
	case !a.raw.IsValid():
		return FamilyUnknown
	case a.raw.Is4():
		return FamilyV4
	default:
		return FamilyV6
	}
}

// Bytes returns the address's fixed-length big-endian byte representation:
// 4 bytes for IPv4, 16 for IPv6.
func (a Addr) Bytes() []byte {
	if a.raw.Is4() {
		b := a.raw.As4()
		return b[:]
	}
	b := a.raw.As16()
	return b[:]
}

// Equal reports whether a and o are the same family and byte-equal.
func (a Addr) Equal(o Addr) bool {
	return a.raw == o.raw
}

// String returns a's textual form.
func (a Addr) String() string {
	return a.raw.String()
}

// IsValid reports whether a holds a parsed address.
func (a Addr) IsValid() bool {
	return a.raw.IsValid()
}
