// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netaddr

import (
	"net/netip"
	"strconv"
	"strings"

	"grimm.is/wardgate/internal/gerr"
)

// Block is a CIDR range: a base address plus a prefix length. PrefixBits
// == -1 means exact match (no mask).
type Block struct {
	Base       Addr
	PrefixBits int
}

// ParseBlock accepts "ip" (exact match) or "ip/prefix". On parse failure it
// returns an error; callers must treat an unparseable block as matching
// nothing rather than letting the error escape into the request path (see
// Contains).
func ParseBlock(text string) (Block, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Block{}, gerr.New(gerr.KindValidation, "netaddr: empty CIDR text")
	}
	if strings.Contains(text, "/") {
		p, err := netip.ParsePrefix(text)
		if err != nil {
			return Block{}, gerr.Wrap(gerr.KindValidation, err, "netaddr: invalid CIDR "+strconv.Quote(text))
		}
		return Block{Base: Addr{raw: p.Addr().Unmap()}, PrefixBits: p.Bits()}, nil
	}
	a, err := ParseAddr(text)
	if err != nil {
		return Block{}, err
	}
	return Block{Base: a, PrefixBits: -1}, nil
}

// MustParseBlock is ParseBlock but panics on error; it exists only for
// building the package's compile-time-known default block lists.
func MustParseBlock(text string) Block {
	b, err := ParseBlock(text)
	if err != nil {
		panic(err)
	}
	return b
}

// Contains reports whether addr falls within block.
func Contains(block Block, addr Addr) bool {
	if block.Base.Family() == FamilyUnknown || addr.Family() == FamilyUnknown {
		return false
	}
	if block.Base.Family() != addr.Family() {
		return false
	}

	baseBytes := block.Base.Bytes()
	addrBytes := addr.Bytes()

	if block.PrefixBits == -1 {
		return equalBytes(baseBytes, addrBytes)
	}

	totalBits := len(baseBytes) * 8
	if block.PrefixBits < 0 || block.PrefixBits > totalBits {
		return false
	}

	whole := block.PrefixBits / 8
	partial := block.PrefixBits % 8

	for i := 0; i < whole; i++ {
		if baseBytes[i] != addrBytes[i] {
			return false
		}
	}
	if partial == 0 {
		return true
	}
	mask := byte(0xFF00 >> uint(partial))
	return baseBytes[whole]&mask == addrBytes[whole]&mask
}

// AnyContains reports whether any block in ranges contains addr,
// short-circuiting on the first match.
func AnyContains(ranges []Block, addr Addr) bool {
	for _, b := range ranges {
		if Contains(b, addr) {
			return true
		}
	}
	return false
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
