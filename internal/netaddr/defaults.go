// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netaddr

// DefaultPrivate is the well-known "private" set: RFC 1918 IPv4 ranges plus
// the RFC 4193 IPv6 unique-local range. It is the default allow_ips list.
var DefaultPrivate = blocksOf(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"fc00::/7",
)

// DefaultPublic is the well-known "public" set: a partition of the
// non-private IPv4 space plus the corresponding IPv6 partition. It is the
// default deny_ips list.
var DefaultPublic = blocksOf(
	// IPv4, 30 blocks covering 0.0.0.0-223.255.255.255 minus the private holes.
	"0.0.0.0/5",
	"8.0.0.0/7",
	"11.0.0.0/8",
	"12.0.0.0/6",
	"16.0.0.0/4",
	"32.0.0.0/3",
	"64.0.0.0/2",
	"128.0.0.0/3",
	"160.0.0.0/5",
	"168.0.0.0/6",
	"172.0.0.0/12",
	"172.32.0.0/11",
	"172.64.0.0/10",
	"172.128.0.0/9",
	"173.0.0.0/8",
	"174.0.0.0/7",
	"176.0.0.0/4",
	"192.0.0.0/9",
	"192.128.0.0/11",
	"192.160.0.0/13",
	"192.169.0.0/16",
	"192.170.0.0/15",
	"192.172.0.0/14",
	"192.176.0.0/12",
	"192.192.0.0/10",
	"193.0.0.0/8",
	"194.0.0.0/7",
	"196.0.0.0/6",
	"200.0.0.0/5",
	"208.0.0.0/4",
	// IPv6, covering ::/1-fe00::/7.
	"::/1",
	"8000::/2",
	"c000::/3",
	"e000::/4",
	"f000::/5",
	"f800::/6",
	"fe00::/7",
)

func blocksOf(texts ...string) []Block {
	out := make([]Block, len(texts))
	for i, t := range texts {
		out[i] = MustParseBlock(t)
	}
	return out
}
