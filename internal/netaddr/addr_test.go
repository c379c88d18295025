// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddr_Families(t *testing.T) {
	v4, err := ParseAddr("192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, FamilyV4, v4.Family())
	assert.Len(t, v4.Bytes(), 4)

	v6, err := ParseAddr("2001:db8::1")
	require.NoError(t, err)
	assert.Equal(t, FamilyV6, v6.Family())
	assert.Len(t, v6.Bytes(), 16)
}

func TestParseAddr_Invalid(t *testing.T) {
	_, err := ParseAddr("999.999.999.999")
	assert.Error(t, err)
}

func TestAddr_Equal(t *testing.T) {
	a, err := ParseAddr("10.0.0.1")
	require.NoError(t, err)
	b, err := ParseAddr("10.0.0.1")
	require.NoError(t, err)
	c, err := ParseAddr("10.0.0.2")
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestAddr_MappedV4IsNormalized(t *testing.T) {
	mapped, err := ParseAddr("::ffff:192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, FamilyV4, mapped.Family())
}
