package core

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceACL_Allows(t *testing.T) {
	acl, err := NewSourceACL([]string{"10.0.0.0/8", " 192.168.1.5 "}, nil)
	require.NoError(t, err)

	assert.True(t, acl.Allows(net.ParseIP("10.1.2.3")))
	assert.True(t, acl.Allows(net.ParseIP("192.168.1.5")))
	assert.False(t, acl.Allows(net.ParseIP("192.168.1.6")))
	assert.False(t, acl.Allows(net.ParseIP("11.1.2.3")))
	assert.False(t, acl.Allows(nil))
}

func TestSourceACL_DenyWins(t *testing.T) {
	acl, err := NewSourceACL([]string{"10.0.0.0/8"}, []string{"10.1.2.3"})
	require.NoError(t, err)

	assert.False(t, acl.Allows(net.ParseIP("10.1.2.3")))
	assert.True(t, acl.Allows(net.ParseIP("10.1.2.4")))
}

func TestSourceACL_DenyOnly(t *testing.T) {
	acl, err := NewSourceACL(nil, []string{"::1"})
	require.NoError(t, err)

	assert.False(t, acl.AllowsAddr("::1"))
	assert.True(t, acl.AllowsAddr("127.0.0.1"))
	assert.True(t, acl.AllowsAddr("203.0.113.9:5678"))
}

func TestSourceACL_NilAllowsAll(t *testing.T) {
	acl, err := NewSourceACL(nil, []string{"", " "})
	require.NoError(t, err)
	assert.Nil(t, acl)
	assert.True(t, acl.Allows(net.ParseIP("1.2.3.4")))
	assert.True(t, acl.AllowsAddr("garbage"))
}

func TestSourceACL_Invalid(t *testing.T) {
	_, err := NewSourceACL([]string{"10.0.0.0/33"}, nil)
	assert.Error(t, err)
	_, err = NewSourceACL(nil, []string{"not-an-ip"})
	assert.Error(t, err)
}
