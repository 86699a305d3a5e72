package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy{SharedNamespace: "shared"}

	assert.True(t, p.CanRead("alice", "alice"))
	assert.True(t, p.CanRead("alice", "shared"))
	assert.False(t, p.CanRead("alice", "bob"))
}

func TestDefaultPolicy_NoSharedNamespaceConfigured(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy{}
	assert.False(t, p.CanRead("alice", "shared"))
}

func TestAllowAll(t *testing.T) {
	t.Parallel()
	var p Policy = AllowAll{}
	assert.True(t, p.CanRead("anyone", "anything"))
}
