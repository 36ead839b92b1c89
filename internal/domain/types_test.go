package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorRoleChecksAreExact(t *testing.T) {
	cases := []struct {
		role   Role
		admin  bool
		seller bool
	}{
		{role: RoleAdmin, admin: true},
		{role: RoleSeller, seller: true},
		{role: RoleUser},
		{role: "Admin"},
		{role: "ADMIN"},
		{role: " admin"},
		{role: "Seller"},
		{role: ""},
	}

	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			actor := Actor{ID: "u1", Role: tc.role}
			assert.Equal(t, tc.admin, actor.IsAdmin())
			assert.Equal(t, tc.seller, actor.IsSeller())
		})
	}
}

func TestRoleValid(t *testing.T) {
	for _, role := range []Role{RoleUser, RoleSeller, RoleAdmin} {
		assert.True(t, role.Valid(), role)
	}
	for _, role := range []Role{"", "Admin", "superuser", "user "} {
		assert.False(t, role.Valid(), role)
	}
}
