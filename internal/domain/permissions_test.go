package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilitiesForRoles(t *testing.T) {
	admin := CapabilitiesFor(RoleAdmin)
	for _, entry := range capabilityKeys {
		assert.Truef(t, admin.Has(entry.cap), "admin should hold %s", entry.key)
	}

	manager := CapabilitiesFor(RoleManager)
	assert.True(t, manager.Has(CapProfitability))
	assert.True(t, manager.Has(CapInventory))
	assert.False(t, manager.Has(CapSettings))

	seller := CapabilitiesFor(RoleSeller)
	assert.True(t, seller.Has(CapSales))
	assert.True(t, seller.Has(CapClients))
	assert.False(t, seller.Has(CapProfitability))
	assert.False(t, seller.Has(CapInventory))
	assert.True(t, seller.HasAny(CapProducts, CapSales))

	assert.Equal(t, CapabilitySet(0), CapabilitiesFor("intruso"))
}

func TestCapabilityFlagsUsePermissionKeys(t *testing.T) {
	flags := CapabilitiesFor(RoleSeller).Flags()

	assert.Len(t, flags, 9)
	assert.True(t, flags["ventas"])
	assert.True(t, flags["clientes"])
	assert.False(t, flags["rentabilidad"])
	assert.False(t, flags["configuracion"])
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" Gerente ")
	assert.True(t, ok)
	assert.Equal(t, RoleManager, role)

	_, ok = ParseRole("cashier")
	assert.False(t, ok)
}
