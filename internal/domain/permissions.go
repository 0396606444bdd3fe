package domain

import "strings"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "gerente"
	RoleSeller  Role = "vendedor"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleManager:
		return RoleManager, true
	case RoleSeller:
		return RoleSeller, true
	}
	return "", false
}

// Capability is one feature area a user may access.
type Capability uint16

const (
	CapSales Capability = 1 << iota
	CapProducts
	CapCategories
	CapInventory
	CapProfitability
	CapClients
	CapSuppliers
	CapExpenses
	CapSettings
)

var capabilityKeys = []struct {
	cap Capability
	key string
}{
	{CapSales, "ventas"},
	{CapProducts, "productos"},
	{CapCategories, "categorias"},
	{CapInventory, "inventario"},
	{CapProfitability, "rentabilidad"},
	{CapClients, "clientes"},
	{CapSuppliers, "proveedores"},
	{CapExpenses, "gastos"},
	{CapSettings, "configuracion"},
}

func (c Capability) String() string {
	for _, entry := range capabilityKeys {
		if entry.cap == c {
			return entry.key
		}
	}
	return "unknown"
}

// CapabilitySet is a bitmask of capabilities.
type CapabilitySet uint16

const allCapabilities = CapabilitySet(CapSales | CapProducts | CapCategories | CapInventory |
	CapProfitability | CapClients | CapSuppliers | CapExpenses | CapSettings)

var roleCapabilities = map[Role]CapabilitySet{
	RoleAdmin:   allCapabilities,
	RoleManager: allCapabilities &^ CapabilitySet(CapSettings),
	RoleSeller:  CapabilitySet(CapSales | CapClients),
}

// CapabilitiesFor returns the fixed capability set of a role. Unknown roles get nothing.
func CapabilitiesFor(role Role) CapabilitySet {
	return roleCapabilities[role]
}

func (s CapabilitySet) Has(c Capability) bool {
	return s&CapabilitySet(c) != 0
}

func (s CapabilitySet) HasAny(caps ...Capability) bool {
	for _, c := range caps {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// Flags renders the set with the permission keys the front end expects.
func (s CapabilitySet) Flags() map[string]bool {
	flags := make(map[string]bool, len(capabilityKeys))
	for _, entry := range capabilityKeys {
		flags[entry.key] = s.Has(entry.cap)
	}
	return flags
}

// Principal is the authenticated caller with its resolved capabilities.
type Principal struct {
	UserID       string
	Email        string
	Role         Role
	Capabilities CapabilitySet
}

func (p Principal) Can(c Capability) bool {
	return p.Capabilities.Has(c)
}
