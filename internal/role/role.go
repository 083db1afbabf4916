/**
 * @description
 * Maps the raw role string issued by the identity provider onto the coarse
 * capability classes the storefront navigates by.
 *
 * The table is closed: a raw role that is not listed here resolves to
 * CapabilityUnauthenticated, never to anything more permissive.
 */
package role

// Capability is a coarse access tier.
type Capability int

const (
	CapabilityUnauthenticated Capability = iota
	CapabilityCustomer
	CapabilityAgent
	CapabilityAdmin
	// CapabilityRestrictedAdmin is the admin subset allowed into user management.
	CapabilityRestrictedAdmin
)

func (c Capability) String() string {
	switch c {
	case CapabilityCustomer:
		return "customer"
	case CapabilityAgent:
		return "agent"
	case CapabilityAdmin:
		return "admin"
	case CapabilityRestrictedAdmin:
		return "restricted-admin"
	default:
		return "unauthenticated"
	}
}

// RawRole is a role string known to the identity provider.
type RawRole string

const (
	RoleSuperAdmin     RawRole = "super_admin"
	RoleMarketingAdmin RawRole = "marketing_admin"
	RoleClientAdmin    RawRole = "client_admin"
	RoleClient         RawRole = "client"
	RoleAgent          RawRole = "agent"
)

// KnownRoles lists every raw role the table recognises.
func KnownRoles() []RawRole {
	return []RawRole{RoleSuperAdmin, RoleMarketingAdmin, RoleClientAdmin, RoleClient, RoleAgent}
}

// Parse matches raw exactly against the known roles. Case and whitespace are
// significant; the identity provider emits canonical values.
func Parse(raw string) (RawRole, bool) {
	switch r := RawRole(raw); r {
	case RoleSuperAdmin, RoleMarketingAdmin, RoleClientAdmin, RoleClient, RoleAgent:
		return r, true
	}
	return "", false
}

// Resolve returns the coarse capability for raw. It is total and has no side effects.
func Resolve(raw string) Capability {
	r, ok := Parse(raw)
	if !ok {
		return CapabilityUnauthenticated
	}

	switch r {
	case RoleSuperAdmin, RoleMarketingAdmin, RoleClientAdmin:
		return CapabilityAdmin
	case RoleClient:
		return CapabilityCustomer
	case RoleAgent:
		return CapabilityAgent
	default:
		return CapabilityUnauthenticated
	}
}

// HasRestrictedAdmin reports whether raw carries the restricted-admin sub-capability.
// It must be checked against the raw role: Resolve folds every admin variant together.
func HasRestrictedAdmin(raw string) bool {
	r, ok := Parse(raw)
	return ok && r == RoleSuperAdmin
}

// ResolveElevated is Resolve, except that restricted admins report CapabilityRestrictedAdmin.
func ResolveElevated(raw string) Capability {
	if HasRestrictedAdmin(raw) {
		return CapabilityRestrictedAdmin
	}
	return Resolve(raw)
}

// Satisfies reports whether raw meets the required capability exactly. A
// restricted-admin requirement is met only by the restricted sub-capability;
// an admin requirement is met by every admin variant.
func Satisfies(raw string, required Capability) bool {
	if required == CapabilityRestrictedAdmin {
		return HasRestrictedAdmin(raw)
	}
	if required == CapabilityUnauthenticated {
		return false
	}
	return Resolve(raw) == required
}
