package identity

import "strings"

// KnownRoles returns the predefined capability tags in hierarchical order
func KnownRoles() []RoleTag {
	return []RoleTag{
		RoleUser,
		RoleAdmin,
	}
}

// ValidRole checks if the role is one of the predefined capability tags
func ValidRole(role RoleTag) bool {
	switch role {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a RoleTag
func ParseRole(roleStr string) (RoleTag, bool) {
	role := RoleTag(strings.ToUpper(strings.TrimSpace(roleStr)))
	return role, ValidRole(role)
}

// RoleAtLeast checks if the role meets the minimum required level
func RoleAtLeast(role, minRole RoleTag) bool {
	roleHierarchy := map[RoleTag]int{
		RoleUser:  0,
		RoleAdmin: 1,
	}

	currentLevel, exists := roleHierarchy[role]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}
