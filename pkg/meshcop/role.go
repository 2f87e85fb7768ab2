package meshcop

// DeviceRole is the node's role in the mesh.
type DeviceRole uint8

const (
	RoleDisabled DeviceRole = iota
	RoleDetached
	RoleChild
	RoleRouter
	RoleLeader
)

// String returns the role name.
func (r DeviceRole) String() string {
	switch r {
	case RoleDisabled:
		return "disabled"
	case RoleDetached:
		return "detached"
	case RoleChild:
		return "child"
	case RoleRouter:
		return "router"
	case RoleLeader:
		return "leader"
	default:
		return "unknown"
	}
}

// IsAttached reports whether the role is part of a partition.
func (r DeviceRole) IsAttached() bool {
	return r == RoleChild || r == RoleRouter || r == RoleLeader
}

// ParseDeviceRole parses a role name.
func ParseDeviceRole(s string) (DeviceRole, bool) {
	for r := RoleDisabled; r <= RoleLeader; r++ {
		if r.String() == s {
			return r, true
		}
	}
	return 0, false
}
