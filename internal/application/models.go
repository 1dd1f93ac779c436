package application

import "github.com/bengol30/bandgo/internal/domain"

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
	Role   domain.Role
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == domain.RoleAdmin
}

// IsStaff reports whether the principal may run staff workflows such as rehearsal approval.
func (p Principal) IsStaff() bool {
	return p.Role == domain.RoleAdmin || p.Role == domain.RoleStaff
}

// CanModerate reports whether the principal may run moderation flows.
func (p Principal) CanModerate() bool {
	return p.Role.CanModerate()
}

// requireActive rejects anonymous and banned principals.
func requireActive(p Principal) error {
	if p.UserID == "" {
		return ErrUnauthenticated
	}
	if p.Role == domain.RoleBanned {
		return ErrAccountDisabled
	}
	return nil
}

func requireStaff(p Principal) error {
	if err := requireActive(p); err != nil {
		return err
	}
	if !p.IsStaff() {
		return denied("staff role required")
	}
	return nil
}

func requireModerator(p Principal) error {
	if err := requireActive(p); err != nil {
		return err
	}
	if !p.CanModerate() {
		return denied("moderator role required")
	}
	return nil
}

func requireAdmin(p Principal) error {
	if err := requireActive(p); err != nil {
		return err
	}
	if !p.IsAdmin() {
		return denied("admin role required")
	}
	return nil
}
