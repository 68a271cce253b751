// Package auth holds the role and ownership rules for expense lifecycle
// operations, plus the bearer-token identity extraction used at the HTTP
// boundary. Token issuance happens outside this service.
package auth

import "cantiere/internal/core"

// Identity is the authenticated caller as resolved from the request.
type Identity struct {
	UserID string
	Role   core.Role
}

// IsAdmin reports whether the identity carries the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == core.RoleAdmin
}

// CanReview reports whether the role may approve or reject expenses.
// Only admins review.
func CanReview(role core.Role) bool {
	return role == core.RoleAdmin
}

// CanEdit reports whether an expense may be edited. Admins always may;
// the creator only while the expense is still pending review.
func CanEdit(role core.Role, isCreator bool, state core.ApprovalState) bool {
	if role == core.RoleAdmin {
		return true
	}
	return isCreator && state == core.ApprovalPending
}

// CanDelete follows the same rule as CanEdit.
func CanDelete(role core.Role, isCreator bool, state core.ApprovalState) bool {
	return CanEdit(role, isCreator, state)
}

// CanView reports whether a record is visible to the caller. Admins and
// managers see everything; plain users see their own records regardless
// of approval state.
func CanView(role core.Role, isCreator bool) bool {
	switch role {
	case core.RoleAdmin, core.RoleManager:
		return true
	}
	return isCreator
}

// SeesAllRecords reports whether list queries should skip the ownership
// filter for this role.
func SeesAllRecords(role core.Role) bool {
	return role == core.RoleAdmin || role == core.RoleManager
}
