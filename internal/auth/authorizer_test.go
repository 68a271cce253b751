package auth

import (
	"testing"

	"cantiere/internal/core"
)

func TestCanReview(t *testing.T) {
	if !CanReview(core.RoleAdmin) {
		t.Error("admin must be able to review")
	}
	if CanReview(core.RoleManager) || CanReview(core.RoleUser) {
		t.Error("only admin may review")
	}
}

func TestCanEdit(t *testing.T) {
	cases := []struct {
		name      string
		role      core.Role
		isCreator bool
		state     core.ApprovalState
		want      bool
	}{
		{"admin always", core.RoleAdmin, false, core.ApprovalApproved, true},
		{"creator while pending", core.RoleUser, true, core.ApprovalPending, true},
		{"creator after approval", core.RoleUser, true, core.ApprovalApproved, false},
		{"creator after rejection", core.RoleUser, true, core.ApprovalRejected, false},
		{"non-creator pending", core.RoleUser, false, core.ApprovalPending, false},
		{"manager is not admin", core.RoleManager, false, core.ApprovalPending, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanEdit(tc.role, tc.isCreator, tc.state); got != tc.want {
				t.Errorf("CanEdit(%s, %v, %s) = %v, want %v", tc.role, tc.isCreator, tc.state, got, tc.want)
			}
			if got := CanDelete(tc.role, tc.isCreator, tc.state); got != tc.want {
				t.Errorf("CanDelete(%s, %v, %s) = %v, want %v", tc.role, tc.isCreator, tc.state, got, tc.want)
			}
		})
	}
}

func TestCanView(t *testing.T) {
	if !CanView(core.RoleAdmin, false) || !CanView(core.RoleManager, false) {
		t.Error("admin and manager see all records")
	}
	if !CanView(core.RoleUser, true) {
		t.Error("creator sees own record")
	}
	if CanView(core.RoleUser, false) {
		t.Error("plain user must not see others' records")
	}
}

func TestSeesAllRecords(t *testing.T) {
	if !SeesAllRecords(core.RoleAdmin) || !SeesAllRecords(core.RoleManager) {
		t.Error("admin and manager list everything")
	}
	if SeesAllRecords(core.RoleUser) {
		t.Error("plain user lists own records only")
	}
}
