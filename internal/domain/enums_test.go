package domain

import "testing"

func TestRole_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role Role
		want bool
	}{
		{RolePartner, true},
		{RoleManager, true},
		{RoleClerk, true},
		{RoleClientAdmin, true},
		{RoleClientUser, true},
		{Role("admin"), false},
		{Role(""), false},
	}
	for _, tt := range tests {
		if got := tt.role.IsValid(); got != tt.want {
			t.Errorf("Role(%q).IsValid() = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestAction_IsValid(t *testing.T) {
	t.Parallel()

	for _, a := range []Action{ActionList, ActionGet, ActionCreate, ActionUpdate, ActionDelete, ActionTransition} {
		if !a.IsValid() {
			t.Errorf("Action(%q).IsValid() = false", a)
		}
	}
	if Action("archive").IsValid() {
		t.Error(`Action("archive").IsValid() = true`)
	}
}

func TestAuditAction_IsValid(t *testing.T) {
	t.Parallel()

	if !AuditActionTransition.IsValid() {
		t.Error("transition should be a valid audit action")
	}
	if AuditAction("restore").IsValid() {
		t.Error("restore should not be a valid audit action")
	}
}

func TestJobResult_Status(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result JobResult
		want   JobStatus
	}{
		{"clean", JobResult{Success: true, Processed: 3, Succeeded: 3}, JobStatusSuccess},
		{"partial", JobResult{Success: true, Processed: 3, Succeeded: 2, Failed: 1}, JobStatusPartialFailure},
		{"error", JobResult{Success: false}, JobStatusError},
	}
	for _, tt := range tests {
		if got := tt.result.Status(); got != tt.want {
			t.Errorf("%s: Status() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestJobStatus_Finished(t *testing.T) {
	t.Parallel()

	for status, want := range map[JobStatus]bool{
		JobStatusSuccess:        true,
		JobStatusPartialFailure: true,
		JobStatusError:          false,
	} {
		if got := status.Finished(); got != want {
			t.Errorf("%s.Finished() = %v, want %v", status, got, want)
		}
	}
}
