package domain

// Role represents the authorization level of a user.
type Role string

const (
	RolePartner     Role = "partner"
	RoleManager     Role = "manager"
	RoleClerk       Role = "clerk"
	RoleClientAdmin Role = "client_admin"
	RoleClientUser  Role = "client_user"
)

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool {
	switch r {
	case RolePartner, RoleManager, RoleClerk, RoleClientAdmin, RoleClientUser:
		return true
	}
	return false
}

// UserType distinguishes firm staff from client-side users.
type UserType string

const (
	UserTypeInternal UserType = "internal"
	UserTypeExternal UserType = "external"
)

func (t UserType) String() string { return string(t) }

func (t UserType) IsValid() bool {
	switch t {
	case UserTypeInternal, UserTypeExternal:
		return true
	}
	return false
}

// Action is an operation subject to the permission matrix.
type Action string

const (
	ActionList       Action = "list"
	ActionGet        Action = "get"
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionTransition Action = "transition"
)

func (a Action) String() string { return string(a) }

func (a Action) IsValid() bool {
	switch a {
	case ActionList, ActionGet, ActionCreate, ActionUpdate, ActionDelete, ActionTransition:
		return true
	}
	return false
}

// AuditAction represents the kind of mutation recorded in the audit log.
type AuditAction string

const (
	AuditActionCreate     AuditAction = "create"
	AuditActionUpdate     AuditAction = "update"
	AuditActionDelete     AuditAction = "delete"
	AuditActionTransition AuditAction = "transition"
)

func (a AuditAction) String() string { return string(a) }

func (a AuditAction) IsValid() bool {
	switch a {
	case AuditActionCreate, AuditActionUpdate, AuditActionDelete, AuditActionTransition:
		return true
	}
	return false
}

// JobStatus is the outcome recorded for one scheduled job run.
type JobStatus string

const (
	JobStatusSuccess        JobStatus = "success"
	JobStatusPartialFailure JobStatus = "partial_failure"
	JobStatusError          JobStatus = "error"
)

func (s JobStatus) String() string { return string(s) }

// Finished reports whether a run with this status completes its period.
func (s JobStatus) Finished() bool {
	return s == JobStatusSuccess || s == JobStatusPartialFailure
}
