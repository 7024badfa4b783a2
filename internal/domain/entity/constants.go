package entity

// Role constants used by the default permission table
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleAgent    = "agent"
	RoleEngineer = "engineer"
	RoleCustomer = "customer"
	RolePublic   = "public"
	RoleSystem   = "system"
)

// Column names of the flat persisted record
const (
	ColumnID          = "id"
	ColumnKind        = "kind"
	ColumnStatus      = "status"
	ColumnSubmittedBy = "submitted_by"
	ColumnAssignedTo  = "assigned_to"
	ColumnAssignee    = "assignee"
	ColumnPayload     = "payload"
	ColumnResolution  = "resolution"
	ColumnHistory     = "history"
	ColumnCreatedAt   = "created_at"
	ColumnUpdatedAt   = "last_updated"
)

// Columns lists the record columns in storage order
var Columns = []string{
	ColumnID,
	ColumnKind,
	ColumnStatus,
	ColumnSubmittedBy,
	ColumnAssignedTo,
	ColumnAssignee,
	ColumnPayload,
	ColumnResolution,
	ColumnHistory,
	ColumnCreatedAt,
	ColumnUpdatedAt,
}

// IsColumn reports whether name is a known record column
func IsColumn(name string) bool {
	for _, c := range Columns {
		if c == name {
			return true
		}
	}
	return false
}
