package models

// IdentitySnapshot is the denormalized display identity of a user. It is
// derived data and never the system of record.
type IdentitySnapshot struct {
	UserID    string `db:"id" json:"user_id"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Role      Role   `db:"role" json:"role"`
}
