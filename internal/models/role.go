package models

import "fmt"

// Role is the closed set of account roles the chat core distinguishes.
type Role string

const (
	RoleDoctor  Role = "DOCTOR"
	RolePatient Role = "PATIENT"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole accepts only the known roles.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDoctor, RolePatient, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Counterpart returns the other side of a doctor/patient pair.
func (r Role) Counterpart() (Role, error) {
	switch r {
	case RoleDoctor:
		return RolePatient, nil
	case RolePatient:
		return RoleDoctor, nil
	case RoleAdmin:
		return "", fmt.Errorf("role %s has no counterpart", r)
	default:
		return "", fmt.Errorf("unknown role %q", r)
	}
}
