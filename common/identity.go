package common

import (
	"fmt"
	"strconv"
)

const (
	PrefixLength = 4
)

// RoleType defines the actor role on the coaching platform.
type RoleType string

const (
	RoleClient     RoleType = "client"
	RoleInstructor RoleType = "instructor"
	RoleDietician  RoleType = "dietician"
	RoleAdmin      RoleType = "admin"
)

var rolePrefixes = map[RoleType]string{
	RoleClient:     "cl__",
	RoleInstructor: "in__",
	RoleDietician:  "di__",
	RoleAdmin:      "ad__",
}

// IsValid reports whether r is one of the known roles.
func (r RoleType) IsValid() bool {
	_, ok := rolePrefixes[r]
	return ok
}

// ParseRole parses a role tag, returning an error for anything outside the closed set.
func ParseRole(s string) (RoleType, error) {
	r := RoleType(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// Actor represents an external identity that maps to an IM user id.
type Actor struct {
	Id   int64
	Role RoleType
}

// ToIMUserId converts an Actor to the IM system's string user id.
//
//	Actor{Id: 42, Role: RoleClient}.ToIMUserId()     => "cl__42"
//	Actor{Id: 7, Role: RoleInstructor}.ToIMUserId()  => "in__7"
func (a *Actor) ToIMUserId() (string, error) {
	prefix, ok := rolePrefixes[a.Role]
	if !ok {
		return "", fmt.Errorf("failed to transfer actor to user id, type: %s", a.Role)
	}
	return fmt.Sprintf("%s%d", prefix, a.Id), nil
}

// FromIMUserId parses an IM user id string back into an Actor.
// Returns an error if the format is unrecognised.
func (a *Actor) FromIMUserId(userId string) error {
	if a == nil {
		return fmt.Errorf("actor is nil")
	}
	if len(userId) < PrefixLength+1 {
		return fmt.Errorf("invalid userId: %q", userId)
	}
	prefix := userId[:PrefixLength]
	idStr := userId[PrefixLength:]

	var role RoleType
	for r, p := range rolePrefixes {
		if p == prefix {
			role = r
			break
		}
	}
	if role == "" {
		return fmt.Errorf("unknown prefix: %q", prefix)
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id: %q", idStr)
	}
	a.Role = role
	a.Id = id
	return nil
}
