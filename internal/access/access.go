// Package access decides who may read or write inside a category.
package access

type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// Caller identifies who is asking. A nil *Caller means anonymous.
type Caller struct {
	ID      int64
	IsAdmin bool
}

// Grant mirrors a stored access row. A nil *Grant means no row exists;
// the row's presence grants read, WriteAccess additionally grants write.
type Grant struct {
	WriteAccess bool
}

// Allowed evaluates the category policy. Admins see everything, public
// categories are open to all callers including anonymous ones, and private
// categories require a grant.
func Allowed(caller *Caller, isPrivate bool, grant *Grant, op Op) bool {
	if caller != nil && caller.IsAdmin {
		return true
	}
	if !isPrivate {
		return true
	}
	if caller == nil {
		return false
	}
	if grant == nil {
		return false
	}
	switch op {
	case OpRead:
		return true
	case OpWrite:
		return grant.WriteAccess
	default:
		return false
	}
}
