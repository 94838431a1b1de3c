package identity

import (
	"fmt"
	"strconv"
	"strings"
)

// UnmappedUserError is returned when a source user has no target mapping.
type UnmappedUserError struct {
	Username string // Source unix_name; empty when the user ID itself is unknown
	UserID   int
}

func (e *UnmappedUserError) Error() string {
	if e.Username == "" {
		return fmt.Sprintf("source user %d was never resolved", e.UserID)
	}
	return fmt.Sprintf("no target account mapped for source user %q", e.Username)
}

// NotACollaboratorError is returned when a mapped login lacks repository access.
type NotACollaboratorError struct {
	Username string // Source unix_name
	Login    string // Mapped target login
}

func (e *NotACollaboratorError) Error() string {
	return fmt.Sprintf("%s (source user %q) is not a collaborator on the target repository", e.Login, e.Username)
}

// ValidationError lists every user that blocks migration. It is returned by
// Mapper.Validate and always names the complete set, never only the first.
type ValidationError struct {
	Unmapped         []string                // Source usernames with no mapping
	NonCollaborators []NotACollaboratorError // Mapped users without target access
	Unresolved       []int                   // User IDs the source could not resolve
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("user mapping is not complete")
	if len(e.Unmapped) > 0 {
		fmt.Fprintf(&b, "; unmapped source users: %s", strings.Join(e.Unmapped, ", "))
	}
	if len(e.NonCollaborators) > 0 {
		fmt.Fprintf(&b, "; need to be added as collaborators: %s", strings.Join(e.Logins(), ", "))
	}
	if len(e.Unresolved) > 0 {
		ids := make([]string, len(e.Unresolved))
		for i, id := range e.Unresolved {
			ids[i] = strconv.Itoa(id)
		}
		fmt.Fprintf(&b, "; unknown source user IDs: %s", strings.Join(ids, ", "))
	}
	return b.String()
}

// Logins returns the target logins that must be granted collaborator access.
func (e *ValidationError) Logins() []string {
	logins := make([]string, len(e.NonCollaborators))
	for i, nc := range e.NonCollaborators {
		logins[i] = nc.Login
	}
	return logins
}

// Empty reports whether nothing blocks migration.
func (e *ValidationError) Empty() bool {
	return len(e.Unmapped) == 0 && len(e.NonCollaborators) == 0 && len(e.Unresolved) == 0
}
