// Package identity maps source-tracker users onto target accounts and gates a
// migration on that mapping being complete.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/trackbridge/trackbridge/internal/github"
	"github.com/trackbridge/trackbridge/internal/types"
)

const (
	// DefaultSystemUserID is the GForge account that stands for "nobody".
	DefaultSystemUserID = 100

	// DefaultSystemUserName is how the system user is attributed in text.
	DefaultSystemUserName = "nobody"
)

// CollaboratorLister lists the accounts with write access to the target.
type CollaboratorLister interface {
	ListCollaborators(ctx context.Context) ([]github.User, error)
}

// Config holds the static part of the identity mapping.
type Config struct {
	// Mapping is source unix_name -> target login.
	Mapping map[string]string

	// SystemUserID is the sentinel source user dropped after discovery.
	SystemUserID int

	// SystemUserName attributes content submitted by the sentinel user.
	SystemUserName string
}

// Mapper resolves source users. One Mapper belongs to one migration run; its
// known-user set grows as each tracker is discovered.
type Mapper struct {
	cfg           Config
	users         map[int]types.SourceUser
	unresolved    map[int]bool
	collaborators map[string]string // lower(login) -> login
}

// NewMapper creates a mapper with no known users.
func NewMapper(cfg Config) *Mapper {
	if cfg.SystemUserID == 0 {
		cfg.SystemUserID = DefaultSystemUserID
	}
	if cfg.SystemUserName == "" {
		cfg.SystemUserName = DefaultSystemUserName
	}
	if cfg.Mapping == nil {
		cfg.Mapping = map[string]string{}
	}
	return &Mapper{
		cfg:           cfg,
		users:         make(map[int]types.SourceUser),
		unresolved:    make(map[int]bool),
		collaborators: make(map[string]string),
	}
}

// SystemUserID returns the configured sentinel ID.
func (m *Mapper) SystemUserID() int {
	return m.cfg.SystemUserID
}

// IsSystemUser reports whether id is the sentinel.
func (m *Mapper) IsSystemUser(id int) bool {
	return id == m.cfg.SystemUserID
}

// LoadCollaborators replaces the collaborator set from the target.
func (m *Mapper) LoadCollaborators(ctx context.Context, lister CollaboratorLister) error {
	users, err := lister.ListCollaborators(ctx)
	if err != nil {
		return fmt.Errorf("loading collaborators: %w", err)
	}
	m.SetCollaborators(users)
	return nil
}

// SetCollaborators replaces the collaborator set.
func (m *Mapper) SetCollaborators(users []github.User) {
	m.collaborators = make(map[string]string, len(users))
	for _, u := range users {
		m.collaborators[strings.ToLower(u.Login)] = u.Login
	}
}

// Known reports whether a user ID has already been looked up.
func (m *Mapper) Known(id int) bool {
	_, ok := m.users[id]
	return ok || m.unresolved[id]
}

// Unknown filters ids down to users not resolved yet, excluding the sentinel.
func (m *Mapper) Unknown(ids []int) []int {
	var out []int
	seen := make(map[int]bool)
	for _, id := range ids {
		if seen[id] || m.Known(id) || m.IsSystemUser(id) {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// AddUsers records resolved source users. The sentinel is dropped.
func (m *Mapper) AddUsers(users []types.SourceUser) {
	for _, u := range users {
		if m.IsSystemUser(u.ID) {
			continue
		}
		m.users[u.ID] = u
	}
}

// MarkUnresolved records user IDs the source could not resolve. They fail
// validation.
func (m *Mapper) MarkUnresolved(ids []int) {
	for _, id := range ids {
		if _, ok := m.users[id]; !ok && !m.IsSystemUser(id) {
			m.unresolved[id] = true
		}
	}
}

// Users returns the known users ordered by ID.
func (m *Mapper) Users() []types.SourceUser {
	out := make([]types.SourceUser, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve maps a source username to its target login.
func (m *Mapper) Resolve(username string) (string, error) {
	login, ok := m.cfg.Mapping[username]
	if !ok || login == "" {
		return "", &UnmappedUserError{Username: username}
	}
	return login, nil
}

// ResolveUser maps a known source user ID to its target login without
// checking collaborator access.
func (m *Mapper) ResolveUser(id int) (string, error) {
	u, ok := m.users[id]
	if !ok {
		return "", &UnmappedUserError{UserID: id}
	}
	return m.Resolve(u.UnixName)
}

// ResolveCollaborator maps a source user ID to a target login that is a
// collaborator on the target repository.
func (m *Mapper) ResolveCollaborator(id int) (string, error) {
	u, ok := m.users[id]
	if !ok {
		return "", &UnmappedUserError{UserID: id}
	}
	login, err := m.Resolve(u.UnixName)
	if err != nil {
		return "", err
	}
	canonical, ok := m.collaborators[strings.ToLower(login)]
	if !ok {
		return "", &NotACollaboratorError{Username: u.UnixName, Login: login}
	}
	return canonical, nil
}

// AuthorName renders attribution for a source user: "@login" for mapped
// users and the configured system name for the sentinel.
func (m *Mapper) AuthorName(id int) (string, error) {
	if m.IsSystemUser(id) {
		return m.cfg.SystemUserName, nil
	}
	login, err := m.ResolveUser(id)
	if err != nil {
		return "", err
	}
	return "@" + login, nil
}

// Validate checks every known user for a mapping and collaborator access.
// It returns a *ValidationError naming all offenders, or nil.
func (m *Mapper) Validate() error {
	unmapped := make(map[string]bool)
	for _, u := range m.users {
		if _, err := m.Resolve(u.UnixName); err != nil {
			unmapped[u.UnixName] = true
		}
	}

	verr := &ValidationError{}
	seen := make(map[string]bool)
	for _, u := range m.Users() {
		if unmapped[u.UnixName] || seen[u.UnixName] {
			continue
		}
		if _, err := m.ResolveCollaborator(u.ID); err != nil {
			var nc *NotACollaboratorError
			if errors.As(err, &nc) {
				seen[u.UnixName] = true
				verr.NonCollaborators = append(verr.NonCollaborators, *nc)
			}
		}
	}
	for id := range m.unresolved {
		verr.Unresolved = append(verr.Unresolved, id)
	}
	sort.Ints(verr.Unresolved)
	for name := range unmapped {
		verr.Unmapped = append(verr.Unmapped, name)
	}
	sort.Strings(verr.Unmapped)
	sort.Slice(verr.NonCollaborators, func(i, j int) bool {
		return verr.NonCollaborators[i].Username < verr.NonCollaborators[j].Username
	})

	if verr.Empty() {
		return nil
	}
	return verr
}
