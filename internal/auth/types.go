package auth

import (
	"context"
	"errors"
	"strings"
)

// Common errors returned by the authorization subsystem.
var (
	ErrUnknownSubject   = errors.New("unknown subject")
	ErrPermissionDenied = errors.New("permission denied")
)

// Well-known permissions guarded by the authorizer.
const (
	PermReadSovereignAddresses = "sovereign.addresses.read"
	PermTriggerAudit           = "treasury.audit.trigger"
)

// Subject captures a verified caller identity and its granted capabilities.
type Subject struct {
	ID          string
	Roles       []string
	Permissions []string

	permissionsSet map[string]struct{}
}

// normalise prepares the lookup set for permission checks.
func (s *Subject) normalise() {
	if s == nil {
		return
	}
	if s.permissionsSet == nil {
		s.permissionsSet = make(map[string]struct{}, len(s.Permissions))
		for _, perm := range s.Permissions {
			s.permissionsSet[strings.ToLower(strings.TrimSpace(perm))] = struct{}{}
		}
	}
}

// HasPermission reports whether the subject has the specified permission.
func (s *Subject) HasPermission(permission string) bool {
	if s == nil {
		return false
	}
	s.normalise()
	_, ok := s.permissionsSet[strings.ToLower(strings.TrimSpace(permission))]
	return ok
}

// Clone returns a copy safe to hand out to callers.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return nil
	}
	clone := &Subject{
		ID:          s.ID,
		Roles:       append([]string(nil), s.Roles...),
		Permissions: append([]string(nil), s.Permissions...),
	}
	return clone
}

// Resolver turns a caller identifier into a verified subject. In production
// this sits behind the gateway's token verification; the settlement core only
// sees the resolved subject.
type Resolver interface {
	Resolve(ctx context.Context, callerID string) (*Subject, error)
}

// Authorizer decides whether a subject may exercise a permission.
type Authorizer interface {
	Authorize(ctx context.Context, subject *Subject, permission string) error
}
