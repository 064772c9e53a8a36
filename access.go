package filekeep

import (
	"context"
	"fmt"
	"slices"
)

// Scope is a capability granted by a bearer token.
type Scope string

const (
	ScopeRead  Scope = "files:read"
	ScopeWrite Scope = "files:write"
	ScopeAdmin Scope = "files:admin"
)

// Operation names a guarded entry point of the service.
type Operation string

const (
	OpUpload    Operation = "upload"
	OpDownload  Operation = "download"
	OpStatus    Operation = "status"
	OpList      Operation = "list"
	OpRename    Operation = "rename"
	OpDelete    Operation = "delete"
	OpReconcile Operation = "reconcile"
)

// requiredScopes is the fixed operation to scope table.
var requiredScopes = map[Operation]Scope{
	OpUpload:    ScopeWrite,
	OpDownload:  ScopeRead,
	OpStatus:    ScopeRead,
	OpList:      ScopeRead,
	OpRename:    ScopeWrite,
	OpDelete:    ScopeWrite,
	OpReconcile: ScopeAdmin,
}

// RequiredScope returns the scope an operation needs.
func RequiredScope(op Operation) (Scope, bool) {
	s, ok := requiredScopes[op]
	return s, ok
}

// Identity is the verified caller of a request.
type Identity struct {
	Subject string
	Scopes  []Scope
}

func (i Identity) HasScope(s Scope) bool {
	return slices.Contains(i.Scopes, s)
}

func (i Identity) IsAdmin() bool {
	return i.HasScope(ScopeAdmin)
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.Subject != ""
}

// Authorize returns the caller identity if it may perform op.
// It returns ErrUnauthenticated when ctx carries no identity and
// ErrUnauthorized when the identity lacks the required scope.
func Authorize(ctx context.Context, op Operation) (Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}

	scope, known := RequiredScope(op)
	if !known {
		return Identity{}, fmt.Errorf("authorize %s: %w: unknown operation", op, ErrUnauthorized)
	}

	if !id.HasScope(scope) {
		return Identity{}, fmt.Errorf("authorize %s: %w: missing scope %s", op, ErrUnauthorized, scope)
	}

	return id, nil
}

// AccessPolicy decides whether an identity may touch a specific record.
type AccessPolicy interface {
	CanAccess(id Identity, rec FileRecord) bool
}

// OwnerOrAdmin grants access to the record owner and to admin identities.
type OwnerOrAdmin struct{}

func (OwnerOrAdmin) CanAccess(id Identity, rec FileRecord) bool {
	return id.Subject == rec.OwnerID || id.IsAdmin()
}

// SecretStore resolves the shared secret of a token signing key.
type SecretStore interface {
	Lookup(keyID string) (string, error)
}
