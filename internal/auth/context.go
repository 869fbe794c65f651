// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"strings"

	"github.com/adiadia/approval-engine/internal/domain"
)

type principalContextKey struct{}

var ctxPrincipalKey principalContextKey

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID   string
	Name     string
	DeptCode string
	DeptName string
}

// Person converts the principal to the identity recorded on documents.
func (p Principal) Person() domain.Person {
	name := p.Name
	if name == "" {
		name = p.UserID
	}
	return domain.Person{
		ID:       p.UserID,
		Name:     name,
		DeptCode: p.DeptCode,
		DeptName: p.DeptName,
	}
}

// WithPrincipal stores the authenticated caller on the request context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}

// PrincipalFromContext reads the authenticated caller from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxPrincipalKey).(Principal)
	if !ok || strings.TrimSpace(p.UserID) == "" {
		return Principal{}, false
	}
	return p, true
}
