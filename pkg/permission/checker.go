package permission

import (
	"context"
	"net/http"

	"github.com/foreverif/laf/pkg/domain"
)

// Roles a collaborator can hold
const (
	RoleOwner     = "owner"
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
	RoleGuest     = "guest"
)

var allPermissions = []string{
	domain.PermissionApplicationRead,
	domain.PermissionDatabaseRead,
	domain.PermissionDatabaseManage,
}

// DefaultRoles maps each role to the permissions it grants
var DefaultRoles = map[string][]string{
	RoleOwner: allPermissions,
	RoleAdmin: allPermissions,
	RoleDeveloper: {
		domain.PermissionApplicationRead,
		domain.PermissionDatabaseRead,
		domain.PermissionDatabaseManage,
	},
	RoleGuest: {
		domain.PermissionApplicationRead,
		domain.PermissionDatabaseRead,
	},
}

// Checker authorizes callers from the roles they hold on an application.
// The application creator holds every permission.
type Checker struct {
	roles map[string]map[string]struct{}
}

// NewChecker builds a checker from a role -> permissions table; nil uses DefaultRoles
func NewChecker(roles map[string][]string) *Checker {
	if roles == nil {
		roles = DefaultRoles
	}
	c := &Checker{roles: make(map[string]map[string]struct{}, len(roles))}
	for role, perms := range roles {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		c.roles[role] = set
	}
	return c
}

// CheckPermission implements domain.PermissionChecker
func (c *Checker) CheckPermission(ctx context.Context, uid, permission string, app *domain.Application) (domain.Decision, error) {
	if uid == "" {
		return domain.Denied(http.StatusUnauthorized), nil
	}
	if app == nil {
		return domain.Denied(http.StatusUnprocessableEntity), nil
	}
	if app.CreatedBy == uid {
		return domain.Authorized(), nil
	}

	collaborator, ok := app.Collaborator(uid)
	if !ok {
		return domain.Denied(http.StatusForbidden), nil
	}
	for _, role := range collaborator.Roles {
		if _, granted := c.roles[role][permission]; granted {
			return domain.Authorized(), nil
		}
	}
	return domain.Denied(http.StatusForbidden), nil
}
