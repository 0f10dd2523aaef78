package domain

import (
	"context"
	"net/http"
)

// Permission names
const (
	PermissionApplicationRead = "application.read"
	PermissionDatabaseRead    = "database.read"
	PermissionDatabaseManage  = "database.manage"
)

// Decision is the outcome of a permission check
type Decision struct {
	status int
}

// Authorized allows the request to proceed
func Authorized() Decision {
	return Decision{}
}

// Denied rejects the request with the given HTTP status
func Denied(status int) Decision {
	if status == 0 {
		status = http.StatusForbidden
	}
	return Decision{status: status}
}

// Allowed reports whether the decision authorizes the caller
func (d Decision) Allowed() bool {
	return d.status == 0
}

// Status returns the HTTP status of a denial, or 0 when authorized
func (d Decision) Status() int {
	return d.status
}

// PermissionChecker decides whether uid holds a permission on app
type PermissionChecker interface {
	CheckPermission(ctx context.Context, uid, permission string, app *Application) (Decision, error)
}
