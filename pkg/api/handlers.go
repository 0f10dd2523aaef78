package api

import (
	"github.com/sirupsen/logrus"

	"github.com/foreverif/laf/pkg/domain"
)

// DefaultMaxBodyBytes bounds the request body read by the handlers
const DefaultMaxBodyBytes = 1 << 20

// Handler provides HTTP handlers for the database management API
type Handler struct {
	apps         domain.ApplicationRegistry
	permissions  domain.PermissionChecker
	accessors    domain.DbAccessorProvider
	logger       logrus.FieldLogger
	maxBodyBytes int64
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithLogger sets the logger used for request-scoped entries
func WithLogger(logger logrus.FieldLogger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMaxBodyBytes bounds the size of request bodies
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHandler creates a new API handler with dependency injection
func NewHandler(apps domain.ApplicationRegistry, permissions domain.PermissionChecker, accessors domain.DbAccessorProvider, opts ...HandlerOption) *Handler {
	h := &Handler{
		apps:         apps,
		permissions:  permissions,
		accessors:    accessors,
		logger:       logrus.StandardLogger(),
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
