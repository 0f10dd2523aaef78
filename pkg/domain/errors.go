package domain

import "github.com/m-mizutani/goerr/v2"

var (
	// TagValidation marks malformed or missing caller input (422)
	TagValidation = goerr.NewTag("validation")
	// TagNotFound marks an unknown application (422)
	TagNotFound = goerr.NewTag("not_found")
	// TagInvalidRequest marks a request body that could not be read or decoded (400)
	TagInvalidRequest = goerr.NewTag("invalid_request")
	// TagBackend marks a failure reported by the application database (400)
	TagBackend = goerr.NewTag("backend")
)
