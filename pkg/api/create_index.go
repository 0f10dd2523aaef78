package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sirupsen/logrus"

	"github.com/foreverif/laf/pkg/auth"
	"github.com/foreverif/laf/pkg/domain"
	"github.com/foreverif/laf/pkg/logging"
)

// Response bodies of rejected create-index requests
const (
	MsgCollectionEmpty = "collection cannot be empty"
	MsgAppNotFound     = "app not found"
	MsgInvalidSpec     = domain.ErrInvalidIndexSpec
	MsgInvalidUnique   = "unique must be a boolean"
	MsgInvalidBody     = "invalid request body"
)

type createIndexBody struct {
	Unique json.RawMessage `json:"unique"`
	Spec   json.RawMessage `json:"spec"`
}

type createIndexRequest struct {
	Spec   domain.IndexSpec
	Unique bool
}

// HandleCreateIndex creates an index on a collection of an application database.
//
//	POST /sys-api/apps/{appid}/dbm/collections/index?collection=<name>
//	{"spec": {"email": 1}, "unique": true}
func (h *Handler) HandleCreateIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.From(ctx, h.logger)

	collName := r.URL.Query().Get("collection")
	if collName == "" {
		WriteText(w, http.StatusUnprocessableEntity, MsgCollectionEmpty)
		return
	}

	appid := mux.Vars(r)["appid"]
	logger = logger.WithFields(logrus.Fields{"appid": appid, "collection": collName})

	app, err := h.apps.GetApplicationByAppid(ctx, appid)
	if err != nil {
		h.handleError(w, logger, goerr.Wrap(err, "failed to get application"))
		return
	}
	if app == nil {
		h.handleError(w, logger, goerr.New(MsgAppNotFound, goerr.T(domain.TagNotFound)))
		return
	}

	decision, err := h.permissions.CheckPermission(ctx, auth.UIDFrom(ctx), domain.PermissionDatabaseManage, app)
	if err != nil {
		h.handleError(w, logger, goerr.Wrap(err, "failed to check permission"))
		return
	}
	if !decision.Allowed() {
		logger.WithField("status", decision.Status()).Info("permission denied")
		w.WriteHeader(decision.Status())
		return
	}

	req, err := h.decodeCreateIndexRequest(w, r)
	if err != nil {
		h.handleError(w, logger, err)
		return
	}

	accessor, err := h.accessors.GetApplicationDbAccessor(ctx, app)
	if err != nil {
		h.handleError(w, logger, goerr.Wrap(err, "failed to get database accessor", goerr.T(domain.TagBackend)))
		return
	}
	defer accessor.Release()

	opts := domain.IndexOptions{Background: true, Unique: req.Unique}
	result, err := accessor.Collection(collName).CreateIndex(ctx, req.Spec, opts)
	if err != nil {
		h.handleError(w, logger, goerr.Wrap(err, "failed to create index",
			goerr.V("index", req.Spec.Name()), goerr.T(domain.TagBackend)))
		return
	}

	logger.WithFields(logrus.Fields{"index": req.Spec.Name(), "unique": req.Unique}).Info("index created")
	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		logger.WithError(err).Warn("failed to write response")
	}
}

// decodeCreateIndexRequest reads the body. An empty body or a JSON array carries no spec.
// The spec is validated before unique so an invalid spec is always reported as such.
func (h *Handler) decodeCreateIndexRequest(w http.ResponseWriter, r *http.Request) (*createIndexRequest, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		return nil, goerr.Wrap(err, MsgInvalidBody, goerr.T(domain.TagInvalidRequest))
	}

	var body createIndexBody
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
	case trimmed[0] == '{':
		if err := json.Unmarshal(trimmed, &body); err != nil {
			return nil, goerr.Wrap(err, MsgInvalidBody, goerr.T(domain.TagInvalidRequest))
		}
	case trimmed[0] == '[' && json.Valid(trimmed):
	default:
		return nil, goerr.New(MsgInvalidBody, goerr.T(domain.TagInvalidRequest))
	}

	spec, err := domain.ParseIndexSpec(body.Spec)
	if err != nil {
		return nil, err
	}

	req := &createIndexRequest{Spec: spec}
	if len(body.Unique) > 0 && string(body.Unique) != "null" {
		if err := json.Unmarshal(body.Unique, &req.Unique); err != nil {
			return nil, goerr.New(MsgInvalidUnique, goerr.V("unique", string(body.Unique)), goerr.T(domain.TagValidation))
		}
	}
	return req, nil
}

// handleError maps a tagged error to its response. Validation and lookup failures
// answer 422 with their message as plain text; database failures answer 400 with the
// database's message.
func (h *Handler) handleError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	entry := logger.WithFields(logging.ErrorFields(err)).WithError(err)

	switch {
	case goerr.HasTag(err, domain.TagBackend):
		entry.Warn("database operation failed")
		WriteJSONError(w, http.StatusBadRequest, causeMessage(err))

	case goerr.HasTag(err, domain.TagValidation), goerr.HasTag(err, domain.TagNotFound):
		entry.Info("request rejected")
		WriteText(w, http.StatusUnprocessableEntity, err.Error())

	case goerr.HasTag(err, domain.TagInvalidRequest):
		entry.Info("invalid request body")
		WriteJSONError(w, http.StatusBadRequest, MsgInvalidBody)

	default:
		entry.Error("internal error")
		WriteJSONError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

// causeMessage returns the message of the error wrapped by the handler
func causeMessage(err error) string {
	if cause := errors.Unwrap(err); cause != nil {
		return cause.Error()
	}
	return err.Error()
}
