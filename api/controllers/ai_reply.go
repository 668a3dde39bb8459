package controllers

import (
	"net/http"

	"github.com/forsocials/replyriser-backend/api/middleware"
	"github.com/forsocials/replyriser-backend/api/responses"
	"github.com/forsocials/replyriser-backend/api/validators"
	"github.com/forsocials/replyriser-backend/internal/gate"
	pkgerrors "github.com/forsocials/replyriser-backend/pkg/errors"
	"github.com/forsocials/replyriser-backend/pkg/logger"
	"github.com/forsocials/replyriser-backend/pkg/openai"
)

type aiReplyRequest struct {
	Blocks   []openai.Block `json:"blocks" validate:"required,min=1,max=20,dive"`
	Platform string         `json:"platform" validate:"omitempty,max=100"`
}

// AIReply runs the request gate and returns the provider completion verbatim.
func AIReply(svc gate.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reply service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())

		var body aiReplyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Reply(r.Context(), gate.ReplyInput{
			UserID:   userID,
			Blocks:   body.Blocks,
			Platform: body.Platform,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteRaw(w, http.StatusOK, result.Raw)
	}
}

// AccountStatus reports plan, window usage and time left for the caller.
func AccountStatus(svc gate.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reply service unavailable"))
			return
		}

		status, err := svc.Status(r.Context(), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
