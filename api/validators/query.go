package validators

import (
	"net/http"
	"strings"

	pkgerrors "github.com/forsocials/replyriser-backend/pkg/errors"
)

// RequiredQuery returns the trimmed query parameter or a validation error.
func RequiredQuery(r *http.Request, key string) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, key+" is required").WithDetails(map[string]any{"field": key})
	}
	return raw, nil
}
