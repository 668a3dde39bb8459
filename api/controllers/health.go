package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/forsocials/replyriser-backend/api/responses"
	"github.com/forsocials/replyriser-backend/pkg/config"
	pkgerrors "github.com/forsocials/replyriser-backend/pkg/errors"
	"github.com/forsocials/replyriser-backend/pkg/logger"
)

const (
	envHeader          = "X-ReplyRiser-Env"
	readyCheckTimeout  = 2 * time.Second
	readyStatusHealthy = "ok"
)

// Pinger is any dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency and fails with 503 if any is down.
func HealthReady(cfg *config.Config, deps map[string]Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		var failed error
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = err.Error()
				if failed == nil {
					failed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable")
				}
				continue
			}
			checks[name] = readyStatusHealthy
		}

		if failed != nil {
			if typed := pkgerrors.As(failed); typed != nil {
				typed.WithDetails(map[string]any{"checks": checks})
			}
			responses.WriteError(r.Context(), logg, w, failed)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
