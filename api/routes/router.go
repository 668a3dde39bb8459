package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/forsocials/replyriser-backend/api/controllers"
	webhookcontrollers "github.com/forsocials/replyriser-backend/api/controllers/webhooks"
	"github.com/forsocials/replyriser-backend/api/middleware"
	"github.com/forsocials/replyriser-backend/internal/accounts"
	"github.com/forsocials/replyriser-backend/internal/gate"
	stripewebhook "github.com/forsocials/replyriser-backend/internal/webhooks/stripe"
	"github.com/forsocials/replyriser-backend/pkg/config"
	"github.com/forsocials/replyriser-backend/pkg/logger"
	"github.com/forsocials/replyriser-backend/pkg/metrics"
	"github.com/forsocials/replyriser-backend/pkg/redis"
	"github.com/forsocials/replyriser-backend/pkg/stripe"
)

// Deps carries everything the HTTP surface needs. Nil services make their
// endpoints answer 500 instead of panicking.
type Deps struct {
	DB                   controllers.Pinger
	Redis                *redis.Client
	Gatherer             prometheus.Gatherer
	AccountService       accounts.Service
	GateService          gate.Service
	StripeClient         *stripe.Client
	StripeWebhookService *stripewebhook.Service
	StripeWebhookGuard   *stripewebhook.IdempotencyGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	signupPolicy := middleware.NewAuthRateLimitPolicy(
		"signup",
		cfg.AuthRateLimit.SignupWindow,
		cfg.AuthRateLimit.SignupIPLimit,
		cfg.AuthRateLimit.SignupEmailLimit,
	)

	readyDeps := map[string]controllers.Pinger{}
	if deps.DB != nil {
		readyDeps["db"] = deps.DB
	}
	if deps.Redis != nil {
		readyDeps["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readyDeps, logg))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(
			webhookService(deps.StripeWebhookService),
			verifier(deps.StripeClient),
			guard(deps.StripeWebhookGuard),
			logg,
		))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(authRateLimit(signupPolicy, deps.Redis, logg)).Post("/signup", controllers.AuthSignup(deps.AccountService, logg))
		r.Get("/verify", controllers.AuthVerify(deps.AccountService, logg))
		r.With(authRateLimit(loginPolicy, deps.Redis, logg)).Post("/login", controllers.AuthLogin(deps.AccountService, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		aiReply := controllers.AIReply(deps.GateService, logg)
		accountStatus := controllers.AccountStatus(deps.GateService, logg)

		r.Post("/api/v1/ai-reply", aiReply)
		r.Get("/api/v1/account-status", accountStatus)

		// Paths the shipped extension still calls.
		r.Post("/getAiReply", aiReply)
		r.Get("/me", accountStatus)
	})

	return r
}

func authRateLimit(policy middleware.AuthRateLimitPolicy, store *redis.Client, logg *logger.Logger) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.AuthRateLimit(policy, store, logg)
}

func webhookService(svc *stripewebhook.Service) webhookcontrollers.StripeWebhookService {
	if svc == nil {
		return nil
	}
	return svc
}

func verifier(c *stripe.Client) webhookcontrollers.StripeEventVerifier {
	if c == nil {
		return nil
	}
	return c
}

func guard(g *stripewebhook.IdempotencyGuard) webhookcontrollers.StripeWebhookGuard {
	if g == nil {
		return nil
	}
	return g
}
