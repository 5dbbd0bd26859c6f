package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"renderly/internal/http/handlers"
	"renderly/internal/middleware"
)

type RouterOptions struct {
	AllowedOrigins []string
	RateLimit      int
	CountryLookup  middleware.CountryLookup
	StaticDir      string
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(*app.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N("en", opts.CountryLookup),
	)
	if opts.RateLimit > 0 {
		r.Use(middleware.RateLimit(opts.RateLimit, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/plans", app.Plans)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/register", app.Register)
		r.Post("/login", app.Login)
		r.Post("/google", app.GoogleLogin)
		r.With(middleware.AuthJWT(app.Config.JWTSecret)).Post("/logout", app.Logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.Config.JWTSecret))

		r.Get("/v1/me", app.Me)

		r.Route("/v1/videos", func(r chi.Router) {
			r.Get("/", app.ListVideos)
			r.Get("/export", app.ExportVideos)
			r.Post("/generate", app.GenerateVideo)
			r.Get("/{job_id}", app.VideoStatus)
			r.Post("/{job_id}/cancel", app.CancelVideo)
		})

		r.Route("/v1/credits", func(r chi.Router) {
			r.Get("/", app.Credits)
			r.Post("/purchase", app.PurchaseCredits)
		})
	})

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
