package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/spoolhub-backend/api/controllers"
	"github.com/angelmondragon/spoolhub-backend/api/middleware"
	"github.com/angelmondragon/spoolhub-backend/api/validators"
	"github.com/angelmondragon/spoolhub-backend/internal/uploads"
	"github.com/angelmondragon/spoolhub-backend/pkg/config"
	"github.com/angelmondragon/spoolhub-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/spoolhub-backend/pkg/redis"
)

// multipart framing on top of the raw image bytes
const multipartOverhead = 1 << 20

type redisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient redisStore,
	readiness map[string]controllers.Pinger,
	gatherer prometheus.Gatherer,
	uploadsService uploads.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	limits := validators.ImageLimits{
		MaxFiles:     cfg.Uploads.MaxImagesPerRequest,
		MaxFileBytes: cfg.Uploads.MaxImageBytes(),
	}
	bodyLimit := int64(limits.MaxFiles)*limits.MaxFileBytes + multipartOverhead
	mobilePolicy := middleware.NewRateLimitPolicy(
		"mobile_upload",
		cfg.Uploads.PublicRateWindow,
		cfg.Uploads.PublicRateLimit,
		"token",
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
		r.Route("/uploads/sessions/{token}", func(r chi.Router) {
			r.Get("/", controllers.UploadSessionInfo(uploadsService, logg))
			r.With(
				middleware.RateLimit(mobilePolicy, redisClient, logg),
				middleware.BodyLimit(bodyLimit),
			).Post("/images", controllers.UploadSessionAddImages(uploadsService, limits, logg))
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.BodyLimit(bodyLimit))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/uploads", func(r chi.Router) {
			r.Post("/bulk", controllers.UploadBulk(uploadsService, limits, logg))

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", controllers.UploadSessionCreate(uploadsService, logg))
				r.Route("/{token}", func(r chi.Router) {
					r.Get("/", controllers.UploadSessionStatus(uploadsService, logg))
					r.Delete("/", controllers.UploadSessionDelete(uploadsService, logg))
					r.Post("/process", controllers.UploadSessionProcess(uploadsService, logg))
					r.Post("/cancel", controllers.UploadSessionCancel(uploadsService, logg))
				})
			})

			r.Route("/pending", func(r chi.Router) {
				r.Get("/", controllers.PendingUploadsList(uploadsService, logg))
				r.Delete("/", controllers.PendingUploadsClear(uploadsService, logg))
				r.Post("/imported", controllers.PendingUploadsMarkImported(uploadsService, logg))
				r.Patch("/{pendingId}", controllers.PendingUploadUpdate(uploadsService, logg))
				r.Delete("/{pendingId}", controllers.PendingUploadDelete(uploadsService, logg))
			})
		})
	})

	return r
}
