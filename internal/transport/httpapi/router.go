package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"barbearia/backend/internal/domain"
	"barbearia/backend/internal/service/bookings"
	"barbearia/backend/internal/service/replication"
)

type Bookings interface {
	Admit(ctx context.Context, in bookings.AdmitInput) (domain.Booking, error)
	Edit(ctx context.Context, id string, p bookings.Patch) (domain.Booking, error)
	Cancel(ctx context.Context, id string) (domain.Booking, error)
	Delete(ctx context.Context, id string) error
	Get(id string) (domain.Booking, error)
	FreeSlots(date, barber string, duration int) ([]domain.Clock, error)
	Busy(date, barber string) ([]domain.Booking, error)
	Stats() bookings.Stats
	Policy() bookings.Policy
}

type Authorizer interface {
	Authorize(secret string) error
}

type Sync interface {
	Authorizer
	Pull(ctx context.Context, in replication.PullInput) (replication.PullResult, error)
	Push(ctx context.Context, secret string, events []domain.ChangeEvent) (int, error)
}

type Options struct {
	ServiceName    string
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// NewRouter wires the public intake and availability endpoints, the bridge
// sync endpoints and the secret-guarded booking admin endpoints.
func NewRouter(b Bookings, s Sync, log *slog.Logger, opts Options) *gin.Engine {
	registerValidators()
	if opts.ServiceName == "" {
		opts.ServiceName = "barbearia-api"
	}

	h := &Handler{bookings: b, sync: s, log: log, service: opts.ServiceName}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		RequestID(),
		RequestLogger(log),
		CORS(opts.CORSOrigins),
		RequestTimeout(opts.RequestTimeout),
	)

	r.GET("/", h.Health)
	r.POST("/book", h.Book)
	r.GET("/availability", h.Availability)
	r.GET("/busy", h.Busy)

	r.GET("/pull", h.Pull)
	r.POST("/push", h.Push)

	admin := r.Group("/bookings")
	admin.Use(RequireSecret(s, log))
	{
		admin.GET("/:id", h.GetBooking)
		admin.PATCH("/:id", h.EditBooking)
		admin.POST("/:id/cancel", h.CancelBooking)
		admin.DELETE("/:id", h.DeleteBooking)
	}

	return r
}
