package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/sponsor-api/internal/auth"
	"github.com/noah-isme/sponsor-api/internal/catalog"
	"github.com/noah-isme/sponsor-api/internal/checkout"
	"github.com/noah-isme/sponsor-api/internal/common"
	"github.com/noah-isme/sponsor-api/internal/health"
	"github.com/noah-isme/sponsor-api/internal/obs"
	"github.com/noah-isme/sponsor-api/internal/order"
	"github.com/noah-isme/sponsor-api/internal/payment"
	"github.com/noah-isme/sponsor-api/internal/ratelimit"
	"github.com/noah-isme/sponsor-api/internal/security"
)

// RouterOptions toggles the observability middleware.
type RouterOptions struct {
	Tracing bool
	Metrics *obs.HTTPMetrics
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	// Debug is mounted at /debug when set; the profiler serves /debug/pprof/.
	Debug http.Handler

	StoreTimeout time.Duration
	RedisTimeout time.Duration
}

// Handlers holds the HTTP entrypoints after middleware has been applied, so
// the REST routes and the /exec dispatcher share the same guards.
type Handlers struct {
	CreateOrder   http.Handler
	FinalizeOrder http.Handler
	OrderStatus   http.Handler
	Catalogue     http.Handler
	PayPalWebhook http.Handler
	PayPalReturn  http.Handler
	PayFastITN    http.Handler
	Service       http.Handler
}

// Handlers builds the guarded entrypoints.
func (d *Dependencies) Handlers() Handlers {
	cfg := d.Config
	createRL := ratelimit.Handler{
		Limiter: ratelimit.SlidingWindow{Client: d.Redis, Prefix: "sponsor:rl:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("createOrder"),
			Window: cfg.RateLimitCreateWindow,
			Max:    cfg.RateLimitCreateMax,
		},
		OnError: func(err error) { d.Logger.Warn().Err(err).Msg("create order rate limiter unavailable") },
		OnReject: func(r *http.Request, key string) {
			d.Logger.Info().Str("bucket", key).Msg("create order rate limited")
		},
	}
	callbackRL := ratelimit.Handler{
		Limiter: ratelimit.FixedWindow{Store: d.callbackStore()},
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("callback"),
			Window: cfg.RateLimitCallbackWindow,
			Max:    cfg.RateLimitCallbackMax,
		},
		OnError: func(err error) { d.Logger.Warn().Err(err).Msg("callback rate limiter unavailable") },
		OnReject: func(r *http.Request, key string) {
			d.Logger.Warn().Str("bucket", key).Str("path", r.URL.Path).Msg("provider callback rate limited")
		},
	}
	idem := common.Idem{
		R:       d.Redis,
		TTL:     cfg.IdempotencyTTL,
		OnError: func(err error) { d.Logger.Warn().Err(err).Msg("idempotency store unavailable") },
	}
	admin := auth.Middleware{Tokens: d.Tokens, Logger: d.Logger}

	co := &checkout.Handler{Svc: d.Checkout, Logger: d.Logger}
	oh := &order.Handler{Svc: d.Order, Logger: d.Logger}
	ch := &catalog.Handler{Svc: d.Catalog}
	ph := &payment.Handler{
		PayPal:      d.PayPal,
		PayFast:     d.PayFast,
		Replay:      payment.ReplayGuard{Client: d.Redis, TTL: cfg.WebhookReplayTTL},
		Events:      d.Bus,
		ThankYouURL: cfg.ThankYouURL,
		Logger:      d.Logger,
	}

	return Handlers{
		CreateOrder:   createRL.Middleware(idem.Middleware(http.HandlerFunc(co.Create))),
		FinalizeOrder: admin.RequireAdmin(http.HandlerFunc(oh.Finalize)),
		OrderStatus:   http.HandlerFunc(oh.Get),
		Catalogue:     http.HandlerFunc(ch.Catalogue),
		PayPalWebhook: callbackRL.Middleware(http.HandlerFunc(ph.PayPalWebhook)),
		PayPalReturn:  callbackRL.Middleware(http.HandlerFunc(ph.PayPalReturn)),
		PayFastITN:    callbackRL.Middleware(http.HandlerFunc(ph.PayFastITN)),
		Service:       http.HandlerFunc(d.serviceInfo),
	}
}

func (d *Dependencies) callbackStore() limiter.Store {
	if d.Redis != nil {
		store, err := limiterredis.NewStoreWithOptions(d.Redis, limiter.StoreOptions{Prefix: "sponsor:rl:callback"})
		if err == nil {
			return store
		}
		d.Logger.Warn().Err(err).Msg("redis rate limit store unavailable, using memory")
	}
	return memory.NewStore()
}

// serviceInfo answers GET / and the dispatcher default.
func (d *Dependencies) serviceInfo(w http.ResponseWriter, _ *http.Request) {
	common.OK(w, map[string]any{
		"service": d.Config.ServiceName,
		"ts":      time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// Router mounts every route.
func (d *Dependencies) Router(opts RouterOptions) http.Handler {
	h := d.Handlers()
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.TrackOperation)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: d.Config.IsProduction()}.Middleware)
	r.Use(security.CORS(d.Config.CORSAllowedOrigins))
	r.Use(security.BodyLimit{Max: d.Config.BodyLimitBytes}.Middleware)

	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler)
	}
	if opts.Debug != nil {
		r.Mount("/debug", opts.Debug)
	}
	hh := health.Handler{
		Checker:      health.Probes{Store: d.Book, Redis: d.Redis},
		StoreTimeout: opts.StoreTimeout,
		RedisTimeout: opts.RedisTimeout,
	}
	r.Get("/health/live", hh.Live)
	r.Get("/health/ready", hh.Ready)
	r.Method(http.MethodGet, "/", h.Service)

	dispatch := Dispatcher{Handlers: h, Logger: d.Logger}
	r.Get("/exec", dispatch.Get)
	r.Post("/exec", dispatch.Post)

	r.Route("/api/v1", func(v chi.Router) {
		v.Method(http.MethodPost, "/orders", h.CreateOrder)
		v.Method(http.MethodGet, "/orders/{orderId}", h.OrderStatus)
		v.Method(http.MethodPost, "/orders/{orderId}/finalize", h.FinalizeOrder)
		v.Method(http.MethodGet, "/catalogue", h.Catalogue)
	})

	r.Method(http.MethodPost, "/paypal/webhook", h.PayPalWebhook)
	r.Method(http.MethodGet, "/paypal/return", h.PayPalReturn)
	r.Method(http.MethodPost, "/payfast/itn", h.PayFastITN)
	return r
}
