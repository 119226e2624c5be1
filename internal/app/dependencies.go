// Package app assembles the sponsorship services from configuration so the
// API server, the worker and the operator CLI share one wiring.
package app

import (
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sponsor-api/internal/auth"
	"github.com/noah-isme/sponsor-api/internal/catalog"
	"github.com/noah-isme/sponsor-api/internal/checkout"
	"github.com/noah-isme/sponsor-api/internal/config"
	"github.com/noah-isme/sponsor-api/internal/events"
	"github.com/noah-isme/sponsor-api/internal/lock"
	"github.com/noah-isme/sponsor-api/internal/notify"
	"github.com/noah-isme/sponsor-api/internal/order"
	"github.com/noah-isme/sponsor-api/internal/payment"
	"github.com/noah-isme/sponsor-api/internal/reconcile"
	"github.com/noah-isme/sponsor-api/internal/repo"
	"github.com/noah-isme/sponsor-api/internal/resilience"
	"github.com/noah-isme/sponsor-api/internal/sheet"
)

// Dependencies enumerates the shared services. Redis and Tasks are optional;
// without them the replay guard, locks, caches and mailing tasks are off.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger
	Book   sheet.Book
	Redis  *redis.Client
	Tasks  notify.Enqueuer

	Orders    repo.Orders
	Ledger    repo.Ledger
	Catalogue repo.Catalogue
	EventLog  repo.EventLog

	Bus      *events.Bus
	Engine   *reconcile.Engine
	PayPal   *payment.PayPal
	PayFast  *payment.PayFast
	EFT      *payment.EFT
	Payments *payment.Service
	Checkout *checkout.Service
	Order    *order.Service
	Catalog  *catalog.Service
	Tokens   *auth.Tokens
	Mailing  *notify.AcyClient
}

// New wires every service over book. rdb and tasks may be nil.
func New(cfg *config.Config, logger zerolog.Logger, book sheet.Book, rdb *redis.Client, tasks notify.Enqueuer) *Dependencies {
	d := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Book:      book,
		Redis:     rdb,
		Tasks:     tasks,
		Orders:    repo.Orders{Book: book, Sheet: cfg.SheetOrders},
		Ledger:    repo.Ledger{Book: book, Sheet: cfg.SheetRequests},
		Catalogue: repo.Catalogue{Book: book, Sheet: cfg.SheetCatalogue, TeamSheet: cfg.SheetTeam},
		EventLog:  repo.EventLog{Book: book, Sheet: cfg.SheetEvents},
	}

	d.Bus = &events.Bus{Store: d.EventLog}
	if tasks != nil {
		d.Bus.Notifiers = append(d.Bus.Notifiers, notify.MailingNotifier{Queue: tasks, Logger: logger})
	}

	d.Engine = &reconcile.Engine{
		Orders:  d.Orders,
		Ledger:  d.Ledger,
		Titles:  d.Catalogue,
		LockTTL: cfg.LockTTL,
		Events:  d.Bus,
		Logger:  logger.With().Str("component", "reconcile").Logger(),
	}
	if rdb != nil {
		d.Engine.Locker = lock.Locker{R: rdb}
	}

	d.PayPal = &payment.PayPal{
		Config: payment.PayPalConfig{
			APIBase:         cfg.PayPal.APIBase,
			ClientID:        cfg.PayPal.ClientID,
			Secret:          cfg.PayPal.Secret,
			WebhookID:       cfg.PayPal.WebhookID,
			BrandName:       cfg.BrandName,
			PublicBaseURL:   cfg.PublicBaseURL,
			CancelURL:       cfg.CancelURL,
			FallbackEnabled: cfg.PayPal.FallbackEnabled,
		},
		HTTP:    resilience.NewOutbound("paypal", cfg.OutboundTimeout, logger).StdClient(),
		Settler: d.Engine,
		Logger:  logger.With().Str("component", "paypal").Logger(),
	}
	d.PayFast = &payment.PayFast{
		Config: payment.PayFastConfig{
			Mode:          cfg.PayFast.Mode,
			MerchantID:    cfg.PayFast.MerchantID,
			MerchantKey:   cfg.PayFast.MerchantKey,
			Passphrase:    cfg.PayFast.Passphrase,
			BrandName:     cfg.BrandName,
			PublicBaseURL: cfg.PublicBaseURL,
			ReturnURL:     cfg.ThankYouURL,
			CancelURL:     cfg.CancelURL,
		},
		HTTP:    resilience.NewOutbound("payfast", cfg.OutboundTimeout, logger),
		Orders:  d.Orders,
		Settler: d.Engine,
		Logger:  logger.With().Str("component", "payfast").Logger(),
	}
	d.EFT = &payment.EFT{
		AccountName:   cfg.EFT.AccountName,
		BankName:      cfg.EFT.BankName,
		AccountNumber: cfg.EFT.AccountNumber,
		BranchCode:    cfg.EFT.BranchCode,
		Swift:         cfg.EFT.Swift,
	}
	d.Payments = payment.NewService(d.PayPal, d.PayFast, d.EFT)

	d.Checkout = &checkout.Service{
		Orders:   d.Orders,
		Ledger:   d.Ledger,
		Titles:   d.Catalogue,
		Payments: d.Payments,
		Events:   d.Bus,
		Logger:   logger.With().Str("component", "checkout").Logger(),
	}
	d.Order = &order.Service{Orders: d.Orders, Finalizer: d.Engine, Events: d.EventLog}
	d.Catalog = &catalog.Service{
		Source:    d.Catalogue,
		SheetName: cfg.SheetCatalogue,
		Cache:     catalog.NewCache(rdb, cfg.CatalogCacheTTL, ""),
		Logger:    logger.With().Str("component", "catalog").Logger(),
	}
	d.Tokens = auth.NewTokens(cfg.AdminJWTSecret, cfg.AdminJWTIssuer)
	d.Mailing = &notify.AcyClient{
		URL:    cfg.Acy.URL,
		APIKey: cfg.Acy.APIKey,
		ListID: cfg.Acy.ListID,
		HTTP:   resilience.NewOutbound("acymailing", cfg.OutboundTimeout, logger),
		Logger: logger.With().Str("component", "mailing").Logger(),
	}
	return d
}

// RedisConnOpt converts the configured Redis URL for asynq.
func RedisConnOpt(url string) (asynq.RedisConnOpt, error) {
	return asynq.ParseRedisURI(url)
}

// SubscribeWorker returns the mailing task handler.
func (d *Dependencies) SubscribeWorker() notify.SubscribeWorker {
	w := notify.SubscribeWorker{Client: d.Mailing, LockTTL: d.Config.LockTTL}
	if d.Redis != nil {
		w.Locker = lock.Locker{R: d.Redis}
	}
	return w
}
