package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/marketplace-checkout/internal/cart"
	"github.com/ariefcatur/marketplace-checkout/internal/checkout"
	"github.com/ariefcatur/marketplace-checkout/internal/config"
	"github.com/ariefcatur/marketplace-checkout/internal/gatewayhttp"
	"github.com/ariefcatur/marketplace-checkout/internal/gopay"
	"github.com/ariefcatur/marketplace-checkout/internal/httpx"
	"github.com/ariefcatur/marketplace-checkout/internal/hyperpay"
	kafkax "github.com/ariefcatur/marketplace-checkout/internal/kafka"
	"github.com/ariefcatur/marketplace-checkout/internal/logging"
	"github.com/ariefcatur/marketplace-checkout/internal/metrics"
	"github.com/ariefcatur/marketplace-checkout/internal/orders"
	"github.com/ariefcatur/marketplace-checkout/internal/payments"
	"github.com/ariefcatur/marketplace-checkout/internal/postgres"
	"github.com/ariefcatur/marketplace-checkout/internal/redisx"
	"github.com/ariefcatur/marketplace-checkout/internal/rfq"
)

func main() {
	_ = godotenv.Load()
	decimal.MarshalJSONWithoutQuotes = true

	cfg := config.Load()
	lg, err := logging.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	// gateway credentials harus lengkap sebelum menerima request
	if err := cfg.Validate(); err != nil {
		lg.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			lg.Fatal("db migrate", zap.Error(err))
		}
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: cfg.PGMaxConns, AppName: cfg.ServiceName})
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(reg, "api")
	gatewayMetrics := metrics.NewGatewayMetrics(reg)

	// Gateways
	hp := hyperpay.NewClient(cfg.HyperPay, gatewayhttp.New("hyperpay", gatewayhttp.Options{
		Timeout: cfg.GatewayTimeout, Metrics: gatewayMetrics, Logger: lg,
	}))
	gp := gopay.NewClient(cfg.GoPay, gatewayhttp.New("gopay", gatewayhttp.Options{
		Timeout: cfg.GatewayTimeout, Metrics: gatewayMetrics, Logger: lg,
	}))

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, lg)
	prod.Start(ctx)

	// Stores & services
	repo := &orders.Repo{DB: db}
	orderStore := &orders.Cache{Store: repo, RDB: rdb}
	pub := &orders.Publisher{Producer: prod, Service: cfg.ServiceName}
	carts := cart.NewStore(rdb)
	sessions := checkout.NewStore(rdb)
	idem := &redisx.Idempotency{RDB: rdb}

	sink := &payments.OrderSink{Orders: orderStore, Retry: pub, Events: pub, Log: lg}
	vault := &payments.VaultService{Gateway: hp, Cards: repo, ReturnURL: cfg.HyperPay.ReturnURL, Log: lg}
	checkoutSvc := &payments.CheckoutService{Gateway: hp, Carts: carts, Sink: sink, Currency: cfg.HyperPay.Currency, Log: lg}
	invoiceSvc := &payments.InvoiceService{Gateway: gp, Sink: sink, Currency: cfg.HyperPay.Currency, Log: lg}
	rfqSvc := &rfq.Service{Store: &rfq.Repo{DB: db}, Limit: cfg.RFQFanOutLimit, Log: lg}

	// Router & handlers
	router := httpx.NewRouter(httpx.RouterOptions{
		Log:      lg,
		Metrics:  serverMetrics,
		Gatherer: reg,
		Health: map[string]httpx.Pinger{
			"postgres": repo.Ping,
			"redis":    func(ctx context.Context) error { return redisx.Ping(ctx, rdb) },
		},
	})
	(&httpx.CheckoutHandler{
		Carts: carts, Sessions: sessions, Vault: vault,
		Checkout: checkoutSvc, Invoice: invoiceSvc, Idem: idem, Log: lg,
	}).Register(router)
	(&httpx.PaymentsHandler{
		Vault: vault, Checkout: checkoutSvc, Invoice: invoiceSvc,
		Sessions: sessions, Idem: idem, Log: lg,
	}).Register(router)
	(&httpx.OrdersHandler{Orders: orderStore, Log: lg}).Register(router)
	(&httpx.RFQHandler{RFQ: rfqSvc, Log: lg}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	// graceful shutdown
	go func() {
		lg.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	lg.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // tutup inbox -> flush & close writer
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
}
