package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bidspot/internal/config"
	cronrunner "bidspot/internal/cron"
	"bidspot/internal/database/db_client"
	"bidspot/internal/events"
	"bidspot/internal/http/auctionhandler"
	"bidspot/internal/http/http_server"
	"bidspot/internal/identity"
	"bidspot/internal/notify"
	"bidspot/internal/redis/redis_client"
	"bidspot/internal/services/auction"
	"bidspot/internal/services/bidledger"
	"bidspot/internal/services/capacitygate"
	"bidspot/internal/services/payment"
	"bidspot/internal/services/paymentsupervisor"
	"bidspot/internal/services/winnerresolver"
	"bidspot/internal/store/pgstore"
	"bidspot/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis (notification outbox + live-event fan-out)
	redisClient, err := redis_client.NewRedisClient(ctx, cfg.RedisHost, int(cfg.RedisPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	// 4. Postgres db client
	pgDb, err := db_client.Open(ctx, cfg.PostgresHost, cfg.PostgresPort,
		cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	// 5. Core services
	st := pgstore.New(pgDb)
	dir := identity.NewDirectory(st)
	outbox := notify.NewRedisOutbox(redisClient)
	pub := events.NewPublisher(redisClient)

	ledger := bidledger.New(st)
	gate := capacitygate.New(st, ledger, outbox, pub, cfg.BidRetryMax)
	resolver := winnerresolver.New(st, ledger, outbox, pub,
		time.Duration(cfg.PaymentWindowHours)*time.Hour)
	supervisor := paymentsupervisor.New(st, resolver, pub)
	payments := payment.New(st, pub)
	auctionService := auction.NewAuctionService(st, dir)

	// 6. Background: notification dispatcher tails the outbox stream
	dispatcher := notify.NewDispatcher(redisClient, st, dir, notify.LogSender{})
	dispatcher.Run(ctx)

	// 7. Background: cron ticks for resolution + deadline sweep
	runner := cronrunner.New(ctx)
	if _, err := runner.Add(cfg.ResolveCronSpec, cronrunner.ResolveDueAuctions(st, resolver)); err != nil {
		Log.Fatal("cron-add-resolve", zap.Error(err))
	}
	if _, err := runner.Add(cfg.SweepCronSpec, cronrunner.SweepMissedPayments(supervisor)); err != nil {
		Log.Fatal("cron-add-sweep", zap.Error(err))
	}
	runner.Start()
	defer runner.Stop()

	// 8. WebSockets hub + Redis fan-out
	hub := ws.NewHub()
	wsSrv := ws.NewWsServer(hub, redisClient, auctionService)

	// 9. HTTP + WS server
	handler := auctionhandler.New(auctionService, gate, ledger, resolver, payments, st)
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, handler)
	go func() {
		<-ctx.Done()
		if err := httpServer.Dispose(); err != nil {
			Log.Error("http-dispose", zap.Error(err))
		}
	}()
	if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
