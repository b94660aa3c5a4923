package main

import (
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/obmirror/go-orderbook-mirror/binance"
	"github.com/obmirror/go-orderbook-mirror/config"
	"github.com/obmirror/go-orderbook-mirror/domain"
	"github.com/obmirror/go-orderbook-mirror/gateway"
	"github.com/obmirror/go-orderbook-mirror/helpers"
	promclient "github.com/obmirror/go-orderbook-mirror/infrastructure/prometheus"
)

func main() {
	conf := config.Load()
	log.Printf("starting with config %s", helpers.ToJsonString(conf))

	zlogger := newLogger()
	defer zlogger.Sync()

	streamClient := binance.NewStreamClient(conf.BinanceWsEndpoint)
	if err := streamClient.Connect(); err != nil {
		log.Fatalf("failed to connect to the feed: %v", err)
	}
	if err := streamClient.WaitConnected(10 * time.Second); err != nil {
		log.Fatalf("feed connection not established: %v", err)
	}

	streamAPI := binance.NewStreamAPI(streamClient)
	syncAPI := binance.NewSyncAPI(conf.BinanceRestEndpoint)

	storage := domain.NewOrderBookStorage()
	hub := gateway.NewHub(zlogger, storage, conf.ProjectionDepth)

	for _, raw := range conf.Pairs {
		pair, err := domain.NewPair(raw)
		if err != nil {
			log.Fatalf("invalid pair %q in config: %v", raw, err)
		}

		maintainer := domain.NewOrderBookMaintainer(
			pair, streamAPI, syncAPI, &binance.DepthUpdateValidator{}, hub)

		book, err := maintainer.Sync(conf.SnapshotDepthLimit)
		if err != nil {
			// no retry until process restart
			log.Printf("skipping %s, bootstrap failed: %v", pair, err)
			continue
		}

		if err := storage.Add(pair, book); err != nil {
			log.Fatalf("failed to install order book for %s: %v", pair, err)
		}

		promclient.OpenOrderBookGauge.Inc()
		runTickerForwarder(streamAPI, pair, hub)
	}

	if storage.OrderBookCount() == 0 {
		log.Fatalf("no pair could be bootstrapped, exiting")
	}

	go promclient.StartPromClientServer(":" + conf.MetricsPort)

	server := gateway.NewServer(zlogger, hub, storage, conf.ProjectionDepth)
	if err := server.Run(":" + conf.Port); err != nil {
		log.Fatalf("gateway server stopped: %v", err)
	}
}

func runTickerForwarder(streamAPI *binance.StreamAPI, pair domain.Pair, hub *gateway.Hub) {
	subscription, err := streamAPI.TickerStream(pair)
	if err != nil {
		log.Printf("failed to subscribe to ticker stream for %s: %v", pair, err)
		return
	}

	go func() {
		for ticker := range subscription.Stream {
			hub.TickerUpdated(ticker)
		}
	}()
}

func newLogger() *zap.Logger {
	var zlogger *zap.Logger
	var err error

	if config.DebugMode {
		zlogger, err = zap.NewDevelopment()
	} else {
		zlogger, err = zap.NewProduction()
	}

	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	return zlogger
}
