package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/screamrouter/pulse-native/internal/logger"
	srv "github.com/screamrouter/pulse-native/internal/pulsenative/server"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		// flag package already printed usage/error
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	cookie, err := loadCookie(cfg.authCookiePath)
	if err != nil {
		log.Error("failed to load auth cookie", "error", err)
		os.Exit(1)
	}
	if !cfg.requireAuthCookie {
		cookie = nil
	}

	var tcpAddr string
	if cfg.tcpPort != 0 {
		tcpAddr = fmt.Sprintf(":%d", cfg.tcpPort)
	}

	reg := prometheus.NewRegistry()
	server := srv.New(srv.Config{
		TCPAddr:          tcpAddr,
		SocketDir:        cfg.unixSocketDir,
		SocketMode:       os.FileMode(cfg.socketPermissions),
		SocketOwnerUser:  cfg.socketOwnerUser,
		SocketOwnerGroup: cfg.socketOwnerGroup,
		Cookie:           cookie,
		Program:          "pulse-native-server",
		ChunkSize:        uint32(cfg.chunkSize),
		MetricsReg:       reg,
		Logger:           logger.Logger(),
	})

	if err := server.Start(); err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	log.Info("server started", "tcp_addr", cfg.tcpPort, "unix_socket_dir", cfg.unixSocketDir, "version", version)

	var metricsSrv *http.Server
	if cfg.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.metricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", "error", err)
			}
		}()
		log.Info("metrics server started", "addr", cfg.metricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := server.Stop(); err != nil {
			log.Error("server stop error", "error", err)
		}
		if metricsSrv != nil {
			_ = metricsSrv.Close()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("server stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
}
