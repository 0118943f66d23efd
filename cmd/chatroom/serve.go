package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Olafs-World/agent-chatroom/internal/api"
	"github.com/Olafs-World/agent-chatroom/internal/api/middleware"
	"github.com/Olafs-World/agent-chatroom/internal/config"
	"github.com/Olafs-World/agent-chatroom/internal/fanout"
	"github.com/Olafs-World/agent-chatroom/internal/handlers"
	"github.com/Olafs-World/agent-chatroom/internal/server"
	"github.com/Olafs-World/agent-chatroom/internal/store"
	"github.com/Olafs-World/agent-chatroom/internal/tunnel"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := serveConfig(cmd)
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, cfg)
		},
	}

	// Flags override the environment only when given.
	cmd.Flags().StringP("password", "p", "", "Room password (env ROOM_PASSWORD)")
	cmd.Flags().Int("port", 8765, "Port to listen on (env PORT)")
	cmd.Flags().String("tunnel", "", "Expose the room through a tunnel: cloudflared (env TUNNEL)")
	cmd.Flags().String("log-level", "info", "Log level: debug|info|warn|error (env LOG_LEVEL)")
	cmd.Flags().Duration("keepalive", 15*time.Second, "Idle interval between stream keepalive comments (env KEEPALIVE_INTERVAL)")
	cmd.Flags().String("overflow", "disconnect", "Full stream queue policy: disconnect|drop-oldest (env OVERFLOW_POLICY)")
	return cmd
}

// serveConfig loads the environment (and .env) and applies the flags the
// operator set explicitly.
func serveConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()
	flags := cmd.Flags()
	if flags.Changed("password") {
		cfg.Password, _ = flags.GetString("password")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("tunnel") {
		cfg.Tunnel, _ = flags.GetString("tunnel")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("keepalive") {
		cfg.KeepaliveInterval, _ = flags.GetDuration("keepalive")
	}
	if flags.Changed("overflow") {
		cfg.OverflowPolicy, _ = flags.GetString("overflow")
	}
	return cfg
}

// runServe binds the port before anything is announced, so a port in use
// fails the command instead of printing a dead invite.
func runServe(ctx context.Context, cfg *config.Config) error {
	l, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}
	return serve(ctx, cfg, l, os.Stdout)
}

// serve runs the relay on l until ctx is done, printing the banner to out
// once the room is reachable.
func serve(ctx context.Context, cfg *config.Config, l net.Listener, out io.Writer) error {
	logger := newLogger(cfg)

	policy, err := fanout.ParsePolicy(cfg.OverflowPolicy)
	if err != nil {
		l.Close()
		return err
	}

	// Initialize Redis store
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			l.Close()
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	log := store.NewLog()
	fan := fanout.New(fanout.Options{
		Buffer:   cfg.SubscriberBuffer,
		Overflow: policy,
		Logger:   logger,
	})

	h := handlers.NewHandler(log, fan, handlers.Options{
		Keepalive: cfg.KeepaliveInterval,
		Redis:     redisStore,
		Logger:    logger,
	})
	gate := middleware.NewGate(cfg.Password, logger)

	var limiter *middleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(redisStore.Client(), logger, middleware.RateLimiterConfig{
			RPS:       cfg.RateLimitRPS,
			Burst:     cfg.RateLimitBurst,
			Whitelist: cfg.RateLimitWhitelist,
		})
	}

	router := api.NewRouter(logger, h, gate, limiter)

	srv := server.New(router, server.Options{Logger: logger})
	srv.OnShutdown(fan.Close)

	srvCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()
	errCh := make(chan error, 1)
	logger.Info().
		Str("addr", l.Addr().String()).
		Str("env", cfg.Env).
		Str("overflow", policy.String()).
		Msg("starting chatroom relay")
	go func() {
		errCh <- srv.Serve(srvCtx, l)
	}()

	var tun *tunnel.Manager
	var publicURL string
	if cfg.Tunnel == config.TunnelCloudflared {
		tun, publicURL = startTunnel(ctx, cfg, logger)
	}

	printBanner(out, cfg, publicURL)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stopTunnel(tun, logger)
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info().Msg("shutting down")
	stopTunnel(tun, logger)
	stopServer()
	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cloudflaredBinary finds cloudflared, downloading it when it is not
// installed.
var cloudflaredBinary = func(ctx context.Context, logger zerolog.Logger) (string, error) {
	if bin, ok := tunnel.Locate(); ok {
		return bin, nil
	}
	dest := tunnel.HomeBinary()
	logger.Info().Str("dest", dest).Msg("cloudflared not found, downloading")
	dctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := tunnel.Download(dctx, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// startTunnel launches cloudflared. Any failure is logged and the room
// stays available locally.
func startTunnel(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*tunnel.Manager, string) {
	bin, err := cloudflaredBinary(ctx, logger)
	if err != nil {
		logger.Error().Err(err).Str("component", "tunnel").Msg("could not obtain cloudflared, serving locally only")
		return nil, ""
	}

	tun := tunnel.New(tunnel.Options{
		Binary:   bin,
		Port:     cfg.Port,
		Deadline: cfg.TunnelDeadline,
		Logger:   logger,
	})
	h, err := tun.Start(ctx)
	if err != nil {
		// Start has already logged the failure.
		return nil, ""
	}
	return tun, h.PublicURL
}

func stopTunnel(tun *tunnel.Manager, logger zerolog.Logger) {
	if tun == nil {
		return
	}
	if err := tun.Stop(); err != nil && !errors.Is(err, tunnel.ErrNotRunning) {
		logger.Error().Err(err).Str("component", "tunnel").Msg("failed to stop tunnel")
	}
}

// roomURL builds the browser link with the password in the query string.
func roomURL(base, password string) string {
	return base + "/?password=" + url.QueryEscape(password)
}
