package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/autopilot/internal/gateway"
	"github.com/rahul/autopilot/internal/observability"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve goals from chat gateways",
		Long:  `Serve starts the enabled Telegram and Discord gateways, the metrics endpoint and the idle session reaper.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			live := observability.IsTerminal()
			if live {
				observability.PrintBanner()
				observability.InitializeTerminal()
				defer observability.CleanupTerminal()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			handler := gateway.NewHandler(a.orch, a.zap)
			var messengers []gateway.Messenger
			if g, ok := cfg.GetGateway("telegram"); ok {
				tg, err := gateway.NewTelegramGateway(g.Token, handler, a.zap)
				if err != nil {
					return fmt.Errorf("failed to start telegram gateway: %w", err)
				}
				messengers = append(messengers, tg)
			}
			if g, ok := cfg.GetGateway("discord"); ok {
				dg, err := gateway.NewDiscordGateway(g.Token, handler, a.zap)
				if err != nil {
					return fmt.Errorf("failed to start discord gateway: %w", err)
				}
				messengers = append(messengers, dg)
			}
			if len(messengers) == 0 {
				return errors.New("no gateway is enabled with a token")
			}

			g, gctx := errgroup.WithContext(ctx)
			for _, m := range messengers {
				g.Go(func() error {
					defer m.Stop()
					return m.Start(gctx)
				})
			}

			if addr := cfg.Metrics.Addr; addr != "" {
				srv := &http.Server{Addr: addr, Handler: metricsMux(a), ReadHeaderTimeout: 5 * time.Second}
				g.Go(func() error {
					a.zap.Info("metrics listening", zap.String("addr", addr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("metrics server: %w", err)
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			g.Go(func() error {
				a.orch.Registry.StartReaper(gctx, cfg.Agent.ReapInterval.Std())
				return nil
			})
			g.Go(func() error {
				tick(gctx, 30*time.Second, func() {
					observability.Heartbeat()
					a.logger.LogHeartbeat()
				})
				return nil
			})
			if live {
				g.Go(func() error {
					tick(gctx, time.Second, observability.PrintLiveStatus)
					return nil
				})
			}

			err = g.Wait()
			a.zap.Info("shutting down")
			return err
		},
	}
}

func metricsMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func tick(ctx context.Context, every time.Duration, fn func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
