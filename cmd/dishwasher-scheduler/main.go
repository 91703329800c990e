// Command dishwasher-scheduler holds a dishwasher's start back until the
// cheapest electricity hour and reports its cycles to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sweeney/dishwasher-scheduler/internal/config"
	"github.com/sweeney/dishwasher-scheduler/internal/engine"
	"github.com/sweeney/dishwasher-scheduler/internal/gpio"
	"github.com/sweeney/dishwasher-scheduler/internal/logger"
	"github.com/sweeney/dishwasher-scheduler/internal/metrics"
	"github.com/sweeney/dishwasher-scheduler/internal/mqtt"
	"github.com/sweeney/dishwasher-scheduler/internal/price"
	"github.com/sweeney/dishwasher-scheduler/internal/relay"
	"github.com/sweeney/dishwasher-scheduler/internal/status"
	"github.com/sweeney/dishwasher-scheduler/internal/web"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "dishwasher-scheduler",
	Short:         "Start the dishwasher in the cheapest electricity hour",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (YAML or JSON)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies its log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("main")

	conn, err := mqtt.Dial(cfg.MQTT, logger.New("mqtt"))
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	publisher := mqtt.NewRealPublisher(conn, cfg.MQTT.Topic)
	defer publisher.Close()

	shelly, err := relay.NewShelly(conn, cfg.Shelly, cfg.MQTT.ClientID, logger.New("shelly"))
	if err != nil {
		return fmt.Errorf("shelly: %w", err)
	}
	defer shelly.Close()

	prices := newPriceSource(cfg.Tibber)

	var button gpio.Reader
	if cfg.Button.Enabled {
		r, err := gpio.NewRealReader(cfg.Button.Chip, cfg.Button.Pin)
		if err != nil {
			return fmt.Errorf("init button: %w", err)
		}
		defer r.Close()
		button = r
	}

	tracker := status.NewTracker(time.Now(), trackerConfig(cfg, prices))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := metrics.NewProm(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infof("http status server listening on %s", cfg.HTTP.Addr)
	}

	ctx, cancel := context.WithCancelCause(cmd.Context())
	defer cancel(nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go handleSignals(ctx, sigCh, cancel, log)

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	eng := engine.New(engine.Deps{
		Switch:    shelly,
		Meter:     shelly,
		Prices:    prices,
		Button:    button,
		Publisher: publisher,
		Conn:      conn,
		Tracker:   tracker,
		Metrics:   prom,
		Log:       logger.New("engine"),
	}, engine.Options{
		Cycle:        cfg.Cycle.Logic(),
		Heartbeat:    cfg.Heartbeat,
		FetchTimeout: cfg.Tibber.Timeout,
	})
	return eng.Run(ctx, ticker.C)
}

// newPriceSource returns nil when no real API key is configured, which makes
// every schedule use the fallback hour.
func newPriceSource(cfg config.TibberConfig) price.Source {
	if !cfg.Configured() {
		return nil
	}
	return price.NewTibber(cfg.URL, cfg.APIKey, cfg.Timeout)
}

func trackerConfig(cfg *config.Config, prices price.Source) status.Config {
	source := "fallback"
	if prices != nil {
		source = "tibber"
	}
	return status.Config{
		TickMs:        cfg.Tick.Milliseconds(),
		HeartbeatMs:   cfg.Heartbeat.Milliseconds(),
		IdleTimeoutMs: cfg.Cycle.IdleTimeout.Milliseconds(),
		StartOffsetMs: cfg.Cycle.StartOffset.Milliseconds(),
		MinPower:      cfg.Cycle.MinPower,
		FallbackHour:  cfg.Cycle.FallbackHour,
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.HTTP.Addr,
		PriceSource:   source,
	}
}

// handleSignals cancels ctx with the name of the first signal received.
func handleSignals(ctx context.Context, sig <-chan os.Signal, cancel context.CancelCauseFunc, log logger.Logger) {
	select {
	case s := <-sig:
		log.Infof("received %v, shutting down", s)
		cancel(engine.StopError{Reason: signalName(s)})
	case <-ctx.Done():
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
