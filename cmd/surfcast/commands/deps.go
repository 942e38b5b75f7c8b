package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mkalwtb/magicnorthseaweed/internal/alert"
	"github.com/mkalwtb/magicnorthseaweed/internal/cache"
	"github.com/mkalwtb/magicnorthseaweed/internal/models"
	"github.com/mkalwtb/magicnorthseaweed/internal/observability"
	"github.com/mkalwtb/magicnorthseaweed/internal/rater"
	"github.com/mkalwtb/magicnorthseaweed/internal/spots"
	"github.com/mkalwtb/magicnorthseaweed/internal/stormglass"
	"github.com/mkalwtb/magicnorthseaweed/pkg/config"
	"github.com/mkalwtb/magicnorthseaweed/pkg/httputil"
	"github.com/mkalwtb/magicnorthseaweed/pkg/logger"
)

// app is the fully wired dependency graph of the service. Every command
// builds it the same way; nothing is global.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *spots.Registry
	keyring  *stormglass.Keyring
	history  *stormglass.History
	cache    *cache.Cache
	rater    *rater.Rater
	alerts   *alert.Service // nil when alerting is disabled
	metrics  *observability.Metrics
	promReg  *prometheus.Registry // nil when metrics are disabled
}

// initApp wires the whole service. The returned cleanup closes the history
// database.
func initApp() (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)
	clock := clockwork.NewRealClock()

	var metrics *observability.Metrics
	var promReg *prometheus.Registry
	if cfg.MetricsEnabled {
		promReg = prometheus.NewRegistry()
		metrics = observability.New(promReg)
	}

	registry, err := spots.NewRegistry(spots.Defaults())
	if err != nil {
		return nil, nil, fmt.Errorf("build spot registry: %w", err)
	}

	keyring, err := stormglass.NewKeyring(
		filepath.Join(cfg.DataDir, "api_usage.json"),
		cfg.Stormglass.APIKeys,
		cfg.Stormglass.DailyQuota,
		clock, log.Zerolog())
	if err != nil {
		return nil, nil, fmt.Errorf("build keyring: %w", err)
	}

	history, err := stormglass.OpenHistory(
		filepath.Join(cfg.DataDir, "history.db"), log.Zerolog())
	if err != nil {
		return nil, nil, fmt.Errorf("open history database: %w", err)
	}
	cleanup := func() { history.Close() }

	// Pace outbound calls: the provider counts requests, not bandwidth, so
	// a gentle limit keeps a batch refresh from bursting.
	httpClient := httputil.New(log, cfg.Stormglass.RequestTimeout).WithRateLimit(2, 2)
	sgClient := stormglass.NewClient(httpClient, keyring, history, metrics,
		cfg.Stormglass.BaseURL, cfg.Stormglass.ChannelSources, clock, log.Zerolog())

	ensemble, err := models.LoadEnsembleDir(filepath.Join(cfg.DataDir, "models"))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("load model ensemble: %w", err)
	}

	horizon := time.Duration(cfg.HorizonHours) * time.Hour
	rtr := rater.New(sgClient, ensemble, registry, metrics, horizon, clock, log.Zerolog())

	forecastCache, err := cache.New(rtr, filepath.Join(cfg.DataDir, "cache"),
		cfg.CacheMaxAge, clock, metrics, log.Zerolog())
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("open forecast cache: %w", err)
	}

	var alerts *alert.Service
	if cfg.Alert.Enabled {
		filters, err := alert.LoadFilters(filepath.Join(cfg.DataDir, "alert_filters.json"))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("load alert filters: %w", err)
		}
		sender := &alert.SMTPSender{
			Host:     cfg.Alert.SMTPHost,
			Port:     cfg.Alert.SMTPPort,
			From:     cfg.Alert.From,
			Password: cfg.Alert.Password,
		}
		alertLog := alert.OpenLog(filepath.Join(cfg.DataDir, "alert_log.json"), log.Zerolog())
		alerts = alert.NewService(filters, sender, alertLog, clock, metrics, log.Zerolog())
	}

	return &app{
		cfg:      cfg,
		log:      log,
		registry: registry,
		keyring:  keyring,
		history:  history,
		cache:    forecastCache,
		rater:    rtr,
		alerts:   alerts,
		metrics:  metrics,
		promReg:  promReg,
	}, cleanup, nil
}

// gatherer returns the metrics registry for the /metrics endpoint, or a
// plain nil interface when metrics are disabled.
func gatherer(a *app) prometheus.Gatherer {
	if a.promReg == nil {
		return nil
	}
	return a.promReg
}
