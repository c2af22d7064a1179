package container

import (
	"awards-api/internal/config"
	"awards-api/internal/domain"
	"awards-api/internal/service"
	"awards-api/internal/service/hubspot"
	"awards-api/internal/service/mailchimp"
	"awards-api/pkg/logger"
	"awards-api/pkg/redis"
)

// Container holds shared application dependencies: config, logging, the
// optional redis client, and the sync adapters keyed by target.
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	RedisClient *redis.Client
	Adapters    map[domain.SyncTarget]service.SyncAdapter
}

// New creates a new dependency injection container
func New(cfg *config.Config, logger *logger.Logger) (*Container, error) {
	// Initialize Redis client if Redis URL is configured
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, logger.Logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize Redis client, proceeding without fast paths")
		} else {
			redisClient = client
			logger.Info("Redis client initialized successfully")
		}
	} else {
		logger.Info("Redis URL not configured, proceeding without fast paths")
	}

	adapters := make(map[domain.SyncTarget]service.SyncAdapter)
	if cfg.HubSpotEnabled {
		adapters[domain.TargetHubSpot] = hubspot.NewService(cfg.HubSpotBaseURL, cfg.HubSpotToken, logger)
	}
	if cfg.MailchimpEnabled {
		adapters[domain.TargetMailchimp] = mailchimp.NewService(cfg.MailchimpBaseURL, cfg.MailchimpToken, cfg.MailchimpListID, logger)
	}

	return &Container{
		Config:      cfg,
		Logger:      logger,
		RedisClient: redisClient,
		Adapters:    adapters,
	}, nil
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// EnabledTargets returns the sync targets with configured adapters, used
// when fanning out outbox entries
func (c *Container) EnabledTargets() []domain.SyncTarget {
	targets := make([]domain.SyncTarget, 0, len(c.Adapters))
	for target := range c.Adapters {
		targets = append(targets, target)
	}
	return targets
}
