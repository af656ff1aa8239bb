// Package app assembles the application's dependency graph. Everything is
// constructed here and injected explicitly; nothing reaches for globals.
package app

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/config"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/coordinator"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/domain"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/identity"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/overflow"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/service/intake"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/sizelimit"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store/dynamo"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store/s3blob"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/view"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/observability"
)

// Container holds every constructed dependency of the running service.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	KeyValue store.KeyValue
	Blobs    store.Blob
	Tables   store.Tables

	Intake *intake.Service

	Watcher *config.ConfigWatcher
}

// NewContainer builds the full dependency graph from configuration.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	tables := store.Tables{
		Applications: store.Table{Name: cfg.ApplicationsTable, PartitionKey: domain.AttrAppID, SortKey: domain.AttrZone},
		Applicants:   store.Table{Name: cfg.ApplicantsTable, PartitionKey: domain.AttrUserID, SortKey: domain.AttrZone},
		CoApplicants: store.Table{Name: cfg.CoApplicantsTable, PartitionKey: domain.AttrUserID, SortKey: domain.AttrZone},
		Guarantors:   store.Table{Name: cfg.GuarantorsTable, PartitionKey: domain.AttrUserID, SortKey: domain.AttrZone},
	}

	kv := dynamo.NewClient(dynamodb.NewFromConfig(awsCfg), cfg.ZoneIndexName, logger)

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = &cfg.S3Endpoint
		}
	})
	blobs := s3blob.NewStore(s3Client, cfg.OverflowBucket, logger)

	var metrics *observability.Metrics
	if cfg.EnableMetrics {
		metrics = observability.NewMetrics(nil)
	}

	// Dynamic overrides are optional; absence of the file means static
	// limits only.
	var watcher *config.ConfigWatcher
	var dyn *config.DynamicConfig
	if cfg.DynamicConfigPath != "" {
		watcher, err = config.NewConfigWatcher(cfg.DynamicConfigPath, logger)
		if err != nil {
			logger.Warn("dynamic config unavailable, using static limits", zap.Error(err))
		} else {
			watcher.Start()
			dyn = watcher.Current()
		}
	}

	limits := config.EffectiveLimits(cfg, dyn)
	enforcer := sizelimit.NewEnforcer(limits, logger)
	ov := overflow.NewAdapter(blobs, enforcer, config.EffectiveSpillThreshold(cfg, dyn), logger).WithMetrics(metrics)
	coord := coordinator.New(kv, tables, logger)
	assembler := view.NewAssembler(kv, tables, ov, logger)

	if watcher != nil {
		watcher.OnChange(func(next *config.DynamicConfig) {
			enforcer.SetLimits(config.EffectiveLimits(cfg, next))
			ov.SetFieldThreshold(config.EffectiveSpillThreshold(cfg, next))
			logger.Info("applied dynamic size limits",
				zap.Int("budget_bytes", config.EffectiveLimits(cfg, next).BudgetBytes),
			)
		})
	}

	retry := store.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RetryMaxAttempts

	svc := intake.NewService(intake.Config{
		KeyValue:  kv,
		Tables:    tables,
		Overflow:  ov,
		Coord:     coord,
		Assembler: assembler,
		Identity:  identity.ContextProvider{},
		Metrics:   metrics,
		Retry:     retry,
		Logger:    logger,
	})

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		KeyValue: kv,
		Blobs:    blobs,
		Tables:   tables,
		Intake:   svc,
		Watcher:  watcher,
	}, nil
}

// Close releases container resources.
func (c *Container) Close() {
	if c.Watcher != nil {
		c.Watcher.Stop()
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		zcfg.Level = zap.NewAtomicLevel()
	}
	return zcfg.Build()
}
