package runner

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// postgres driver
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/browserbase"
	"github.com/Vector/vector-trip-scraper/config"
	"github.com/Vector/vector-trip-scraper/fetchers"
	"github.com/Vector/vector-trip-scraper/postgres"
	"github.com/Vector/vector-trip-scraper/relay"
	"github.com/Vector/vector-trip-scraper/s3uploader"
	"github.com/Vector/vector-trip-scraper/scrapeapp"
	"github.com/Vector/vector-trip-scraper/wanderlog"
)

// Deps is the wiring every scraping mode shares.
type Deps struct {
	DB        *sql.DB
	Store     *postgres.Store
	Settings  *config.Service
	Pipeline  *scrapeapp.Pipeline
	Extractor *wanderlog.Extractor
	Sessions  *fetchers.SessionFactory
	Log       *zap.Logger
}

func NewDeps(ctx context.Context, cfg *Config, log *zap.Logger) (*Deps, error) {
	db, err := OpenDB(ctx, cfg.Dsn)
	if err != nil {
		return nil, err
	}

	uploader, err := cfg.Uploader()
	if err != nil {
		db.Close()

		return nil, err
	}

	sessOpts, err := cfg.SessionOptions()
	if err != nil {
		db.Close()

		return nil, err
	}

	settings := config.New(db)

	return &Deps{
		DB:        db,
		Store:     postgres.NewStore(db, log),
		Settings:  settings,
		Pipeline:  scrapeapp.NewPipeline(uploader, settings, log),
		Extractor: wanderlog.NewExtractor(log),
		Sessions:  fetchers.NewSessionFactory(sessOpts, log),
		Log:       log,
	}, nil
}

// Service builds the single trip scrape service on top of the shared wiring.
func (d *Deps) Service(opts ...scrapeapp.Option) *scrapeapp.Service {
	opts = append([]scrapeapp.Option{scrapeapp.WithTelemetry(Telemetry())}, opts...)

	return scrapeapp.New(d.Store, d.Sessions, d.Extractor, d.Pipeline, d.Log, opts...)
}

func (d *Deps) Close() error {
	return d.DB.Close()
}

func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetConnMaxLifetime(30 * time.Minute)

	return conn, nil
}

// Uploader picks the image relay sink: the edge function when RelayURL is
// set, else S3 when AWS credentials and a bucket are. Nil keeps source URLs.
func (c *Config) Uploader() (relay.Uploader, error) {
	switch {
	case c.RelayURL != "":
		return relay.NewEdgeFunctionUploader(c.RelayURL, c.RelayAPIKey, relay.WithBucket(c.RelayBucket)), nil
	case c.AwsAccessKey != "" && c.AwsSecretKey != "" && c.AwsRegion != "" && c.S3Bucket != "":
		up, err := s3uploader.New(c.AwsAccessKey, c.AwsSecretKey, c.AwsRegion, c.S3Bucket, c.S3Prefix)
		if err != nil {
			return nil, err
		}

		return up, nil
	default:
		return nil, nil
	}
}

func (c *Config) SessionOptions() (fetchers.Options, error) {
	opts := fetchers.Options{
		Headless:      !c.Headful,
		DisableImages: c.DisableImages,
		CDPURL:        c.CDPURL,
	}

	proxies := append([]string(nil), c.Proxies...)

	if c.ProxiesFile != "" {
		fromFile, err := fetchers.LoadProxies(c.ProxiesFile)
		if err != nil {
			return opts, err
		}

		proxies = append(proxies, fromFile...)
	}

	if len(proxies) > 0 {
		opts.Proxies = fetchers.NewRotator(proxies...)
	}

	if c.BrowserbaseAPIKey != "" {
		bb, err := browserbase.New(c.BrowserbaseAPIKey, c.BrowserbaseProjectID)
		if err != nil {
			return opts, err
		}

		opts.Browserbase = bb
	}

	return opts, nil
}
