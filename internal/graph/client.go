package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
)

// Record is one result row keyed by column name.
type Record map[string]any

// Runner executes a read-only Cypher statement and returns every row.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]Record, error)
}

// ClientConfig configures the Neo4j connection.
type ClientConfig struct {
	URI      string
	User     string
	Password string
	// Database is empty for the server default.
	Database string

	MaxPoolSize    int
	ConnectTimeout time.Duration
	// ConnectAttempts bounds VerifyConnectivity retries.
	ConnectAttempts int
}

// DefaultClientConfig returns pool and timeout defaults for uri.
func DefaultClientConfig(uri, user, password string) ClientConfig {
	return ClientConfig{
		URI:             uri,
		User:            user,
		Password:        password,
		MaxPoolSize:     50,
		ConnectTimeout:  30 * time.Second,
		ConnectAttempts: 5,
	}
}

// Validate checks the fields needed to build a driver.
func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.URI) == "" {
		return perrors.ConfigError("neo4j uri is required", nil)
	}
	if c.ConnectTimeout < 0 || c.MaxPoolSize < 0 {
		return perrors.ConfigError("neo4j pool size and timeout must be non-negative", nil)
	}
	return nil
}

// Neo4jClient is a Runner over a neo4j.DriverWithContext.
type Neo4jClient struct {
	cfg    ClientConfig
	driver neo4j.DriverWithContext
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewNeo4jClient builds the driver and verifies connectivity, backing off
// exponentially between attempts.
func NewNeo4jClient(ctx context.Context, cfg ClientConfig) (*Neo4jClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 1
	}

	auth := neo4j.NoAuth()
	if cfg.User != "" || cfg.Password != "" {
		auth = neo4j.BasicAuth(cfg.User, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		if cfg.MaxPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
		}
		if cfg.ConnectTimeout > 0 {
			c.ConnectionAcquisitionTimeout = cfg.ConnectTimeout
			c.SocketConnectTimeout = cfg.ConnectTimeout
		}
	})
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeGraphConnect, "failed to create neo4j driver", err)
	}

	retry := perrors.RetryConfig{
		MaxRetries:   cfg.ConnectAttempts - 1,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     cfg.ConnectTimeout,
		Multiplier:   2.0,
	}
	if err := perrors.Retry(ctx, retry, func() error {
		return driver.VerifyConnectivity(ctx)
	}); err != nil {
		_ = driver.Close(context.WithoutCancel(ctx))
		return nil, perrors.New(perrors.ErrCodeGraphConnect,
			fmt.Sprintf("failed to connect to %s", cfg.URI), err).
			WithSuggestion("check neo4j.uri and NEO4J_PASSWORD, and that the database is running")
	}

	return &Neo4jClient{
		cfg:    cfg,
		driver: driver,
		logger: slog.Default().With(slog.String("component", "neo4j")),
	}, nil
}

// Run opens a session, executes cypher in a read transaction and collects the rows.
func (c *Neo4jClient) Run(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	if c.driver == nil {
		return nil, perrors.New(perrors.ErrCodeGraphUnavailable, "neo4j driver is closed", nil)
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: c.cfg.Database,
	})
	defer func() { _ = session.Close(ctx) }()

	start := time.Now()
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]Record, 0, len(records))
		for _, r := range records {
			rows = append(rows, Record(r.AsMap()))
		}
		return rows, nil
	})
	if err != nil {
		return nil, perrors.GraphError("query failed", err).WithDetail("cypher", firstLine(cypher))
	}

	c.logger.Debug("graph_query",
		slog.String("cypher", firstLine(cypher)),
		slog.Duration("duration", time.Since(start)))
	return out.([]Record), nil
}

// Close releases the driver. Later calls return the first result.
func (c *Neo4jClient) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if c.driver != nil {
			c.closeErr = c.driver.Close(ctx)
			c.driver = nil
		}
	})
	return c.closeErr
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
