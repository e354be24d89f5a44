package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cserr "github.com/chronoscale/chronoscale-auth/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this
// package.
const tracerName = "github.com/chronoscale/chronoscale-auth/pkg/registry"

// Default connection pool and timeout settings.
const (
	DefaultHost     = "postgres.databases.svc.cluster.local"
	DefaultPort     = 5432
	DefaultDatabase = "chronoscale"
	DefaultUser     = "postgres"

	DefaultMaxConns int32 = 10
	DefaultMinConns int32 = 2

	DefaultConnectTimeout = 10 * time.Second
	DefaultHealthTimeout  = 5 * time.Second
)

// Secret is a string type that prevents accidental logging of sensitive
// values such as the database password. Use [Secret.Value] to retrieve the
// actual value.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

// Value returns the actual secret string.
func (s Secret) Value() string { return string(s) }

// MarshalText implements encoding.TextMarshaler, keeping the secret out of
// serialized configuration.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// PostgresConfig holds the connection configuration for the registry
// database. When URI is set it takes precedence over the structured fields.
type PostgresConfig struct {
	URI      string `env:"URI" yaml:"uri"`
	Host     string `env:"HOST" yaml:"host"`
	Port     int    `env:"PORT" yaml:"port"`
	Database string `env:"DATABASE" yaml:"database"`
	User     string `env:"USER" yaml:"user"`
	Password Secret `env:"PASSWORD" yaml:"-"`

	MaxConns       int32         `env:"MAX_CONNS" yaml:"max_conns"`
	MinConns       int32         `env:"MIN_CONNS" yaml:"min_conns"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" yaml:"connect_timeout"`
}

// Validate applies defaults for zero-valued fields and checks the
// configuration for invalid values.
func (c *PostgresConfig) Validate() error {
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = DefaultMinConns
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.URI != "" {
		if _, err := url.Parse(c.URI); err != nil {
			return cserr.Wrap(err, cserr.CodeValidation,
				"registry: config uri is invalid")
		}
		return nil
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return cserr.Newf(cserr.CodeValidation,
			"registry: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.MaxConns < c.MinConns {
		return cserr.Newf(cserr.CodeValidation,
			"registry: config max_conns (%d) must be >= min_conns (%d)",
			c.MaxConns, c.MinConns)
	}
	return nil
}

// ConnectionString builds a PostgreSQL connection string. The returned
// string contains the password in cleartext; never log it.
func (c *PostgresConfig) ConnectionString() string {
	if c.URI != "" {
		return c.URI
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password.Value()),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}
	q := u.Query()
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Pool defines the pool operations the store needs. It is satisfied by
// [*pgxpool.Pool] and by pgxmock for unit testing.
type Pool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// PostgresStore is the authoritative service-account store, backed by a
// pgx connection pool. Safe for concurrent use.
type PostgresStore struct {
	pool         Pool
	tracer       trace.Tracer
	databaseName string
}

const getAccountSQL = `SELECT id, name, public_key_pem, disabled, created_at, updated_at
FROM service_accounts WHERE id = $1`

// NewPostgresStore connects to the registry database and verifies
// connectivity with a ping. The caller must call [PostgresStore.Close].
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, cserr.Wrap(err, cserr.CodeValidation,
			"registry: failed to parse connection string")
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, cserr.Wrap(err, cserr.CodeUnavailable,
			"registry: failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, cserr.Wrap(err, cserr.CodeUnavailable,
			"registry: failed to connect to database")
	}

	return &PostgresStore{
		pool:         pool,
		tracer:       otel.Tracer(tracerName),
		databaseName: cfg.Database,
	}, nil
}

// NewPostgresStoreFromPool creates a store over a pre-existing [Pool],
// for testing with pgxmock.
func NewPostgresStoreFromPool(pool Pool, databaseName string) *PostgresStore {
	return &PostgresStore{
		pool:         pool,
		tracer:       otel.Tracer(tracerName),
		databaseName: databaseName,
	}
}

// GetAccount returns the account with the given id.
func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	ctx, span := s.startSpan(ctx, "GetAccount")
	span.SetAttributes(attribute.String("registry.account_id", id))

	accountID, err := uuid.Parse(id)
	if err != nil {
		err = cserr.Wrapf(err, cserr.CodeValidation,
			"registry: account id %q is not a uuid", id)
		finishSpan(span, err)
		return nil, err
	}

	var account Account
	err = s.pool.QueryRow(ctx, getAccountSQL, accountID).Scan(
		&account.ID,
		&account.Name,
		&account.PublicKeyPEM,
		&account.Disabled,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		err = cserr.NotFoundf("registry: service account %s not found", id)
		finishSpan(span, err)
		return nil, err
	}
	if err != nil {
		err = cserr.Wrap(err, cserr.CodeInternalDatabase,
			"registry: account lookup failed")
		finishSpan(span, err)
		return nil, err
	}

	finishSpan(span, nil)
	return &account, nil
}

// Health verifies that the database is reachable. It applies
// [DefaultHealthTimeout] when the context has no deadline.
func (s *PostgresStore) Health(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Health")

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := s.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return cserr.Wrap(err, cserr.CodeUnavailable,
			"registry: health check failed")
	}
	return nil
}

// Close releases the connection pool. Safe to call multiple times.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) startSpan(ctx context.Context, operationName string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "registry."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", s.databaseName),
	)
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
