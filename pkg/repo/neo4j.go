package repo

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Result is the part of a neo4j result the repository reads.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// Runner is the part of a neo4j session the repository uses.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	Close(ctx context.Context) error
}

const defaultListLimit = 100

// Neo4jRepo stores T as nodes carrying one label.
type Neo4jRepo[T any, ID comparable] struct {
	driver     neo4j.DriverWithContext
	database   string
	label      string
	idKey      string
	toMap      func(T) map[string]any
	fromRecord func(*neo4j.Record) (T, error)
	newSession func(ctx context.Context) Runner
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the property name used as the ID (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = key }
}

// WithDatabase selects a database other than the server default.
func WithDatabase[T any, ID comparable](name string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.database = name }
}

// WithSessionFactory replaces the driver session, mostly for tests.
func WithSessionFactory[T any, ID comparable](f func(ctx context.Context) Runner) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.newSession = f }
}

// NewNeo4jRepo creates a repository over nodes labelled label.
func NewNeo4jRepo[T any, ID comparable](
	driver neo4j.DriverWithContext,
	label string,
	toMap func(T) map[string]any,
	fromRecord func(*neo4j.Record) (T, error),
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		driver:     driver,
		label:      label,
		idKey:      "id",
		toMap:      toMap,
		fromRecord: fromRecord,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

var _ Repository[any, string] = (*Neo4jRepo[any, string])(nil)

type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (r *Neo4jRepo[T, ID]) session(ctx context.Context) Runner {
	if r.newSession != nil {
		return r.newSession(ctx)
	}
	return &sessionAdapter{sess: r.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: r.database})}
}

func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var zero T
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n", r.label, r.idKey)
	res, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return zero, fmt.Errorf("repo: get %s: %w", r.label, err)
	}
	if !res.Next(ctx) {
		if err := res.Err(); err != nil {
			return zero, fmt.Errorf("repo: get %s: %w", r.label, err)
		}
		return zero, fmt.Errorf("%s %v: %w", r.label, id, ErrNotFound)
	}
	return r.fromRecord(res.Record())
}

func (r *Neo4jRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (n:%s)%s RETURN n", r.label, where(opts.Where))
	if opts.OrderBy != "" {
		fmt.Fprintf(&b, " ORDER BY n.%s", opts.OrderBy)
		if opts.Desc {
			b.WriteString(" DESC")
		}
	}
	b.WriteString(" SKIP $offset LIMIT $limit")

	params := map[string]any{"offset": opts.Offset, "limit": limit}
	maps.Copy(params, opts.Params)

	res, err := sess.Run(ctx, b.String(), params)
	if err != nil {
		return nil, fmt.Errorf("repo: list %s: %w", r.label, err)
	}
	var items []T
	for res.Next(ctx) {
		item, err := r.fromRecord(res.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("repo: list %s: %w", r.label, err)
	}
	return items, nil
}

func (r *Neo4jRepo[T, ID]) Count(ctx context.Context, opts ListOpts) (int, error) {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s)%s RETURN count(n) AS total", r.label, where(opts.Where))
	res, err := sess.Run(ctx, cypher, opts.Params)
	if err != nil {
		return 0, fmt.Errorf("repo: count %s: %w", r.label, err)
	}
	if !res.Next(ctx) {
		return 0, res.Err()
	}
	v, _ := res.Record().Get("total")
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("repo: count %s: unexpected %T", r.label, v)
	}
	return int(n), nil
}

// Save creates the node or overwrites the properties of the existing one.
func (r *Neo4jRepo[T, ID]) Save(ctx context.Context, entity T) (T, error) {
	var zero T
	sess := r.session(ctx)
	defer sess.Close(ctx)

	props := r.toMap(entity)
	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n += $props RETURN n", r.label, r.idKey)
	res, err := sess.Run(ctx, cypher, map[string]any{"id": props[r.idKey], "props": props})
	if err != nil {
		return zero, fmt.Errorf("repo: save %s: %w", r.label, err)
	}
	if !res.Next(ctx) {
		return zero, fmt.Errorf("repo: save %s: no row returned", r.label)
	}
	return r.fromRecord(res.Record())
}

func where(preds []string) string {
	if len(preds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(preds, " AND ")
}
