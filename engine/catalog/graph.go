package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/m1520n/rag-chatbot/engine/domain"
	"github.com/m1520n/rag-chatbot/pkg/repo"
)

// ProductLabel is the node label product records are stored under.
const ProductLabel = "Product"

const graphPage = 500

var graphEmpty = map[domain.CatalogFilter]string{
	domain.FilterEmptyDescription: "(coalesce(n.descr, '') = '' OR coalesce(n.descr2, '') = '')",
	domain.FilterEmptyName:        "coalesce(n.name, '') = ''",
	domain.FilterEmptyTags:        "coalesce(n.tags, '') = ''",
}

// GraphSource serves the catalog from Product nodes in Neo4j.
type GraphSource struct {
	repo *repo.Neo4jRepo[domain.ProductRecord, string]
}

// NewGraphSource builds a source over driver. Repository options pass
// through, so tests can swap the session.
func NewGraphSource(driver neo4j.DriverWithContext, opts ...repo.Neo4jOption[domain.ProductRecord, string]) *GraphSource {
	return &GraphSource{repo: repo.NewNeo4jRepo(driver, ProductLabel, toProps, fromNode, opts...)}
}

func toProps(r domain.ProductRecord) map[string]any {
	var descr, descr2 string
	if len(r.Descriptions) > 0 {
		descr = r.Descriptions[0]
	}
	if len(r.Descriptions) > 1 {
		descr2 = r.Descriptions[1]
	}
	return map[string]any{
		"id":     r.ID,
		"name":   r.Name,
		"descr":  descr,
		"descr2": descr2,
		"tags":   r.Tags,
		"active": r.Active,
	}
}

func fromNode(rec *neo4j.Record) (domain.ProductRecord, error) {
	v, ok := rec.Get("n")
	if !ok {
		return domain.ProductRecord{}, errors.New("catalog: record has no node")
	}
	node, ok := v.(neo4j.Node)
	if !ok {
		return domain.ProductRecord{}, fmt.Errorf("catalog: unexpected %T in record", v)
	}
	str := func(k string) string {
		s, _ := node.Props[k].(string)
		return s
	}
	active, _ := node.Props["active"].(bool)
	return domain.ProductRecord{
		ID:           str("id"),
		Name:         str("name"),
		Descriptions: []string{str("descr"), str("descr2")},
		Tags:         str("tags"),
		Active:       active,
	}, nil
}

func activeWhere(filters []domain.CatalogFilter) []string {
	preds := []string{"n.active = true"}
	var missing []string
	for _, f := range filters {
		if p, ok := graphEmpty[f]; ok {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		preds = append(preds, "("+strings.Join(missing, " OR ")+")")
	}
	return preds
}

func (g *GraphSource) FetchActive(ctx context.Context) ([]domain.ProductRecord, error) {
	var out []domain.ProductRecord
	for offset := 0; ; offset += graphPage {
		page, err := g.repo.List(ctx, repo.ListOpts{
			Offset:  offset,
			Limit:   graphPage,
			Where:   activeWhere(nil),
			OrderBy: "id",
		})
		if err != nil {
			return nil, fmt.Errorf("catalog: fetch active: %w", err)
		}
		out = append(out, page...)
		if len(page) < graphPage {
			return out, nil
		}
	}
}

func (g *GraphSource) FetchActivePaginated(ctx context.Context, offset, limit int, filters ...domain.CatalogFilter) ([]domain.ProductRecord, error) {
	recs, err := g.repo.List(ctx, repo.ListOpts{
		Offset:  offset,
		Limit:   limit,
		Where:   activeWhere(filters),
		OrderBy: "id",
		Desc:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch page: %w", err)
	}
	return recs, nil
}

func (g *GraphSource) CountActive(ctx context.Context, filters ...domain.CatalogFilter) (int, error) {
	n, err := g.repo.Count(ctx, repo.ListOpts{Where: activeWhere(filters)})
	if err != nil {
		return 0, fmt.Errorf("catalog: count active: %w", err)
	}
	return n, nil
}

func (g *GraphSource) Get(ctx context.Context, id string) (domain.ProductRecord, error) {
	rec, err := g.repo.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.ProductRecord{}, fmt.Errorf("catalog: product %s: %w", id, domain.ErrNotFound)
	}
	return rec, err
}

func (g *GraphSource) Insert(ctx context.Context, rec domain.ProductRecord) error {
	if rec.ID == "" {
		return errors.New("catalog: insert: graph records need an id")
	}
	_, err := g.repo.Save(ctx, rec)
	return err
}
