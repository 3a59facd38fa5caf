package semantic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/m1520n/rag-chatbot/engine/domain"
	"github.com/m1520n/rag-chatbot/pkg/fn"
)

// pointIDSpace namespaces product ids when deriving Qdrant point UUIDs.
var pointIDSpace = uuid.MustParse("6f1c2b0e-7a4d-4c55-9a8e-3b1f0d2c9e71")

const (
	keyProductID   = "product_id"
	keyName        = "name"
	keyTags        = "tags"
	keyCategory    = "category"
	keyDescription = "description"
	keyURL         = "url"

	scrollPage  = 256
	deleteBatch = 512
)

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantIndex is a VectorIndex backed by one cosine Qdrant collection.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	dims        int
}

// NewQdrant dials Qdrant's gRPC port. dims is the vector width used when the
// collection has to be created.
func NewQdrant(addr, collection string, dims int) (*QdrantIndex, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &QdrantIndex{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dims:        dims,
	}, nil
}

// NewQdrantWithClients builds an index over existing clients.
func NewQdrantWithClients(points pointsAPI, collections collectionsAPI, collection string, dims int) *QdrantIndex {
	return &QdrantIndex{points: points, collections: collections, collection: collection, dims: dims}
}

// Close closes the gRPC connection if the index owns one.
func (q *QdrantIndex) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// PointID maps a product id onto the UUID Qdrant stores it under.
func PointID(productID string) string {
	return uuid.NewSHA1(pointIDSpace, []byte(productID)).String()
}

// EnsureCollection creates the collection if it doesn't exist.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return domain.NewStoreError("list collections", "", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}
	return q.create(ctx)
}

func (q *QdrantIndex) create(ctx context.Context) error {
	if q.dims <= 0 {
		return domain.NewStoreError("create collection", q.collection, fmt.Errorf("vector size %d", q.dims))
	}
	_, err := q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(q.dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return domain.NewStoreError("create collection", q.collection, err)
	}
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, e domain.IndexEntry) error {
	if err := validateEntry(e); err != nil {
		return fmt.Errorf("semantic: upsert %s: %w", e.ID, err)
	}
	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: pb.NewID(PointID(e.ID)),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: e.Vector},
				},
			},
			Payload: toPayload(e.ID, e.Metadata),
		}},
	})
	if err != nil {
		return domain.NewStoreError("upsert", e.ID, err)
	}
	return nil
}

func (q *QdrantIndex) Get(ctx context.Context, id string) (domain.IndexEntry, bool, error) {
	resp, err := q.points.Get(ctx, &pb.GetPoints{
		CollectionName: q.collection,
		Ids:            []*pb.PointId{pb.NewID(PointID(id))},
		WithPayload:    pb.NewWithPayload(true),
		WithVectors:    pb.NewWithVectors(true),
	})
	if err != nil {
		return domain.IndexEntry{}, false, domain.NewStoreError("get", id, err)
	}
	if len(resp.GetResult()) == 0 {
		return domain.IndexEntry{}, false, nil
	}
	return fromRetrieved(resp.GetResult()[0]), true, nil
}

func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	return q.DeleteMany(ctx, []string{id})
}

func (q *QdrantIndex) DeleteMany(ctx context.Context, ids []string) error {
	wait := true
	for _, batch := range fn.Chunk(ids, deleteBatch) {
		pids := fn.Map(batch, func(id string) *pb.PointId { return pb.NewID(PointID(id)) })
		_, err := q.points.Delete(ctx, &pb.DeletePoints{
			CollectionName: q.collection,
			Wait:           &wait,
			Points:         pb.NewPointsSelector(pids...),
		})
		if err != nil {
			return domain.NewStoreError("delete", batch[0], err)
		}
	}
	return nil
}

func (q *QdrantIndex) QueryNearest(ctx context.Context, vec []float32, limit int) ([]Hit, error) {
	if limit <= 0 {
		return []Hit{}, nil
	}
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vec,
		Limit:          uint64(limit),
		WithPayload:    pb.NewWithPayload(true),
	})
	if err != nil {
		return nil, domain.NewStoreError("search", "", err)
	}
	hits := make([]Hit, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		id, md := fromPayload(r.GetPayload())
		hits = append(hits, Hit{ID: id, Distance: 1 - float64(r.GetScore()), Metadata: md})
	}
	return hits, nil
}

func (q *QdrantIndex) EnumerateAll(ctx context.Context) ([]domain.IndexEntry, error) {
	var (
		out    []domain.IndexEntry
		offset *pb.PointId
	)
	limit := uint32(scrollPage)
	for {
		resp, err := q.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: q.collection,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    pb.NewWithPayload(true),
			WithVectors:    pb.NewWithVectors(true),
		})
		if err != nil {
			return nil, domain.NewStoreError("scroll", "", err)
		}
		for _, p := range resp.GetResult() {
			out = append(out, fromRetrieved(p))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return out, nil
		}
	}
}

// Clear drops the collection and recreates it empty.
func (q *QdrantIndex) Clear(ctx context.Context) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return domain.NewStoreError("list collections", "", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() != q.collection {
			continue
		}
		if _, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: q.collection}); err != nil {
			return domain.NewStoreError("delete collection", q.collection, err)
		}
		break
	}
	return q.create(ctx)
}

func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := q.points.Count(ctx, &pb.CountPoints{CollectionName: q.collection, Exact: &exact})
	if err != nil {
		return 0, domain.NewStoreError("count", "", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func toPayload(id string, md domain.Metadata) map[string]*pb.Value {
	str := func(s string) *pb.Value { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}} }
	return map[string]*pb.Value{
		keyProductID:   str(id),
		keyName:        str(md.Name),
		keyTags:        str(md.Tags),
		keyCategory:    str(md.Category),
		keyDescription: str(md.Description),
		keyURL:         str(md.URL),
	}
}

func fromPayload(p map[string]*pb.Value) (string, domain.Metadata) {
	get := func(k string) string { return p[k].GetStringValue() }
	return get(keyProductID), domain.Metadata{
		Name:        get(keyName),
		Tags:        get(keyTags),
		Category:    get(keyCategory),
		Description: get(keyDescription),
		URL:         get(keyURL),
	}
}

func fromRetrieved(p *pb.RetrievedPoint) domain.IndexEntry {
	id, md := fromPayload(p.GetPayload())
	return domain.IndexEntry{ID: id, Vector: denseVector(p.GetVectors().GetVector()), Metadata: md}
}

func denseVector(v *pb.VectorOutput) []float32 {
	if d := v.GetDense(); d != nil {
		return d.GetData()
	}
	return v.GetData()
}
