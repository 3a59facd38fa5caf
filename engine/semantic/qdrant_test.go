package semantic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/m1520n/rag-chatbot/engine/domain"
)

// --- Mocks ---

type searchCapture struct {
	Limit      uint64
	Collection string
}

type mockPoints struct {
	stored    map[string]*pb.PointStruct
	deleted   []string
	search    *searchCapture
	searchRes []*pb.ScoredPoint
	pages     []*pb.ScrollResponse
	scrollReq []*pb.ScrollPoints
	count     uint64
	err       error
}

func newMockPoints() *mockPoints {
	return &mockPoints{stored: map[string]*pb.PointStruct{}}
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range in.GetPoints() {
		m.stored[p.GetId().GetUuid()] = p
	}
	return &pb.PointsOperationResponse{}, nil
}

func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, id := range in.GetPoints().GetPoints().GetIds() {
		m.deleted = append(m.deleted, id.GetUuid())
		delete(m.stored, id.GetUuid())
	}
	return &pb.PointsOperationResponse{}, nil
}

func (m *mockPoints) Get(_ context.Context, in *pb.GetPoints, _ ...grpc.CallOption) (*pb.GetResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*pb.RetrievedPoint
	for _, id := range in.GetIds() {
		if p, ok := m.stored[id.GetUuid()]; ok {
			out = append(out, retrieved(p))
		}
	}
	return &pb.GetResponse{Result: out}, nil
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.search = &searchCapture{Limit: in.GetLimit(), Collection: in.GetCollectionName()}
	return &pb.SearchResponse{Result: m.searchRes}, nil
}

func (m *mockPoints) Scroll(_ context.Context, in *pb.ScrollPoints, _ ...grpc.CallOption) (*pb.ScrollResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.scrollReq = append(m.scrollReq, in)
	page := m.pages[0]
	m.pages = m.pages[1:]
	return page, nil
}

func (m *mockPoints) Count(_ context.Context, _ *pb.CountPoints, _ ...grpc.CallOption) (*pb.CountResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &pb.CountResponse{Result: &pb.CountResult{Count: m.count}}, nil
}

func retrieved(p *pb.PointStruct) *pb.RetrievedPoint {
	return &pb.RetrievedPoint{
		Id:      p.GetId(),
		Payload: p.GetPayload(),
		Vectors: &pb.VectorsOutput{
			VectorsOptions: &pb.VectorsOutput_Vector{
				Vector: &pb.VectorOutput{
					Vector: &pb.VectorOutput_Dense{Dense: &pb.DenseVector{Data: p.GetVectors().GetVector().GetData()}},
				},
			},
		},
	}
}

type mockCollections struct {
	names   []string
	created []*pb.CreateCollection
	dropped []string
	listErr error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	resp := &pb.ListCollectionsResponse{}
	for _, n := range m.names {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: n})
	}
	return resp, nil
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = append(m.created, in)
	m.names = append(m.names, in.GetCollectionName())
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (m *mockCollections) Delete(_ context.Context, in *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.dropped = append(m.dropped, in.GetCollectionName())
	var keep []string
	for _, n := range m.names {
		if n != in.GetCollectionName() {
			keep = append(keep, n)
		}
	}
	m.names = keep
	return &pb.CollectionOperationResponse{Result: true}, nil
}

// --- Tests ---

func TestPointIDDeterministic(t *testing.T) {
	if PointID("42") != PointID("42") {
		t.Fatal("PointID must be deterministic")
	}
	if PointID("42") == PointID("43") {
		t.Fatal("PointID must differ per product")
	}
}

func TestQdrantRoundTrip(t *testing.T) {
	pts := newMockPoints()
	q := NewQdrantWithClients(pts, &mockCollections{}, "products", 2)
	ctx := context.Background()

	want := entry("42", 0.6, 0.8)
	want.Metadata.Description = "Zażółć gęślą jaźń"
	if err := q.Upsert(ctx, want); err != nil {
		t.Fatal(err)
	}
	if _, ok := pts.stored[PointID("42")]; !ok {
		t.Fatal("point not stored under derived uuid")
	}

	got, ok, err := q.Get(ctx, "42")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.ID != "42" || got.Metadata != want.Metadata {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if len(got.Vector) != 2 || got.Vector[0] != 0.6 {
		t.Errorf("vector = %v", got.Vector)
	}

	if _, ok, _ := q.Get(ctx, "missing"); ok {
		t.Error("expected missing")
	}
}

func TestQdrantUpsertValidates(t *testing.T) {
	pts := newMockPoints()
	q := NewQdrantWithClients(pts, &mockCollections{}, "products", 2)
	e := entry("1", 1, 0)
	e.Metadata.Category = " "
	if err := q.Upsert(context.Background(), e); !errors.Is(err, domain.ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata, got %v", err)
	}
	if len(pts.stored) != 0 {
		t.Error("invalid entry reached the store")
	}
}

func TestQdrantErrorsWrapStoreError(t *testing.T) {
	boom := errors.New("unavailable")
	pts := newMockPoints()
	pts.err = boom
	q := NewQdrantWithClients(pts, &mockCollections{}, "products", 2)
	ctx := context.Background()

	checks := map[string]error{
		"upsert": q.Upsert(ctx, entry("1", 1, 0)),
		"delete": q.Delete(ctx, "1"),
	}
	_, _, checks["get"] = q.Get(ctx, "1")
	_, checks["query"] = q.QueryNearest(ctx, []float32{1, 0}, 3)
	_, checks["count"] = q.Count(ctx)
	_, checks["enumerate"] = q.EnumerateAll(ctx)

	for op, err := range checks {
		if !errors.Is(err, domain.ErrVectorStore) || !errors.Is(err, boom) {
			t.Errorf("%s: expected store error wrapping cause, got %v", op, err)
		}
	}
}

func TestQdrantQueryNearestDistance(t *testing.T) {
	pts := newMockPoints()
	pts.searchRes = []*pb.ScoredPoint{
		{Id: pb.NewID(PointID("1")), Score: 0.9, Payload: toPayload("1", entry("1").Metadata)},
		{Id: pb.NewID(PointID("2")), Score: 0.25, Payload: toPayload("2", entry("2").Metadata)},
	}
	q := NewQdrantWithClients(pts, &mockCollections{}, "products", 2)

	hits, err := q.QueryNearest(context.Background(), []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].ID != "1" || hits[1].ID != "2" {
		t.Fatalf("hits = %+v", hits)
	}
	if math.Abs(hits[0].Distance-0.1) > 1e-6 || math.Abs(hits[1].Distance-0.75) > 1e-6 {
		t.Errorf("distances = %v, %v", hits[0].Distance, hits[1].Distance)
	}
	if pts.search.Limit != 10 || pts.search.Collection != "products" {
		t.Errorf("request = %+v", pts.search)
	}

	empty, err := q.QueryNearest(context.Background(), []float32{1, 0}, 0)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("limit 0: %v %v", empty, err)
	}
}

func TestQdrantEnumerateAllPages(t *testing.T) {
	pts := newMockPoints()
	mk := func(id string) *pb.RetrievedPoint {
		return retrieved(&pb.PointStruct{
			Id:      pb.NewID(PointID(id)),
			Payload: toPayload(id, entry(id).Metadata),
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: []float32{1, 0}}}},
		})
	}
	next := pb.NewID(PointID("3"))
	pts.pages = []*pb.ScrollResponse{
		{Result: []*pb.RetrievedPoint{mk("1"), mk("2")}, NextPageOffset: next},
		{Result: []*pb.RetrievedPoint{mk("3")}},
	}
	q := NewQdrantWithClients(pts, &mockCollections{}, "products", 2)

	all, err := q.EnumerateAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[2].ID != "3" || all[2].Metadata.URL == "" {
		t.Fatalf("all = %+v", all)
	}
	if len(pts.scrollReq) != 2 || pts.scrollReq[1].GetOffset().GetUuid() != next.GetUuid() {
		t.Errorf("second page must continue from the returned offset")
	}
}

func TestQdrantDeleteMany(t *testing.T) {
	pts := newMockPoints()
	q := NewQdrantWithClients(pts, &mockCollections{}, "products", 2)
	ids := make([]string, deleteBatch+3)
	for i := range ids {
		ids[i] = fmt.Sprint(i)
	}
	if err := q.DeleteMany(context.Background(), ids); err != nil {
		t.Fatal(err)
	}
	if len(pts.deleted) != len(ids) || pts.deleted[0] != PointID(ids[0]) {
		t.Errorf("deleted %d ids", len(pts.deleted))
	}
}

func TestQdrantEnsureAndClear(t *testing.T) {
	cols := &mockCollections{}
	q := NewQdrantWithClients(newMockPoints(), cols, "products", 768)
	ctx := context.Background()

	if err := q.EnsureCollection(ctx); err != nil {
		t.Fatal(err)
	}
	if err := q.EnsureCollection(ctx); err != nil {
		t.Fatal(err)
	}
	if len(cols.created) != 1 {
		t.Fatalf("expected one create, got %d", len(cols.created))
	}
	params := cols.created[0].GetVectorsConfig().GetParams()
	if params.GetSize() != 768 || params.GetDistance() != pb.Distance_Cosine {
		t.Errorf("params = %+v", params)
	}

	if err := q.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if len(cols.dropped) != 1 || len(cols.created) != 2 {
		t.Errorf("clear: dropped=%v created=%d", cols.dropped, len(cols.created))
	}

	bad := NewQdrantWithClients(newMockPoints(), &mockCollections{}, "products", 0)
	if err := bad.Clear(ctx); !errors.Is(err, domain.ErrVectorStore) {
		t.Errorf("expected store error for zero dims, got %v", err)
	}
}

func TestQdrantCount(t *testing.T) {
	pts := newMockPoints()
	pts.count = 17
	q := NewQdrantWithClients(pts, &mockCollections{}, "products", 2)
	if n, err := q.Count(context.Background()); err != nil || n != 17 {
		t.Fatalf("count = %d, %v", n, err)
	}
}
