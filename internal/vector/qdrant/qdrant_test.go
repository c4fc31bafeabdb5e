package qdrant

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/efebarandurmaz/crucible/internal/vector"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeStore is an in-memory stand-in for Qdrant's collections and points
// services.
type fakeStore struct {
	dims    map[string]uint64
	points  map[string]map[string]*pb.PointStruct
	creates int
	deletes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		dims:   make(map[string]uint64),
		points: make(map[string]map[string]*pb.PointStruct),
	}
}

func (f *fakeStore) Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.creates++
	f.dims[in.GetCollectionName()] = in.GetVectorsConfig().GetParams().GetSize()
	f.points[in.GetCollectionName()] = make(map[string]*pb.PointStruct)
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (f *fakeStore) Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	dim, ok := f.dims[in.GetCollectionName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "collection not found")
	}
	return &pb.GetCollectionInfoResponse{
		Result: &pb.CollectionInfo{
			Config: &pb.CollectionConfig{
				Params: &pb.CollectionParams{
					VectorsConfig: &pb.VectorsConfig{
						Config: &pb.VectorsConfig_Params{
							Params: &pb.VectorParams{Size: dim, Distance: pb.Distance_Cosine},
						},
					},
				},
			},
		},
	}, nil
}

func (f *fakeStore) List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	var out []*pb.CollectionDescription
	for name := range f.dims {
		out = append(out, &pb.CollectionDescription{Name: name})
	}
	return &pb.ListCollectionsResponse{Collections: out}, nil
}

func (f *fakeStore) Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.deletes++
	delete(f.dims, in.GetCollectionName())
	delete(f.points, in.GetCollectionName())
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (f *fakeStore) Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	coll, ok := f.points[in.GetCollectionName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "collection not found")
	}
	for _, p := range in.GetPoints() {
		coll[p.GetId().GetUuid()] = p
	}
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakeStore) GetPoints(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error) {
	coll := f.points[in.GetCollectionName()]
	var out []*pb.RetrievedPoint
	for _, id := range in.GetIds() {
		if p, ok := coll[id.GetUuid()]; ok {
			out = append(out, &pb.RetrievedPoint{Id: p.GetId(), Payload: p.GetPayload()})
		}
	}
	return &pb.GetResponse{Result: out}, nil
}

// Get implements pointsAPI; name collides with collectionsAPI.Get, so the
// fake is split below.
type fakePoints struct{ store *fakeStore }

func (f fakePoints) Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	return f.store.Upsert(ctx, in, opts...)
}

func (f fakePoints) Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error) {
	return f.store.GetPoints(ctx, in, opts...)
}

func (f fakePoints) Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	coll := f.store.points[in.GetCollectionName()]
	if ids := in.GetPoints().GetPoints(); ids != nil {
		for _, id := range ids.GetIds() {
			delete(coll, id.GetUuid())
		}
	} else if in.GetPoints().GetFilter() != nil {
		for id := range coll {
			delete(coll, id)
		}
	}
	return &pb.PointsOperationResponse{}, nil
}

func (f fakePoints) Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error) {
	coll := f.store.points[in.GetCollectionName()]
	var out []*pb.ScoredPoint
	for _, p := range coll {
		if uint64(len(out)) >= in.GetLimit() {
			break
		}
		out = append(out, &pb.ScoredPoint{Id: p.GetId(), Payload: p.GetPayload(), Score: 0.9})
	}
	return &pb.SearchResponse{Result: out}, nil
}

func newTestManager() (*Manager, *fakeStore) {
	store := newFakeStore()
	m := &Manager{
		collections: store,
		points:      fakePoints{store: store},
		log:         log.New(os.Stderr),
	}
	return m, store
}

func TestEnsureCollection_CreatesWhenMissing(t *testing.T) {
	m, store := newTestManager()

	if err := m.EnsureCollection(context.Background(), "docs", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.dims["docs"] != 3 {
		t.Errorf("expected dimension 3, got %d", store.dims["docs"])
	}
}

func TestEnsureCollection_NoOpWhenDimensionMatches(t *testing.T) {
	m, store := newTestManager()

	if err := m.EnsureCollection(context.Background(), "docs", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.EnsureCollection(context.Background(), "docs", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.creates != 1 {
		t.Errorf("expected 1 create, got %d", store.creates)
	}
	if store.deletes != 0 {
		t.Errorf("expected no deletes, got %d", store.deletes)
	}
}

func TestEnsureCollection_RecreatesOnDimensionMismatch(t *testing.T) {
	m, store := newTestManager()

	if err := m.EnsureCollection(context.Background(), "docs", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.EnsureCollection(context.Background(), "docs", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.dims["docs"] != 5 {
		t.Errorf("expected dimension 5 after recreation, got %d", store.dims["docs"])
	}
	if store.deletes != 1 {
		t.Errorf("expected 1 delete, got %d", store.deletes)
	}
}

func TestEnsureCollection_RejectsNonPositiveDimension(t *testing.T) {
	m, _ := newTestManager()
	if err := m.EnsureCollection(context.Background(), "docs", 0); err == nil {
		t.Fatal("expected error for zero dimension")
	}
}

func TestUpsertPoints_ValidationRejectsBeforeRequest(t *testing.T) {
	tests := []struct {
		name   string
		points []vector.Point
		want   error
	}{
		{
			"empty_id",
			[]vector.Point{{ID: "", Vector: []float32{1, 2}}},
			vector.ErrEmptyID,
		},
		{
			"dimension_mismatch",
			[]vector.Point{
				{ID: "a", Vector: []float32{1, 2}},
				{ID: "b", Vector: []float32{1, 2, 3}},
			},
			vector.ErrDimensionMismatch,
		},
		{
			"nan_component",
			[]vector.Point{{ID: "a", Vector: []float32{1, float32(math.NaN())}}},
			vector.ErrInvalidVector,
		},
		{
			"inf_component",
			[]vector.Point{{ID: "a", Vector: []float32{float32(math.Inf(1)), 0}}},
			vector.ErrInvalidVector,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store := newTestManager()
			if err := m.EnsureCollection(context.Background(), "docs", 2); err != nil {
				t.Fatalf("setup: %v", err)
			}
			err := m.UpsertPoints(context.Background(), "docs", tt.points)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(store.points["docs"]) != 0 {
				t.Error("validation failure must not write any points")
			}
		})
	}
}

func TestUpsertIfMissing_Idempotent(t *testing.T) {
	m, _ := newTestManager()
	if err := m.EnsureCollection(context.Background(), "docs", 2); err != nil {
		t.Fatalf("setup: %v", err)
	}

	points := []vector.Point{
		{ID: "a", Vector: []float32{1, 0}, Payload: map[string]any{"id": "a"}},
		{ID: "b", Vector: []float32{0, 1}, Payload: map[string]any{"id": "b"}},
	}

	report, err := m.UpsertIfMissing(context.Background(), "docs", points)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if report.Inserted != 2 || report.Skipped != 0 {
		t.Errorf("first call: got {%d %d}, want {2 0}", report.Inserted, report.Skipped)
	}

	report, err = m.UpsertIfMissing(context.Background(), "docs", points)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if report.Inserted != 0 || report.Skipped != 2 {
		t.Errorf("second call: got {%d %d}, want {0 2}", report.Inserted, report.Skipped)
	}
}

func TestRetrieveExistingIDs_EmptyShortCircuit(t *testing.T) {
	m, _ := newTestManager()
	existing, err := m.RetrieveExistingIDs(context.Background(), "docs", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(existing) != 0 {
		t.Errorf("expected empty set, got %v", existing)
	}
}

func TestSearchTopK_ReturnsPayload(t *testing.T) {
	m, _ := newTestManager()
	if err := m.EnsureCollection(context.Background(), "docs", 2); err != nil {
		t.Fatalf("setup: %v", err)
	}
	err := m.UpsertPoints(context.Background(), "docs", []vector.Point{
		{ID: "a", Vector: []float32{1, 0}, Payload: map[string]any{"id": "a", "category": "infra"}},
	})
	if err != nil {
		t.Fatalf("setup upsert: %v", err)
	}

	hits, err := m.SearchTopK(context.Background(), "docs", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Payload["id"] != "a" {
		t.Errorf("payload id: got %v, want a", hits[0].Payload["id"])
	}
}

func TestDeleteAndGetPoints(t *testing.T) {
	m, store := newTestManager()
	if err := m.EnsureCollection(context.Background(), "docs", 2); err != nil {
		t.Fatalf("setup: %v", err)
	}
	err := m.UpsertPoints(context.Background(), "docs", []vector.Point{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("setup upsert: %v", err)
	}

	if err := m.DeletePoints(context.Background(), "docs", []string{"a"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	points, err := m.GetPoints(context.Background(), "docs", []string{"a", "b"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(points) != 1 || points[0].ID != "b" {
		t.Errorf("expected only point b to remain, got %v", points)
	}

	if err := m.DeleteAllPoints(context.Background(), "docs"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if len(store.points["docs"]) != 0 {
		t.Errorf("expected empty collection, %d points remain", len(store.points["docs"]))
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	in := map[string]any{
		"name":  "pump-station",
		"count": int64(3),
		"score": 0.5,
		"live":  true,
		"tags":  []string{"water", "scada"},
	}
	out := payloadFromPB(payloadToPB(in))

	if out["name"] != "pump-station" || out["count"] != int64(3) || out["score"] != 0.5 || out["live"] != true {
		t.Errorf("scalar mismatch: %v", out)
	}
	tags, ok := out["tags"].([]any)
	if !ok || len(tags) != 2 || tags[0] != "water" {
		t.Errorf("tags mismatch: %v", out["tags"])
	}
}

func TestPayloadDropsUnsupportedTypes(t *testing.T) {
	in := map[string]any{
		"name":   "pump-station",
		"absent": nil,
		"raw":    struct{ X int }{X: 1},
		"lookup": map[string]string{"a": "b"},
	}
	out := payloadToPB(in)

	if len(out) != 1 {
		t.Errorf("expected only the string key to survive, got %v", out)
	}
	if _, ok := out["name"]; !ok {
		t.Error("supported value should be kept")
	}
}
