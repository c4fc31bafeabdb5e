package qdrant

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/efebarandurmaz/crucible/internal/observability"
	"github.com/efebarandurmaz/crucible/internal/vector"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// collectionsAPI is the subset of pb.CollectionsClient the manager uses.
// Narrowed so tests can substitute fakes without implementing the full
// generated client.
type collectionsAPI interface {
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// pointsAPI is the subset of pb.PointsClient the manager uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// Manager implements vector.Store against Qdrant's gRPC API.
type Manager struct {
	conn        *grpc.ClientConn
	collections collectionsAPI
	points      pointsAPI
	log         *log.Logger
}

// NewManager connects to a Qdrant instance.
func NewManager(ctx context.Context, host string, port int, logger *log.Logger) (*Manager, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &Manager{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		log:         logger,
	}, nil
}

// EnsureCollection creates name with the given dimension and cosine distance
// if absent. An existing collection with a different dimension is deleted and
// recreated; this destroys its points. A "not found" from the existence check
// is the normal create trigger; any other failure propagates.
func (m *Manager) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("collection %s: dimension must be positive, got %d", name, dimension)
	}

	ctx, span := observability.StartVectorSpan(ctx, "ensure_collection", name)
	defer span.End()

	info, err := m.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	switch {
	case err == nil:
		existing := collectionDimension(info.GetResult())
		if existing == dimension {
			return nil
		}
		m.log.Warn("recreating collection on dimension mismatch",
			"collection", name, "configured", existing, "requested", dimension)
		if _, err := m.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
			return fmt.Errorf("deleting collection %s for recreation: %w", name, err)
		}
	case isNotFound(err):
		// fall through to create
	default:
		return fmt.Errorf("checking collection %s: %w", name, err)
	}

	_, err = m.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	return nil
}

// UpsertPoints inserts or overwrites points. Validation happens locally
// before any request: every id must be non-empty, every vector must match the
// first point's dimension, and every component must be finite.
func (m *Manager) UpsertPoints(ctx context.Context, collection string, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := validatePoints(points); err != nil {
		return err
	}

	pbPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		pbPoints[i] = &pb.PointStruct{
			Id:      pointID(p.ID),
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
			Payload: payloadToPB(p.Payload),
		}
	}

	_, err := m.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points:         pbPoints,
	})
	if err != nil {
		m.logDimensionDiagnostics(ctx, collection, len(points[0].Vector))
		return fmt.Errorf("upserting %d points into %s: %w", len(points), collection, err)
	}
	return nil
}

// RetrieveExistingIDs returns the subset of ids present in collection. An
// empty id list short-circuits without a request.
func (m *Manager) RetrieveExistingIDs(ctx context.Context, collection string, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(ids) == 0 {
		return existing, nil
	}

	pbIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pbIDs[i] = pointID(id)
	}

	resp, err := m.points.Get(ctx, &pb.GetPoints{
		CollectionName: collection,
		Ids:            pbIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieving %d ids from %s: %w", len(ids), collection, err)
	}

	for _, pt := range resp.GetResult() {
		if id := pt.GetId().GetUuid(); id != "" {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}

// UpsertIfMissing upserts only points whose id is absent and reports
// insert/skip counts. Calling it twice with the same points inserts on the
// first call and skips everything on the second.
func (m *Manager) UpsertIfMissing(ctx context.Context, collection string, points []vector.Point) (vector.UpsertReport, error) {
	if len(points) == 0 {
		return vector.UpsertReport{}, nil
	}

	ctx, span := observability.StartVectorSpan(ctx, "upsert_if_missing", collection)
	defer span.End()

	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}

	existing, err := m.RetrieveExistingIDs(ctx, collection, ids)
	if err != nil {
		return vector.UpsertReport{}, err
	}

	var missing []vector.Point
	for _, p := range points {
		if _, ok := existing[p.ID]; !ok {
			missing = append(missing, p)
		}
	}

	if len(missing) > 0 {
		if err := m.UpsertPoints(ctx, collection, missing); err != nil {
			return vector.UpsertReport{}, err
		}
	}
	return vector.UpsertReport{
		Inserted: len(missing),
		Skipped:  len(points) - len(missing),
	}, nil
}

// SearchTopK returns the k nearest points by the collection's distance
// metric, payload included.
func (m *Manager) SearchTopK(ctx context.Context, collection string, vec []float32, k int) ([]vector.SearchHit, error) {
	ctx, span := observability.StartVectorSpan(ctx, "search", collection)
	defer span.End()

	resp, err := m.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vec,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		m.logDimensionDiagnostics(ctx, collection, len(vec))
		return nil, fmt.Errorf("searching %s: %w", collection, err)
	}

	hits := make([]vector.SearchHit, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		hits[i] = vector.SearchHit{
			ID:      pt.GetId().GetUuid(),
			Score:   pt.GetScore(),
			Payload: payloadFromPB(pt.GetPayload()),
		}
	}
	return hits, nil
}

// GetPoints retrieves points by id with payload. Vectors are not fetched;
// callers needing them re-embed or search instead.
func (m *Manager) GetPoints(ctx context.Context, collection string, ids []string) ([]vector.Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pbIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pbIDs[i] = pointID(id)
	}

	resp, err := m.points.Get(ctx, &pb.GetPoints{
		CollectionName: collection,
		Ids:            pbIDs,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("getting %d points from %s: %w", len(ids), collection, err)
	}

	points := make([]vector.Point, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		points[i] = vector.Point{
			ID:      pt.GetId().GetUuid(),
			Payload: payloadFromPB(pt.GetPayload()),
		}
	}
	return points, nil
}

// DeletePoints removes points by id. An empty id list is a no-op.
func (m *Manager) DeletePoints(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pbIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pbIDs[i] = pointID(id)
	}

	_, err := m.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pbIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting %d points from %s: %w", len(ids), collection, err)
	}
	return nil
}

// DeleteAllPoints clears every point in the collection via an empty filter
// selector, leaving the collection itself in place.
func (m *Manager) DeleteAllPoints(ctx context.Context, collection string) error {
	_, err := m.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: &pb.Filter{}},
		},
	})
	if err != nil {
		return fmt.Errorf("clearing collection %s: %w", collection, err)
	}
	return nil
}

// ListCollections returns all collection names.
func (m *Manager) ListCollections(ctx context.Context) ([]string, error) {
	resp, err := m.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	names := make([]string, len(resp.GetCollections()))
	for i, c := range resp.GetCollections() {
		names[i] = c.GetName()
	}
	return names, nil
}

// GetCollectionInfo returns the collection's configured dimension and point
// count.
func (m *Manager) GetCollectionInfo(ctx context.Context, name string) (*vector.CollectionInfo, error) {
	resp, err := m.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", name, err)
	}

	result := resp.GetResult()
	return &vector.CollectionInfo{
		Name:        name,
		Dimension:   collectionDimension(result),
		PointsCount: result.GetPointsCount(),
	}, nil
}

// DeleteCollection drops the collection and all its points.
func (m *Manager) DeleteCollection(ctx context.Context, name string) error {
	if _, err := m.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

// Close releases the gRPC connection.
func (m *Manager) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}

// logDimensionDiagnostics best-effort logs the collection's configured
// dimension against the attempted vector dimension after a store failure.
func (m *Manager) logDimensionDiagnostics(ctx context.Context, collection string, attempted int) {
	info, err := m.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: collection})
	if err != nil {
		return
	}
	configured := collectionDimension(info.GetResult())
	if configured != attempted {
		m.log.Error("vector dimension mismatch against store",
			"collection", collection, "configured", configured, "attempted", attempted)
	}
}

func validatePoints(points []vector.Point) error {
	dim := len(points[0].Vector)
	for i, p := range points {
		if p.ID == "" {
			return fmt.Errorf("point %d: %w", i, vector.ErrEmptyID)
		}
		if len(p.Vector) != dim {
			return fmt.Errorf("point %d (%s): got dimension %d, want %d: %w",
				i, p.ID, len(p.Vector), dim, vector.ErrDimensionMismatch)
		}
		for j, v := range p.Vector {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return fmt.Errorf("point %d (%s) component %d: %w", i, p.ID, j, vector.ErrInvalidVector)
			}
		}
	}
	return nil
}

func pointID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func collectionDimension(info *pb.CollectionInfo) int {
	return int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
}

// isNotFound recognizes the store's "collection does not exist" signal in
// both its gRPC status form and its message form.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if status.Code(err) == codes.NotFound {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "doesn't exist")
}

var _ vector.Store = (*Manager)(nil)
