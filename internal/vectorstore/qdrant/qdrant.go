package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	qpb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"vecsearch/internal/domain"
	"vecsearch/internal/embedding"
	"vecsearch/internal/vectorstore"
)

// Payload keys stored with every point.
const (
	keyRecordID  = "record_id"
	keyNamespace = "namespace"
	keyTitle     = "title"
)

// Storage talks to Qdrant over gRPC. One collection backs one index; the
// namespace is a keyword payload field used as a filter.
type Storage struct {
	collection string
	field      string
	conn       *grpc.ClientConn
	cols       qpb.CollectionsClient
	points     qpb.PointsClient
	embedder   embedding.Embedder
	logger     *slog.Logger
}

type Config struct {
	// Addr is the gRPC endpoint, usually host:6334.
	Addr       string
	APIKey     string
	Collection string
	// Field is the payload key holding the record text.
	Field  string
	Logger *slog.Logger
}

// NewStorage creates the gRPC client. No connection is made until the
// first call.
func NewStorage(cfg Config, embedder embedding.Embedder) (*Storage, error) {
	if cfg.Addr == "" {
		return nil, errors.New("qdrant: addr is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant: collection is required")
	}
	if cfg.Field == "" {
		cfg.Field = "chunk_text"
	}
	switch cfg.Field {
	case keyRecordID, keyNamespace, keyTitle:
		return nil, fmt.Errorf("qdrant: field %q collides with a reserved payload key", cfg.Field)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}
	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", cfg.Addr, err)
	}
	return &Storage{
		collection: cfg.Collection,
		field:      cfg.Field,
		conn:       conn,
		cols:       qpb.NewCollectionsClient(conn),
		points:     qpb.NewPointsClient(conn),
		embedder:   embedder,
		logger:     logger,
	}, nil
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func (s *Storage) Exists(ctx context.Context) (bool, error) {
	resp, err := s.cols.CollectionExists(ctx, &qpb.CollectionExistsRequest{CollectionName: s.collection})
	if err != nil {
		return false, err
	}
	return resp.GetResult().GetExists(), nil
}

func (s *Storage) Create(ctx context.Context, spec domain.IndexSpec) error {
	ok, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if ok {
		return domain.ErrIndexExists
	}
	dim := spec.Dimension
	if dim == 0 {
		dim = s.embedder.Dimension()
	}
	if dim == 0 {
		// Remote embedders learn their width from the first response.
		vec, err := s.embedder.Embed(ctx, "dimension probe")
		if err != nil {
			return fmt.Errorf("qdrant: probe embedding dimension: %w", err)
		}
		dim = len(vec)
	}

	_, err = s.cols.Create(ctx, &qpb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qpb.VectorsConfig{
			Config: &qpb.VectorsConfig_Params{
				Params: &qpb.VectorParams{
					Size:     uint64(dim),
					Distance: qpb.Distance_Cosine,
				},
			},
		},
	})
	if status.Code(err) == codes.AlreadyExists {
		return domain.ErrIndexExists
	}
	if err != nil {
		return err
	}

	wait := true
	if _, err := s.points.CreateFieldIndex(ctx, &qpb.CreateFieldIndexCollection{
		CollectionName: s.collection,
		Wait:           &wait,
		FieldName:      keyNamespace,
		FieldType:      qpb.FieldType_FieldTypeKeyword.Enum(),
	}); err != nil {
		// Filtering still works without the payload index, only slower.
		s.logger.Warn("qdrant namespace index not created", "collection", s.collection, "error", err)
	}
	s.logger.Info("created qdrant collection", "collection", s.collection, "dimension", dim, "model", spec.Model)
	return nil
}

// Ready reports whether the collection exists and its optimizer status is
// green.
func (s *Storage) Ready(ctx context.Context) (bool, error) {
	resp, err := s.cols.Get(ctx, &qpb.GetCollectionInfoRequest{CollectionName: s.collection})
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resp.GetResult().GetStatus() == qpb.CollectionStatus_Green, nil
}

func (s *Storage) Drop(ctx context.Context) error {
	ok, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrIndexNotFound
	}
	_, err = s.cols.Delete(ctx, &qpb.DeleteCollection{CollectionName: s.collection})
	return mapErr(err)
}

func (s *Storage) Upsert(ctx context.Context, ns domain.Namespace, records []domain.Record) error {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	vectors, err := vectorstore.EmbedAll(ctx, s.embedder, texts, 0)
	if err != nil {
		return err
	}
	pts := make([]*qpb.PointStruct, len(records))
	for i, r := range records {
		pts[i] = s.point(ns, r, vectors[i])
	}
	wait := true
	_, err = s.points.Upsert(ctx, &qpb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         pts,
	})
	return mapErr(err)
}

func (s *Storage) Search(ctx context.Context, ns domain.Namespace, query string, topK int) ([]domain.Candidate, error) {
	if topK <= 0 {
		return nil, nil
	}
	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	resp, err := s.points.Search(ctx, &qpb.SearchPoints{
		CollectionName: s.collection,
		Vector:         qvec,
		Filter:         namespaceFilter(ns),
		Limit:          uint64(topK),
		WithPayload:    &qpb.WithPayloadSelector{SelectorOptions: &qpb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]domain.Candidate, 0, len(resp.GetResult()))
	for _, sp := range resp.GetResult() {
		out = append(out, s.candidate(sp))
	}
	return vectorstore.TopK(out, topK), nil
}

func (s *Storage) Close() error { return s.conn.Close() }

// PointID derives a stable UUID for a record so that re-inserting the same
// (namespace, id) pair overwrites the existing point.
func PointID(ns domain.Namespace, id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(string(ns)+"/"+id)).String()
}

func (s *Storage) point(ns domain.Namespace, r domain.Record, vec []float32) *qpb.PointStruct {
	return &qpb.PointStruct{
		Id: &qpb.PointId{PointIdOptions: &qpb.PointId_Uuid{Uuid: PointID(ns, r.ID)}},
		Vectors: &qpb.Vectors{
			VectorsOptions: &qpb.Vectors_Vector{
				Vector: &qpb.Vector{Vector: &qpb.Vector_Dense{Dense: &qpb.DenseVector{Data: vec}}},
			},
		},
		Payload: map[string]*qpb.Value{
			keyRecordID:  stringValue(r.ID),
			keyNamespace: stringValue(string(ns)),
			keyTitle:     stringValue(r.Title),
			s.field:      stringValue(r.Text),
		},
	}
}

func (s *Storage) candidate(sp *qpb.ScoredPoint) domain.Candidate {
	p := sp.GetPayload()
	return domain.Candidate{
		ID:    p[keyRecordID].GetStringValue(),
		Title: p[keyTitle].GetStringValue(),
		Text:  p[s.field].GetStringValue(),
		Score: float64(sp.GetScore()),
	}
}

func namespaceFilter(ns domain.Namespace) *qpb.Filter {
	return &qpb.Filter{
		Must: []*qpb.Condition{
			{
				ConditionOneOf: &qpb.Condition_Field{
					Field: &qpb.FieldCondition{
						Key: keyNamespace,
						Match: &qpb.Match{
							MatchValue: &qpb.Match_Keyword{Keyword: string(ns)},
						},
					},
				},
			},
		},
	}
}

func stringValue(v string) *qpb.Value {
	return &qpb.Value{Kind: &qpb.Value_StringValue{StringValue: v}}
}

// mapErr translates a missing collection into the store contract.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return domain.ErrIndexNotFound
	}
	return err
}

var _ vectorstore.Storage = (*Storage)(nil)
