// Package qdrant implements a ChunkStore backed by a Qdrant collection.
package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/docquery/docquery/internal/store"
)

const (
	payloadID     = "chunk_id"
	payloadText   = "text"
	payloadSource = "source_path"
	payloadPage   = "page"

	scrollPageSize = 256
)

// pointNamespace seeds deterministic point UUIDs so re-ingesting the same
// chunk overwrites its point instead of duplicating it. Qdrant point ids
// must be UUIDs or integers; the original chunk id rides in the payload.
var pointNamespace = uuid.MustParse("9c9ed0f5-3f7b-43d1-8a5b-5a3dfe1b2c60")

// Store talks to Qdrant over gRPC. Chunk text and provenance live in the
// point payload; the embedding is the point vector.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New connects to a Qdrant instance. Call EnsureCollection before the first
// upsert; queries expect the collection to exist with cosine distance and
// the ingest embedder's dimension.
func New(host string, port int, collection string) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist yet. Called once before ingest; queries assume it is there.
func (s *Store) EnsureCollection(ctx context.Context, dim uint64) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant list collections: %w", err)
	}
	for _, c := range list.Collections {
		if c.Name == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: dim, Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", s.collection, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, chunks []store.Chunk) error {
	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		payload := map[string]*pb.Value{
			payloadID:     {Kind: &pb.Value_StringValue{StringValue: c.ID}},
			payloadText:   {Kind: &pb.Value_StringValue{StringValue: c.Text}},
			payloadSource: {Kind: &pb.Value_StringValue{StringValue: c.SourcePath}},
		}
		if c.Page > 0 {
			payload[payloadPage] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Page)}}
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.NewSHA1(pointNamespace, []byte(c.ID)).String()}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: c.Embedding}}},
			Payload: payload,
		}
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (s *Store) NearestNeighbors(ctx context.Context, vector []float32, k int) ([]store.Chunk, error) {
	if k <= 0 {
		return nil, nil
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	chunks := make([]store.Chunk, 0, len(resp.Result))
	for _, pt := range resp.Result {
		chunks = append(chunks, scoredPointChunk(pt))
	}
	return chunks, nil
}

func (s *Store) AllChunks(ctx context.Context) ([]store.Chunk, error) {
	var (
		chunks []store.Chunk
		offset *pb.PointId
	)
	limit := uint32(scrollPageSize)
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
			WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll: %w", err)
		}
		for _, pt := range resp.Result {
			chunks = append(chunks, retrievedPointChunk(pt))
		}
		if resp.NextPageOffset == nil {
			return chunks, nil
		}
		offset = resp.NextPageOffset
	}
}

func (s *Store) Count(ctx context.Context) (int, error) {
	resp, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: s.collection})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(resp.Result.Count), nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func scoredPointChunk(pt *pb.ScoredPoint) store.Chunk {
	c := payloadChunk(pt.Payload)
	if c.ID == "" {
		c.ID = pt.Id.GetUuid()
	}
	if v := pt.Vectors.GetVector(); v != nil {
		c.Embedding = v.Data
	}
	return c
}

func retrievedPointChunk(pt *pb.RetrievedPoint) store.Chunk {
	c := payloadChunk(pt.Payload)
	if c.ID == "" {
		c.ID = pt.Id.GetUuid()
	}
	if v := pt.Vectors.GetVector(); v != nil {
		c.Embedding = v.Data
	}
	return c
}

func payloadChunk(payload map[string]*pb.Value) store.Chunk {
	var c store.Chunk
	for key, v := range payload {
		switch key {
		case payloadID:
			c.ID = v.GetStringValue()
		case payloadText:
			c.Text = v.GetStringValue()
		case payloadSource:
			c.SourcePath = v.GetStringValue()
		case payloadPage:
			c.Page = int(v.GetIntegerValue())
		}
	}
	return c
}
