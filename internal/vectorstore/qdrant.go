package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// pointNamespace is the UUID namespace for deriving point IDs from chunk
// keys. Qdrant point IDs must be UUIDs or integers, so the deterministic
// "{document_id}::{chunk_id}" key is hashed to a UUIDv5 and the raw key is
// kept in the payload.
var pointNamespace = uuid.MustParse("8f2f6b1e-4c5a-4d57-9c1b-2a7d90e3c604")

// QdrantStore implements Store using Qdrant.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore creates a new Qdrant vector store client.
// url should be in format "host:port" (e.g., "localhost:6334")
func NewQdrantStore(ctx context.Context, url, collection string) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		// If no port specified, assume default
		host = url
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{client: client, collection: collection}, nil
}

// Close closes the Qdrant client connection
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// pointID derives the deterministic Qdrant point ID for a chunk key.
func pointID(key ChunkKey) *qdrant.PointId {
	id := uuid.NewSHA1(pointNamespace, []byte(key.String()))
	return qdrant.NewIDUUID(id.String())
}

// EnsureCollection creates the chunk collection if it does not exist yet.
func (s *QdrantStore) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection: %v", ErrUnavailable, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// Upsert inserts or updates chunks in the vector store
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]*qdrant.Value{
			"point_key":   qdrant.NewValueString(chunk.Key.String()),
			"document_id": qdrant.NewValueString(strings.TrimSpace(chunk.Key.DocumentID)),
			"chunk_id":    qdrant.NewValueInt(int64(chunk.Key.ChunkID)),
			"text":        qdrant.NewValueString(chunk.Text),
			"source":      qdrant.NewValueString(chunk.Source),
			"page":        qdrant.NewValueInt(int64(chunk.Page)),
		}
		if chunk.Tags != "" {
			payload["tags"] = qdrant.NewValueString(chunk.Tags)
		}

		points[i] = &qdrant.PointStruct{
			Id:      pointID(chunk.Key),
			Payload: payload,
			Vectors: qdrant.NewVectors(chunk.Vector...),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

// Fetch looks up chunks by deterministic keys. Keys missing from the store
// are silently omitted; results come back in store order.
func (s *QdrantStore) Fetch(ctx context.Context, keys []ChunkKey) ([]StoredChunk, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	ids := make([]*qdrant.PointId, len(keys))
	for i, key := range keys {
		ids[i] = pointID(key)
	}

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            ids,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch points: %v", ErrUnavailable, err)
	}

	chunks := make([]StoredChunk, 0, len(points))
	for _, point := range points {
		chunk, ok := chunkFromPayload(point.GetPayload())
		if !ok {
			// Malformed payload is skipped, never fatal for the batch.
			continue
		}
		if vectors := point.GetVectors(); vectors != nil {
			if v := vectors.GetVector(); v != nil {
				chunk.Vector = v.GetData()
			}
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// Search performs nearest-neighbor search, optionally scoped to one document.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit int, documentID string) ([]StoredChunk, error) {
	query := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	if documentID != "" {
		query.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", strings.TrimSpace(documentID)),
			},
		}
	}

	response, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrUnavailable, err)
	}

	results := make([]StoredChunk, 0, len(response))
	for _, point := range response {
		chunk, ok := chunkFromPayload(point.GetPayload())
		if !ok {
			continue
		}
		chunk.Score = point.GetScore()
		results = append(results, chunk)
	}

	return results, nil
}

// DeleteDocument removes all chunks belonging to a document.
func (s *QdrantStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						qdrant.NewMatch("document_id", strings.TrimSpace(documentID)),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete by document ID: %w", err)
	}

	return nil
}

// chunkFromPayload rebuilds a StoredChunk from a point payload. This is the
// single coercion boundary for externally stored values: chunk ids arrive as
// integers or strings depending on writer, document ids may be absent.
// Records without a document id are dropped; unparseable chunk ids get the
// sentinel id with the raw form preserved.
func chunkFromPayload(payload map[string]*qdrant.Value) (StoredChunk, bool) {
	if payload == nil {
		return StoredChunk{}, false
	}

	docID := strings.TrimSpace(payload["document_id"].GetStringValue())
	if docID == "" {
		return StoredChunk{}, false
	}

	chunk := StoredChunk{
		Key:    ChunkKey{DocumentID: docID, ChunkID: SentinelChunkID},
		Text:   payload["text"].GetStringValue(),
		Source: payload["source"].GetStringValue(),
		Page:   int(payload["page"].GetIntegerValue()),
		Tags:   payload["tags"].GetStringValue(),
	}

	switch v := payload["chunk_id"]; v.GetKind().(type) {
	case *qdrant.Value_IntegerValue:
		chunk.Key.ChunkID = int(v.GetIntegerValue())
		chunk.RawChunkID = strconv.Itoa(chunk.Key.ChunkID)
	case *qdrant.Value_StringValue:
		raw := v.GetStringValue()
		chunk.RawChunkID = strings.TrimSpace(raw)
		if id, ok := ParseChunkID(raw); ok {
			chunk.Key.ChunkID = id
		}
	default:
		chunk.RawChunkID = "unknown"
	}

	return chunk, true
}

// Ensure QdrantStore implements Store
var _ Store = (*QdrantStore)(nil)
