// Package qdrant provides the similarity index backed by Qdrant.
package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/infrastructure/config"
)

// Payload keys stored with every point.
const (
	keyEntityType = "entity_type"
	keyLabel      = "label"
	keySummary    = "summary"
)

// Index implements ports.VectorIndex and ports.CollectionManager. Points
// are keyed by catalog record id.
type Index struct {
	collections pb.CollectionsClient
	points      pb.PointsClient
	collection  string
	apiKey      string
	conn        *grpc.ClientConn
}

// NewIndex dials Qdrant. The connection is established lazily on first use.
func NewIndex(cfg config.QdrantConfig) (*Index, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	return &Index{
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		collection:  cfg.CollectionName(),
		apiKey:      cfg.APIKey,
		conn:        conn,
	}, nil
}

// Close closes the gRPC connection.
func (x *Index) Close() error {
	if x.conn != nil {
		return x.conn.Close()
	}
	return nil
}

func (x *Index) withKey(ctx context.Context) context.Context {
	if x.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", x.apiKey)
}

// EnsureCollection creates the collection if it doesn't exist.
func (x *Index) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	ctx = x.withKey(ctx)
	_, err := x.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: x.collection})
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("getting collection %s: %w", x.collection, err)
	}

	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", x.collection, err)
	}
	return nil
}

// DeleteCollection drops the collection and every point in it.
func (x *Index) DeleteCollection(ctx context.Context) error {
	_, err := x.collections.Delete(x.withKey(ctx), &pb.DeleteCollection{CollectionName: x.collection})
	if err != nil {
		return fmt.Errorf("deleting collection %s: %w", x.collection, err)
	}
	return nil
}

// Upsert stores or replaces the embedding of one record.
func (x *Index) Upsert(ctx context.Context, doc entities.IndexedEntity) error {
	point := &pb.PointStruct{
		Id: pointID(doc.ID),
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: doc.Embedding},
			},
		},
		Payload: map[string]*pb.Value{
			keyEntityType: stringValue(string(doc.EntityType)),
			keyLabel:      stringValue(doc.Label),
			keySummary:    stringValue(doc.Summary),
		},
	}

	_, err := x.points.Upsert(x.withKey(ctx), &pb.UpsertPoints{
		CollectionName: x.collection,
		Wait:           pb.PtrOf(true),
		Points:         []*pb.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("upserting %s: %w", doc.ID, err)
	}
	return nil
}

// Search returns the records of type t closest to embedding.
func (x *Index) Search(ctx context.Context, embedding []float32, t entities.EntityType, limit int) ([]entities.SimilarEntity, error) {
	resp, err := x.points.Search(x.withKey(ctx), &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		Filter: &pb.Filter{
			Must: []*pb.Condition{
				{
					ConditionOneOf: &pb.Condition_Field{
						Field: &pb.FieldCondition{
							Key: keyEntityType,
							Match: &pb.Match{
								MatchValue: &pb.Match_Keyword{Keyword: string(t)},
							},
						},
					},
				},
			},
		},
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("searching points: %w", err)
	}

	return scoredPointsToSimilar(resp.GetResult()), nil
}

// Delete removes a record from the index. Unknown ids are not an error.
func (x *Index) Delete(ctx context.Context, id string) error {
	_, err := x.points.Delete(x.withKey(ctx), &pb.DeletePoints{
		CollectionName: x.collection,
		Wait:           pb.PtrOf(true),
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{pointID(id)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting point %s: %w", id, err)
	}
	return nil
}

func pointID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

// scoredPointsToSimilar converts search hits to domain results.
func scoredPointsToSimilar(points []*pb.ScoredPoint) []entities.SimilarEntity {
	out := make([]entities.SimilarEntity, 0, len(points))
	for _, point := range points {
		payload := point.GetPayload()
		out = append(out, entities.SimilarEntity{
			ID:         point.GetId().GetUuid(),
			EntityType: entities.EntityType(getStringValue(payload, keyEntityType)),
			Label:      getStringValue(payload, keyLabel),
			Summary:    getStringValue(payload, keySummary),
			Score:      point.GetScore(),
		})
	}
	return out
}

func getStringValue(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}
