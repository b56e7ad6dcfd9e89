package qdrant

import (
	"context"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ersonp/chronicle/internal/domain/entities"
)

type fakeCollections struct {
	pb.CollectionsClient
	getErr  error
	created *pb.CreateCollection
}

func (f *fakeCollections) Get(_ context.Context, _ *pb.GetCollectionInfoRequest, _ ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &pb.GetCollectionInfoResponse{}, nil
}

func (f *fakeCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.created = in
	return &pb.CollectionOperationResponse{Result: true}, nil
}

type fakePoints struct {
	pb.PointsClient
	upserted *pb.UpsertPoints
	searched *pb.SearchPoints
	deleted  *pb.DeletePoints
	apiKeys  []string
	hits     []*pb.ScoredPoint
}

func (f *fakePoints) record(ctx context.Context) {
	md, _ := metadata.FromOutgoingContext(ctx)
	f.apiKeys = append(f.apiKeys, md.Get("api-key")...)
}

func (f *fakePoints) Upsert(ctx context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.record(ctx)
	f.upserted = in
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(ctx context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	f.record(ctx)
	f.searched = in
	return &pb.SearchResponse{Result: f.hits}, nil
}

func (f *fakePoints) Delete(ctx context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.record(ctx)
	f.deleted = in
	return &pb.PointsOperationResponse{}, nil
}

func TestIndex_EnsureCollection(t *testing.T) {
	tests := []struct {
		name        string
		getErr      error
		wantCreated bool
		wantErr     bool
	}{
		{name: "exists", getErr: nil},
		{name: "missing is created", getErr: status.Error(codes.NotFound, "no collection"), wantCreated: true},
		{name: "other failure", getErr: status.Error(codes.Unavailable, "down"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collections := &fakeCollections{getErr: tt.getErr}
			x := &Index{collections: collections, points: &fakePoints{}, collection: "catalog"}

			err := x.EnsureCollection(context.Background(), 1536)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantCreated {
				require.NotNil(t, collections.created)
				assert.Equal(t, uint64(1536), collections.created.GetVectorsConfig().GetParams().GetSize())
			} else {
				assert.Nil(t, collections.created)
			}
		})
	}
}

func TestIndex_UpsertSearchDelete(t *testing.T) {
	points := &fakePoints{
		hits: []*pb.ScoredPoint{
			{
				Id:    pointID("p-1"),
				Score: 0.91,
				Payload: map[string]*pb.Value{
					keyEntityType: stringValue("PERSON"),
					keyLabel:      stringValue("Ada Lovelace"),
					keySummary:    stringValue("PERSON: Ada Lovelace"),
				},
			},
		},
	}
	x := &Index{collections: &fakeCollections{}, points: points, collection: "catalog", apiKey: "secret"}
	ctx := context.Background()

	err := x.Upsert(ctx, entities.IndexedEntity{
		ID:         "p-1",
		EntityType: entities.EntityPerson,
		Label:      "Ada Lovelace",
		Summary:    "PERSON: Ada Lovelace",
		Embedding:  []float32{0.1, 0.2},
	})
	require.NoError(t, err)
	require.Len(t, points.upserted.GetPoints(), 1)
	point := points.upserted.GetPoints()[0]
	assert.Equal(t, "p-1", point.GetId().GetUuid())
	assert.Equal(t, "PERSON", point.GetPayload()[keyEntityType].GetStringValue())

	hits, err := x.Search(ctx, []float32{0.1, 0.2}, entities.EntityPerson, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, entities.SimilarEntity{
		ID:         "p-1",
		EntityType: entities.EntityPerson,
		Label:      "Ada Lovelace",
		Summary:    "PERSON: Ada Lovelace",
		Score:      0.91,
	}, hits[0])
	assert.Equal(t, uint64(5), points.searched.GetLimit())
	cond := points.searched.GetFilter().GetMust()[0].GetField()
	assert.Equal(t, keyEntityType, cond.GetKey())
	assert.Equal(t, "PERSON", cond.GetMatch().GetKeyword())

	require.NoError(t, x.Delete(ctx, "p-1"))
	assert.Equal(t, "p-1", points.deleted.GetPoints().GetPoints().GetIds()[0].GetUuid())

	assert.Equal(t, []string{"secret", "secret", "secret"}, points.apiKeys)
}

func TestScoredPointsToSimilar_Empty(t *testing.T) {
	assert.Empty(t, scoredPointsToSimilar(nil))
	assert.Equal(t, "", getStringValue(nil, keyLabel))
}
