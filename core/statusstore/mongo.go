package statusstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/longkeyy/datax-synctrack/common/protocol"
	"github.com/longkeyy/datax-synctrack/core/streamstatus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore stores one document per stream status.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ streamstatus.Store = (*MongoStore)(nil)

// NewMongoStore connects to uri and checks the connection.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if uri == "" || database == "" {
		return nil, fmt.Errorf("mongo status store requires uri and database")
	}
	if collection == "" {
		collection = "stream_statuses"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	// 测试连接
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (m *MongoStore) CreateStatus(ctx context.Context, rc streamstatus.ReplicationContext, stream protocol.StreamKey, transitionedAt time.Time) (string, error) {
	rec := newRecord(uuid.NewString(), rc, stream, transitionedAt)
	doc := bson.M{
		"_id":             rec.ID,
		"workspaceId":     rec.WorkspaceID,
		"connectionId":    rec.ConnectionID,
		"jobId":           rec.JobID,
		"attemptNumber":   rec.AttemptNumber,
		"jobType":         string(rec.JobType),
		"streamName":      rec.StreamName,
		"streamNamespace": rec.StreamNamespace,
		"runState":        string(rec.RunState),
		"transitionedAt":  rec.TransitionedAt,
		"createdAt":       time.Now(),
	}
	if _, err := m.collection.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to insert stream status: %w", err)
	}
	return rec.ID, nil
}

func (m *MongoStore) UpdateStatus(ctx context.Context, update streamstatus.StatusUpdate) error {
	set := bson.M{
		"runState":        string(update.RunState),
		"incompleteCause": string(update.IncompleteCause),
		"transitionedAt":  update.TransitionedAt,
		"updatedAt":       time.Now(),
		"quotaReset":      nil,
	}
	if update.RateLimit != nil && update.RateLimit.QuotaReset != nil {
		set["quotaReset"] = *update.RateLimit.QuotaReset
	}

	result, err := m.collection.UpdateOne(ctx, bson.M{"_id": update.ID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update stream status %s: %w", update.ID, err)
	}
	if result.MatchedCount == 0 {
		return ErrStatusNotFound
	}
	return nil
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
