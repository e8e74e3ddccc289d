package audit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap/zaptest"

	"qmsgov/internal/config"
	"qmsgov/internal/types"
)

func TestNewMongoRepositoryInvalidURI(t *testing.T) {
	_, err := NewMongoRepository(context.Background(), &config.MongoConfig{
		URI:            "not-a-mongo-uri",
		Database:       "qmsgov",
		Collection:     "audit_logs",
		ConnectTimeout: time.Second,
	}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestEntityFilter(t *testing.T) {
	assert.Equal(t, bson.M{"entity_type": "CHANGE_EVENT", "entity_id": "ce-1"}, entityFilter("CHANGE_EVENT", "ce-1"))
}

func TestEntryDocument(t *testing.T) {
	entry := types.AuditEntry{
		ID:         "a1",
		Action:     types.AuditEmergencyBypass,
		EntityType: "CHANGE_EVENT",
		EntityID:   "ce-1",
		ActorID:    "admin",
		Reason:     "line down",
	}
	raw, err := bson.Marshal(&entry)
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, "a1", doc["_id"])
	assert.Equal(t, "ce-1", doc["entity_id"])
	assert.NotContains(t, doc, "details")
}

// Runs against a live server when QMSGOV_TEST_MONGO_URI is set
func TestMongoRepository(t *testing.T) {
	uri := os.Getenv("QMSGOV_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("QMSGOV_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	repo, err := NewMongoRepository(ctx, &config.MongoConfig{
		URI:            uri,
		Database:       "qmsgov_test",
		Collection:     "audit_" + uuid.NewString()[:8],
		ConnectTimeout: 5 * time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() {
		_ = repo.collection.Drop(ctx)
		_ = repo.Close(ctx)
	}()
	require.NoError(t, repo.Health(ctx))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, action := range []string{types.AuditWorkflowCreated, types.AuditEmergencyBypass} {
		require.NoError(t, repo.Append(ctx, &types.AuditEntry{
			ID:         uuid.NewString(),
			Action:     action,
			EntityType: "CHANGE_EVENT",
			EntityID:   "ce-1",
			ActorID:    "admin",
			Details:    map[string]any{"n": i},
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := repo.ListByEntity(ctx, "CHANGE_EVENT", "ce-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, types.AuditWorkflowCreated, entries[0].Action)
	assert.Equal(t, base.Add(time.Minute), entries[1].CreatedAt)

	entries, err = repo.ListByEntity(ctx, "CHANGE_EVENT", "other")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
