package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/srikarpolisetty-svg/supreme-stockequity-trading-bot/orchestrator"
)

// MongoDB database and collection names
const (
	MongoDBName         = "equity_pipeline"
	MongoRunsCollection = "batch_runs"
)

// RunArchive mirrors finished run documents to MongoDB Atlas for long-term
// inspection, independent of the local bookkeeping database's retention.
type RunArchive struct {
	client      *mongo.Client
	database    *mongo.Database
	mu          sync.RWMutex
	isConnected bool
	uriSet      bool
	lastError   string
}

// MongoRunDocument is the archived form of one batch run
type MongoRunDocument struct {
	RunID      string          `bson:"_id"`
	Variant    string          `bson:"variant"`
	ShardCount int             `bson:"shard_count"`
	CommitHash string          `bson:"commit_hash,omitempty"`
	StartedAt  time.Time       `bson:"started_at"`
	DurationMS int64           `bson:"duration_ms"`
	IngestExit int             `bson:"ingest_exit"`
	Shards     []MongoShardDoc `bson:"shards"`
	ArchivedAt time.Time       `bson:"archived_at"`
}

// MongoShardDoc is one shard outcome inside an archived run
type MongoShardDoc struct {
	Index    int    `bson:"index"`
	ClientID int    `bson:"client_id,omitempty"`
	PID      int    `bson:"pid"`
	ExitCode int    `bson:"exit_code"`
	LogPath  string `bson:"log_path"`
}

// Global run archive instance
var GlobalRunArchive *RunArchive

// InitRunArchive initializes the MongoDB run archive. Archiving is optional;
// without MONGODB_URI the archive stays disabled and every call is a no-op.
func InitRunArchive() error {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		log.Println("MONGODB_URI not set, run archive disabled")
		GlobalRunArchive = &RunArchive{
			uriSet:    false,
			lastError: "MONGODB_URI environment variable not set",
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		GlobalRunArchive = &RunArchive{uriSet: true, lastError: err.Error()}
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		GlobalRunArchive = &RunArchive{uriSet: true, lastError: err.Error()}
		return fmt.Errorf("MongoDB ping failed: %w", err)
	}

	GlobalRunArchive = &RunArchive{
		client:      client,
		database:    client.Database(MongoDBName),
		isConnected: true,
		uriSet:      true,
	}
	log.Println("MongoDB run archive connected")
	return nil
}

// Enabled reports whether the archive has a live connection
func (a *RunArchive) Enabled() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.isConnected
}

// ArchiveRun upserts one finished run document keyed by run id
func (a *RunArchive) ArchiveRun(result *orchestrator.RunResult, commitHash string) error {
	if !a.Enabled() {
		return nil
	}

	doc := MongoRunDocument{
		RunID:      result.RunID,
		Variant:    result.Variant,
		ShardCount: result.ShardCount,
		CommitHash: commitHash,
		StartedAt:  result.Started,
		DurationMS: result.Duration.Milliseconds(),
		IngestExit: result.IngestExit,
		ArchivedAt: time.Now(),
	}
	for _, s := range result.Shards {
		doc.Shards = append(doc.Shards, MongoShardDoc{
			Index:    s.Index,
			ClientID: s.ClientID,
			PID:      s.PID,
			ExitCode: s.ExitCode,
			LogPath:  s.LogPath,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	coll := a.database.Collection(MongoRunsCollection)
	_, err := coll.ReplaceOne(ctx,
		bson.M{"_id": doc.RunID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to archive run %s: %w", result.RunID, err)
	}
	return nil
}

// Close disconnects the archive client
func (a *RunArchive) Close() {
	if a == nil || a.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		log.Printf("Error disconnecting MongoDB: %v", err)
	}
}
