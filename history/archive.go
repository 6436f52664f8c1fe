package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/config"
	"github.com/BaSui01/agentgate/types"
)

// Archive 会话文档归档
type Archive interface {
	Append(ctx context.Context, doc ArchiveDocument) error
	Load(ctx context.Context, threadID, agentName string, limit int) ([]ArchivedMessage, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// MongoArchive 以 MongoDB 存储共享会话历史，一个会话一个文档
type MongoArchive struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoArchive 连接 MongoDB 并验证可达
func NewMongoArchive(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*MongoArchive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	opts := options.Client().
		ApplyURI(cfg.ConnectionURI()).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)
	if cfg.URI == "" && cfg.User != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.User,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	a := &MongoArchive{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		logger: logger.With(zap.String("component", "mongo_archive")),
	}
	if err := a.ensureIndexes(ctx); err != nil {
		a.logger.Warn("create archive indexes failed", zap.Error(err))
	}
	a.logger.Info("mongo archive connected",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection),
	)
	return a, nil
}

func (a *MongoArchive) ensureIndexes(ctx context.Context) error {
	_, err := a.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "agent_name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "updated_at", Value: 1}}},
	})
	return err
}

// Append 追加消息，文档不存在时创建
func (a *MongoArchive) Append(ctx context.Context, doc ArchiveDocument) error {
	if len(doc.Messages) == 0 {
		return nil
	}
	filter, update := appendUpdate(doc, time.Now())
	_, err := a.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return types.NewPersistenceError("archive append", err)
	}
	return nil
}

// appendUpdate 构造 upsert 的过滤条件与更新文档
func appendUpdate(doc ArchiveDocument, now time.Time) (bson.D, bson.D) {
	filter := bson.D{{Key: "thread_id", Value: doc.ThreadID}, {Key: "agent_name", Value: doc.AgentName}}
	set := bson.D{{Key: "updated_at", Value: now}}
	if doc.UserID != "" {
		set = append(set, bson.E{Key: "user_id", Value: doc.UserID})
	}
	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "messages", Value: bson.D{{Key: "$each", Value: doc.Messages}}}}},
		{Key: "$set", Value: set},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: now}}},
	}
	return filter, update
}

// Load 返回会话最后 limit 条消息，limit<=0 返回全部
func (a *MongoArchive) Load(ctx context.Context, threadID, agentName string, limit int) ([]ArchivedMessage, error) {
	filter := bson.D{{Key: "thread_id", Value: threadID}, {Key: "agent_name", Value: agentName}}
	opts := options.FindOne()
	if limit > 0 {
		opts.SetProjection(bson.D{{Key: "messages", Value: bson.D{{Key: "$slice", Value: -limit}}}})
	}
	var doc ArchiveDocument
	err := a.coll.FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewPersistenceError("archive load", err)
	}
	return doc.Messages, nil
}

// DeleteBefore 删除 cutoff 之前未更新的会话文档
func (a *MongoArchive) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := a.coll.DeleteMany(ctx, bson.D{{Key: "updated_at", Value: bson.D{{Key: "$lt", Value: cutoff}}}})
	if err != nil {
		return 0, types.NewPersistenceError("archive cleanup", err)
	}
	return res.DeletedCount, nil
}

// Ping 健康检查
func (a *MongoArchive) Ping(ctx context.Context) error {
	return a.client.Ping(ctx, readpref.Primary())
}

// Close 断开连接
func (a *MongoArchive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
