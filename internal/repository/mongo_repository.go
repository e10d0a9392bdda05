package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cskovec22/test-sarafan/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	writeConflictCode = 112
	outboxCounterID   = "cart_outbox"
)

type MongoStore struct {
	*mongoRepository
	db *mongo.Database
}

// mongoRepository binds every operation to sess when it runs inside a
// transaction. Resolving the cart inside a transaction writes the cart
// document, so two transactions on the same cart always conflict and one of
// them is aborted.
type mongoRepository struct {
	carts    *mongo.Collection
	lines    *mongo.Collection
	outbox   *mongo.Collection
	counters *mongo.Collection
	sess     mongo.Session
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		mongoRepository: &mongoRepository{
			carts:    db.Collection("carts"),
			lines:    db.Collection("cart_lines"),
			outbox:   db.Collection("cart_outbox"),
			counters: db.Collection("counters"),
		},
		db: db,
	}
}

func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	_, err := m.carts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "owner", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}

	_, err = m.lines.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "cart_id", Value: 1}, {Key: "product_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create cart line indexes: %w", err)
	}

	_, err = m.outbox.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "published", Value: 1}, {Key: "seq", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create outbox indexes: %w", err)
	}

	return nil
}

func (m *MongoStore) WithinTx(ctx context.Context, fn func(repo CartRepository) error) error {
	sess, err := m.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := sess.StartTransaction(txOpts); err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	tx := &mongoRepository{
		carts:    m.carts,
		lines:    m.lines,
		outbox:   m.outbox,
		counters: m.counters,
		sess:     sess,
	}
	if err := fn(tx); err != nil {
		_ = sess.AbortTransaction(context.WithoutCancel(ctx))
		return err
	}

	if err := sess.CommitTransaction(ctx); err != nil {
		return mongoError("commit transaction", err)
	}
	return nil
}

func (m *MongoStore) Ping(ctx context.Context) error {
	return m.db.Client().Ping(ctx, nil)
}

func (m *MongoStore) Close() error {
	return m.db.Client().Disconnect(context.Background())
}

func (r *mongoRepository) bind(ctx context.Context) context.Context {
	if r.sess == nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, r.sess)
}

func (r *mongoRepository) GetOrCreateCart(ctx context.Context, owner string) (*domain.Cart, error) {
	now := time.Now().UTC()
	filter := bson.M{"owner": owner}
	update := bson.M{
		"$setOnInsert": bson.M{"_id": uuid.NewString(), "created_at": now},
		"$set":         bson.M{"updated_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var cart domain.Cart
	if err := r.carts.FindOneAndUpdate(r.bind(ctx), filter, update, opts).Decode(&cart); err != nil {
		return nil, mongoError("failed to upsert cart", err)
	}
	return &cart, nil
}

func (r *mongoRepository) FindCart(ctx context.Context, owner string) (*domain.Cart, error) {
	filter := bson.M{"owner": owner}

	var res *mongo.SingleResult
	if r.sess != nil {
		update := bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		res = r.carts.FindOneAndUpdate(r.bind(ctx), filter, update, opts)
	} else {
		res = r.carts.FindOne(ctx, filter)
	}

	var cart domain.Cart
	if err := res.Decode(&cart); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, mongoError("failed to get cart", err)
	}
	return &cart, nil
}

func (r *mongoRepository) GetOrCreateLine(ctx context.Context, cartID string, productID int64) (*domain.CartLine, bool, error) {
	line, err := r.FindLine(ctx, cartID, productID)
	if err == nil {
		return line, false, nil
	}
	if !errors.Is(err, ErrLineNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	line = &domain.CartLine{
		ID:        uuid.NewString(),
		CartID:    cartID,
		ProductID: productID,
		Quantity:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.lines.InsertOne(r.bind(ctx), line); err != nil {
		return nil, false, mongoError("failed to insert cart line", err)
	}
	return line, true, nil
}

func (r *mongoRepository) FindLine(ctx context.Context, cartID string, productID int64) (*domain.CartLine, error) {
	filter := bson.M{"cart_id": cartID, "product_id": productID}

	var line domain.CartLine
	if err := r.lines.FindOne(r.bind(ctx), filter).Decode(&line); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrLineNotFound
		}
		return nil, mongoError("failed to get cart line", err)
	}
	return &line, nil
}

func (r *mongoRepository) SaveLine(ctx context.Context, line *domain.CartLine) error {
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{"quantity": line.Quantity, "updated_at": now}}

	result, err := r.lines.UpdateOne(r.bind(ctx), bson.M{"_id": line.ID}, update)
	if err != nil {
		return mongoError("failed to update cart line", err)
	}
	if result.MatchedCount == 0 {
		return ErrLineNotFound
	}
	line.UpdatedAt = now
	return nil
}

func (r *mongoRepository) DeleteLine(ctx context.Context, line *domain.CartLine) error {
	result, err := r.lines.DeleteOne(r.bind(ctx), bson.M{"_id": line.ID})
	if err != nil {
		return mongoError("failed to delete cart line", err)
	}
	if result.DeletedCount == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *mongoRepository) ListLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	opts := options.Find().SetSort(bson.D{{Key: "product_id", Value: 1}})
	ctx = r.bind(ctx)

	cursor, err := r.lines.Find(ctx, bson.M{"cart_id": cartID}, opts)
	if err != nil {
		return nil, mongoError("failed to list cart lines", err)
	}

	lines := []domain.CartLine{}
	if err := cursor.All(ctx, &lines); err != nil {
		return nil, mongoError("failed to decode cart lines", err)
	}
	return lines, nil
}

func (r *mongoRepository) DeleteAllLines(ctx context.Context, cartID string) (int64, error) {
	result, err := r.lines.DeleteMany(r.bind(ctx), bson.M{"cart_id": cartID})
	if err != nil {
		return 0, mongoError("failed to delete cart lines", err)
	}
	return result.DeletedCount, nil
}

// RecordEvent stamps the event with the next outbox sequence number. The
// counter is bumped outside the session so transactions of different carts
// never conflict on it; two transactions of one cart cannot both be past the
// cart write, so per-owner sequence order is commit order.
func (r *mongoRepository) RecordEvent(ctx context.Context, event *domain.CartEvent) error {
	seq, err := r.nextSeq(ctx)
	if err != nil {
		return err
	}

	doc := *event
	doc.Published = false
	doc.Seq = seq
	if _, err := r.outbox.InsertOne(r.bind(ctx), doc); err != nil {
		return mongoError("failed to insert outbox event", err)
	}
	return nil
}

func (r *mongoRepository) nextSeq(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	update := bson.M{"$inc": bson.M{"seq": int64(1)}}

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx, bson.M{"_id": outboxCounterID}, update, opts).Decode(&counter)
	if err != nil {
		return 0, mongoError("failed to allocate outbox sequence", err)
	}
	return counter.Seq, nil
}

func (r *mongoRepository) GetUnpublishedEvents(ctx context.Context, limit int) ([]*domain.CartEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.outbox.Find(ctx, bson.M{"published": false}, opts)
	if err != nil {
		return nil, mongoError("failed to query outbox events", err)
	}

	var events []*domain.CartEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, mongoError("failed to decode outbox events", err)
	}
	return events, nil
}

func (r *mongoRepository) MarkEventPublished(ctx context.Context, id string) error {
	update := bson.M{"$set": bson.M{"published": true, "published_at": time.Now().UTC()}}
	if _, err := r.outbox.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return mongoError("failed to mark outbox event published", err)
	}
	return nil
}

func mongoError(op string, err error) error {
	if isMongoConflict(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isMongoConflict(err error) bool {
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorCode(writeConflictCode) || se.HasErrorLabel("TransientTransactionError")
	}
	return false
}
