package repository

import (
	"context"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/service"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoRepository struct {
	client   *mongo.Client
	database *mongo.Database
	config   *config.MongoDBConfig
}

func NewMongoRepository(cfg *config.MongoDBConfig) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}

	return &MongoRepository{
		client:   client,
		database: client.Database(cfg.Database),
		config:   cfg,
	}, nil
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// PaymentAudit records what the reconciler saw and did for an order:
// webhook receipts, rejected signatures, disparity outcomes, stock
// consistency failures. Operators use it to investigate orphaned orders.
type PaymentAudit struct {
	ID        string    `bson:"_id,omitempty"`
	Action    string    `bson:"action"`
	OrderID   string    `bson:"order_id,omitempty"`
	PaymentID string    `bson:"payment_id,omitempty"`
	Data      bson.M    `bson:"data,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

func (m *MongoRepository) RecordPaymentAudit(ctx context.Context, action, orderID, paymentID string, data map[string]interface{}) error {
	collection := m.database.Collection(m.config.Collection)
	audit := &PaymentAudit{
		Action:    action,
		OrderID:   orderID,
		PaymentID: paymentID,
		Data:      bson.M(data),
		CreatedAt: time.Now(),
	}
	_, err := collection.InsertOne(ctx, audit)
	return err
}

var _ service.Auditor = (*MongoRepository)(nil)

func (m *MongoRepository) GetPaymentAudits(ctx context.Context, orderID string, limit int64) ([]*PaymentAudit, error) {
	collection := m.database.Collection(m.config.Collection)

	filter := bson.M{"order_id": orderID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var audits []*PaymentAudit
	if err = cursor.All(ctx, &audits); err != nil {
		return nil, err
	}

	return audits, nil
}
