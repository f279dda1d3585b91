package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/service"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const retention = 30 * 24 * time.Hour

type deliveryDocument struct {
	EventID     string    `bson:"event_id"`
	Kind        string    `bson:"kind,omitempty"`
	PaymentID   string    `bson:"payment_id,omitempty"`
	SessionID   string    `bson:"session_id,omitempty"`
	State       string    `bson:"state"`
	OrderID     string    `bson:"order_id,omitempty"`
	Error       string    `bson:"error,omitempty"`
	ReceivedAt  time.Time `bson:"received_at"`
	CompletedAt time.Time `bson:"completed_at"`
}

// MongoJournal appends one document per webhook delivery, successful or not.
type MongoJournal struct {
	collection *mongo.Collection
}

func NewMongoJournal(db *mongo.Database) *MongoJournal {
	return &MongoJournal{
		collection: db.Collection("payment_deliveries"),
	}
}

func (j *MongoJournal) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "payment_id", Value: 1}, {Key: "received_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "event_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "received_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention.Seconds())),
		},
	}

	_, err := j.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func (j *MongoJournal) Record(ctx context.Context, rec *service.DeliveryRecord) error {
	doc := deliveryDocument{
		EventID:     rec.EventID,
		Kind:        rec.Kind,
		PaymentID:   rec.PaymentID,
		SessionID:   rec.SessionID,
		State:       rec.State.String(),
		OrderID:     rec.OrderID,
		Error:       rec.Error,
		ReceivedAt:  rec.ReceivedAt.UTC(),
		CompletedAt: rec.CompletedAt.UTC(),
	}
	if _, err := j.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// ListByPaymentID returns every delivery seen for a payment, oldest first.
func (j *MongoJournal) ListByPaymentID(ctx context.Context, paymentID string) ([]*service.DeliveryRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: 1}})
	cursor, err := j.collection.Find(ctx, bson.M{"payment_id": paymentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []deliveryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode deliveries: %w", err)
	}

	records := make([]*service.DeliveryRecord, len(docs))
	for i, d := range docs {
		records[i] = &service.DeliveryRecord{
			EventID:     d.EventID,
			Kind:        d.Kind,
			PaymentID:   d.PaymentID,
			SessionID:   d.SessionID,
			State:       service.State(d.State),
			OrderID:     d.OrderID,
			Error:       d.Error,
			ReceivedAt:  d.ReceivedAt,
			CompletedAt: d.CompletedAt,
		}
	}
	return records, nil
}
