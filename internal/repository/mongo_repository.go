package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type cartDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	Items     []lineItemDocument `bson:"items"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

type lineItemDocument struct {
	ProductID       string               `bson:"product_id"`
	Name            string               `bson:"name"`
	Image           string               `bson:"image"`
	UnitPrice       primitive.Decimal128 `bson:"unit_price"`
	DiscountPercent float64              `bson:"discount_percent"`
	Quantity        int                  `bson:"quantity"`
	InStock         int                  `bson:"in_stock"`
	Slug            string               `bson:"slug"`
}

type MongoRepository struct {
	collection *mongo.Collection
	retention  time.Duration
}

// NewMongoRepository stores one document per user in the "carts" collection.
// A positive retention expires carts that were not updated for that long.
func NewMongoRepository(db *mongo.Database, retention time.Duration) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
		retention:  retention,
	}
}

func (m *MongoRepository) Get(ctx context.Context, userID string) ([]domain.LineItem, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	items := make([]domain.LineItem, 0, len(doc.Items))
	for _, d := range doc.Items {
		item, err := fromDocument(d)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (m *MongoRepository) Put(ctx context.Context, userID string, items []domain.LineItem) error {
	now := time.Now()

	docs := make([]lineItemDocument, 0, len(items))
	for _, item := range items {
		d, err := toDocument(item)
		if err != nil {
			return err
		}
		docs = append(docs, d)
	}

	filter := bson.M{"user_id": userID}
	update := bson.M{
		"$set":         bson.M{"items": docs, "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if m.retention > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(m.retention.Seconds())),
		})
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func toDocument(item domain.LineItem) (lineItemDocument, error) {
	price, err := primitive.ParseDecimal128(item.UnitPrice.String())
	if err != nil {
		return lineItemDocument{}, fmt.Errorf("failed to convert price of %s: %w", item.ProductID, err)
	}
	return lineItemDocument{
		ProductID:       item.ProductID,
		Name:            item.Name,
		Image:           item.Image,
		UnitPrice:       price,
		DiscountPercent: item.DiscountPercent,
		Quantity:        item.Quantity,
		InStock:         item.Stock.InStock,
		Slug:            item.Stock.Slug,
	}, nil
}

func fromDocument(d lineItemDocument) (domain.LineItem, error) {
	price, err := decimal.NewFromString(d.UnitPrice.String())
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("failed to read price of %s: %w", d.ProductID, err)
	}
	return domain.LineItem{
		ProductID:       d.ProductID,
		Name:            d.Name,
		Image:           d.Image,
		UnitPrice:       price,
		DiscountPercent: d.DiscountPercent,
		Quantity:        d.Quantity,
		Stock:           domain.StockSnapshot{InStock: d.InStock, Slug: d.Slug},
	}, nil
}
