package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type cartDocument struct {
	SessionID string         `bson:"session_id"`
	Lines     []lineDocument `bson:"lines"`
	Version   int64          `bson:"version"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

type lineDocument struct {
	ItemID    string `bson:"item_id"`
	Name      string `bson:"name"`
	UnitPrice string `bson:"unit_price"`
	Quantity  int    `bson:"quantity"`
}

// MongoStorage keeps one document per session in the carts collection. A
// version field guards read-modify-write cycles.
type MongoStorage struct {
	collection *mongo.Collection
}

func NewMongoStorage(db *mongo.Database) *MongoStorage {
	return &MongoStorage{
		collection: db.Collection("carts"),
	}
}

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

func (m *MongoStorage) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(7 * 24 * 60 * 60),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func (m *MongoStorage) Load(ctx context.Context, sessionID string) (*domain.Cart, error) {
	doc, err := m.find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return domain.NewCart(sessionID), nil
	}
	return doc.toCart()
}

func (m *MongoStorage) Update(ctx context.Context, sessionID string, fn func(*domain.Cart) error) (*domain.Cart, error) {
	for i := 0; i < maxUpdateRetries; i++ {
		doc, err := m.find(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		current := domain.NewCart(sessionID)
		if doc != nil {
			if current, err = doc.toCart(); err != nil {
				return nil, err
			}
		}
		if err := fn(current); err != nil {
			return nil, err
		}
		now := time.Now()
		current.UpdatedAt = now

		if doc == nil {
			next := fromCart(current, 1)
			next.CreatedAt = now
			if _, err := m.collection.InsertOne(ctx, next); err != nil {
				if mongo.IsDuplicateKeyError(err) {
					continue
				}
				return nil, fmt.Errorf("failed to create cart: %w", err)
			}
			return current, nil
		}

		filter := bson.M{"session_id": sessionID, "version": doc.Version}
		update := bson.M{
			"$set": bson.M{
				"lines":      fromCart(current, 0).Lines,
				"updated_at": now,
			},
			"$inc": bson.M{"version": 1},
		}
		res, err := m.collection.UpdateOne(ctx, filter, update)
		if err != nil {
			return nil, fmt.Errorf("failed to update cart: %w", err)
		}
		if res.MatchedCount == 0 {
			continue
		}
		return current, nil
	}
	return nil, ErrConflict
}

// Delete is a no-op for sessions without a cart.
func (m *MongoStorage) Delete(ctx context.Context, sessionID string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"session_id": sessionID}); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

func (m *MongoStorage) find(ctx context.Context, sessionID string) (*cartDocument, error) {
	var doc cartDocument
	err := m.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &doc, nil
}

func (d *cartDocument) toCart() (*domain.Cart, error) {
	c := domain.NewCart(d.SessionID)
	c.UpdatedAt = d.UpdatedAt
	for _, l := range d.Lines {
		price, err := money.Parse(l.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("cart %s line %s: %w", d.SessionID, l.ItemID, err)
		}
		c.Lines = append(c.Lines, domain.CartLine{
			ItemID:    l.ItemID,
			Name:      l.Name,
			UnitPrice: price,
			Quantity:  l.Quantity,
		})
	}
	return c, nil
}

func fromCart(c *domain.Cart, version int64) *cartDocument {
	doc := &cartDocument{
		SessionID: c.SessionID,
		Lines:     make([]lineDocument, 0, len(c.Lines)),
		Version:   version,
		UpdatedAt: c.UpdatedAt,
	}
	for _, l := range c.Lines {
		doc.Lines = append(doc.Lines, lineDocument{
			ItemID:    l.ItemID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice.String(),
			Quantity:  l.Quantity,
		})
	}
	return doc
}
