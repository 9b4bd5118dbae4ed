package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"paybox/config"
	"paybox/entity"
	"paybox/services"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionLog           = "payment_log"
	collectionOrders        = "orders"
	collectionSubscriptions = "subscriptions"
	collectionNotifications = "notifications"
)

type orderNote struct {
	Time time.Time `bson:"time"`
	Text string    `bson:"text"`
}

type metaDocument struct {
	Meta map[string]string `bson:"meta"`
}

type MongoDB struct {
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
	return client, nil
}

func (m *MongoDB) connect(ctx context.Context) (*mongo.Client, error) {
	connection, err := mongo.Connect(ctx, m.clientOptions)
	if err != nil {
		return nil, err
	}
	return connection, nil
}

func (m *MongoDB) disconnect(ctx context.Context, connection *mongo.Client) {
	err := connection.Disconnect(ctx)
	if err != nil {
		log.Println("mongodb disconnect error", err)
	}
}

func (m *MongoDB) WriteLogMessage(data services.Data) error {
	ctx := context.Background()
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)
	collection := connection.Database(m.database).Collection(collectionLog)
	_, err = collection.InsertOne(ctx, data)
	return err
}

func (m *MongoDB) SaveNotification(ctx context.Context, notification *entity.Notification) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionNotifications)
	_, err = collection.InsertOne(ctx, notification)
	return err
}

func (m *MongoDB) GetOrder(ctx context.Context, orderId string) (*entity.Order, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{"order_id", orderId}}
	collection := connection.Database(m.database).Collection(collectionOrders)
	var order entity.Order
	if err = collection.FindOne(ctx, filter).Decode(&order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus changes the status only while it still equals "from".
func (m *MongoDB) UpdateOrderStatus(ctx context.Context, orderId, from, to, note string) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionOrders)
	filter := bson.D{{"order_id", orderId}, {"status", from}}
	update := bson.D{
		{"$set", bson.D{
			{"status", to},
			{"time_updated", time.Now()},
		}},
		{"$push", bson.D{
			{"notes", orderNote{Time: time.Now(), Text: note}},
		}},
	}
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("order %s: %w", orderId, services.ErrStatusChanged)
	}
	return nil
}

func (m *MongoDB) AddOrderNote(ctx context.Context, orderId, note string) error {
	update := bson.D{
		{"$push", bson.D{
			{"notes", orderNote{Time: time.Now(), Text: note}},
		}},
	}
	return m.updateOne(ctx, collectionOrders, bson.D{{"order_id", orderId}}, update)
}

func (m *MongoDB) GetOrderMeta(ctx context.Context, orderId, key string) (string, error) {
	return m.getMeta(ctx, collectionOrders, bson.D{{"order_id", orderId}}, key)
}

func (m *MongoDB) SetOrderMeta(ctx context.Context, orderId, key, value string) error {
	update := bson.D{{"$set", bson.D{{"meta." + key, value}}}}
	return m.updateOne(ctx, collectionOrders, bson.D{{"order_id", orderId}}, update)
}

func (m *MongoDB) GetSubscription(ctx context.Context, subscriptionId string) (*entity.Subscription, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{"subscription_id", subscriptionId}}
	collection := connection.Database(m.database).Collection(collectionSubscriptions)
	var subscription entity.Subscription
	if err = collection.FindOne(ctx, filter).Decode(&subscription); err != nil {
		return nil, err
	}
	return &subscription, nil
}

// GetSubscriptionsForOrder finds subscriptions of a parent order, or the
// renewed subscription of a renewal order.
func (m *MongoDB) GetSubscriptionsForOrder(ctx context.Context, orderId string) ([]*entity.Subscription, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	database := connection.Database(m.database)
	filter := bson.D{{"parent_order_id", orderId}}

	var order entity.Order
	err = database.Collection(collectionOrders).FindOne(ctx, bson.D{{"order_id", orderId}}).Decode(&order)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	if order.RenewalOf != "" {
		filter = bson.D{{"subscription_id", order.RenewalOf}}
	}

	opt := options.Find().SetSort(bson.D{{"subscription_id", 1}})
	cursor, err := database.Collection(collectionSubscriptions).Find(ctx, filter, opt)
	if err != nil {
		return nil, err
	}
	var subscriptions []*entity.Subscription
	if err = cursor.All(ctx, &subscriptions); err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (m *MongoDB) UpdateSubscriptionStatus(ctx context.Context, subscriptionId, status string) error {
	update := bson.D{
		{"$set", bson.D{
			{"status", status},
			{"time_updated", time.Now()},
		}},
	}
	return m.updateOne(ctx, collectionSubscriptions, bson.D{{"subscription_id", subscriptionId}}, update)
}

func (m *MongoDB) GetSubscriptionMeta(ctx context.Context, subscriptionId, key string) (string, error) {
	return m.getMeta(ctx, collectionSubscriptions, bson.D{{"subscription_id", subscriptionId}}, key)
}

func (m *MongoDB) SetSubscriptionMeta(ctx context.Context, subscriptionId, key, value string) error {
	update := bson.D{{"$set", bson.D{{"meta." + key, value}}}}
	return m.updateOne(ctx, collectionSubscriptions, bson.D{{"subscription_id", subscriptionId}}, update)
}

func (m *MongoDB) DeleteSubscriptionMeta(ctx context.Context, subscriptionId, key string) error {
	update := bson.D{{"$unset", bson.D{{"meta." + key, ""}}}}
	return m.updateOne(ctx, collectionSubscriptions, bson.D{{"subscription_id", subscriptionId}}, update)
}

// getMeta reads one metadata value; a missing key reads as empty.
func (m *MongoDB) getMeta(ctx context.Context, collectionName string, filter bson.D, key string) (string, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return "", err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionName)
	opt := options.FindOne().SetProjection(bson.D{{"meta." + key, 1}})
	var document metaDocument
	if err = collection.FindOne(ctx, filter, opt).Decode(&document); err != nil {
		return "", err
	}
	return document.Meta[key], nil
}

func (m *MongoDB) updateOne(ctx context.Context, collectionName string, filter, update bson.D) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionName)
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
