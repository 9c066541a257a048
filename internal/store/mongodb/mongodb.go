// Package mongodb implements a document-store persistence driver on MongoDB.
//
// Connection records use the pair key as _id, so the unique _id index is what
// rejects the second of two racing requests for the same pair.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

func init() {
	store.Register("mongo", NewDriver)
}

const (
	profilesCollection      = "profiles"
	accountsCollection      = "accounts"
	connectionsCollection   = "connections"
	notificationsCollection = "notifications"

	defaultDatabase       = "campusmesh"
	defaultConnectTimeout = 10 * time.Second
)

// Driver implements store.Store using MongoDB.
type Driver struct {
	cfg    store.MongoConfig
	client *mongo.Client
	db     *mongo.Database
}

// NewDriver creates a new MongoDB driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.Mongo.URI == "" {
		return nil, fmt.Errorf("mongo.uri is required for mongo driver")
	}
	c := cfg.Mongo
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	return &Driver{cfg: c}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "mongo"
}

// Init connects, pings and ensures indexes.
func (d *Driver) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(d.cfg.URI))
	if err != nil {
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping mongodb: %w", err)
	}

	d.client = client
	d.db = client.Database(d.cfg.Database)

	if _, err := d.accounts().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email_key", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create account indexes: %w", err)
	}
	if _, err := d.connections().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_a", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "user_b", Value: 1}, {Key: "status", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create connection indexes: %w", err)
	}
	if _, err := d.notifications().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("failed to create notification indexes: %w", err)
	}

	return nil
}

// Close disconnects the client.
func (d *Driver) Close() error {
	if d.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

// Database exposes the underlying database handle for tests.
func (d *Driver) Database() *mongo.Database {
	return d.db
}

func (d *Driver) profiles() *mongo.Collection      { return d.db.Collection(profilesCollection) }
func (d *Driver) accounts() *mongo.Collection      { return d.db.Collection(accountsCollection) }
func (d *Driver) connections() *mongo.Collection   { return d.db.Collection(connectionsCollection) }
func (d *Driver) notifications() *mongo.Collection { return d.db.Collection(notificationsCollection) }

func mapInsertErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func mapFindErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return err
}

// ProfileStore implementation

func (d *Driver) CreateProfile(ctx context.Context, p *store.Profile) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := d.profiles().InsertOne(ctx, p)
	return mapInsertErr(err)
}

func (d *Driver) GetProfile(ctx context.Context, id string) (*store.Profile, error) {
	var p store.Profile
	if err := d.profiles().FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, mapFindErr(err)
	}
	return &p, nil
}

func (d *Driver) UpdateProfile(ctx context.Context, p *store.Profile) error {
	res, err := d.profiles().UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": bson.M{
		"display_name": p.DisplayName,
		"avatar_url":   p.AvatarURL,
		"affiliation":  p.Affiliation,
		"program":      p.Program,
		"updated_at":   time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *Driver) ListProfiles(ctx context.Context, afterID string, limit int) ([]*store.Profile, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := d.profiles().Find(ctx, bson.M{"_id": bson.M{"$gt": afterID}}, opts)
	if err != nil {
		return nil, err
	}
	var profiles []*store.Profile
	if err := cur.All(ctx, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (d *Driver) AdjustConnectionCount(ctx context.Context, id string, delta int64) error {
	return d.updateProfileCounter(ctx, id, bson.M{"$inc": bson.M{"counters.connections": delta}})
}

func (d *Driver) SetConnectionCount(ctx context.Context, id string, n int64) error {
	return d.updateProfileCounter(ctx, id, bson.M{"$set": bson.M{"counters.connections": n}})
}

func (d *Driver) updateProfileCounter(ctx context.Context, id string, update bson.M) error {
	res, err := d.profiles().UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AccountStore implementation

func (d *Driver) CreateAccount(ctx context.Context, a *store.Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := d.accounts().InsertOne(ctx, a)
	return mapInsertErr(err)
}

func (d *Driver) GetAccount(ctx context.Context, id string) (*store.Account, error) {
	return d.findAccount(ctx, bson.M{"_id": id})
}

func (d *Driver) GetAccountByUsername(ctx context.Context, username string) (*store.Account, error) {
	return d.findAccount(ctx, bson.M{"username": username})
}

func (d *Driver) GetAccountByEmailKey(ctx context.Context, key string) (*store.Account, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	return d.findAccount(ctx, bson.M{"email_key": key})
}

func (d *Driver) findAccount(ctx context.Context, filter bson.M) (*store.Account, error) {
	var a store.Account
	if err := d.accounts().FindOne(ctx, filter).Decode(&a); err != nil {
		return nil, mapFindErr(err)
	}
	return &a, nil
}

func (d *Driver) UpdateAccount(ctx context.Context, a *store.Account) error {
	res, err := d.accounts().UpdateOne(ctx, bson.M{"_id": a.ID}, bson.M{"$set": bson.M{
		"username":      a.Username,
		"email":         a.Email,
		"email_key":     a.EmailKey,
		"display_name":  a.DisplayName,
		"password_hash": a.PasswordHash,
		"role":          a.Role,
	}})
	if err != nil {
		return mapInsertErr(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *Driver) DeleteAccount(ctx context.Context, id string) error {
	res, err := d.accounts().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *Driver) ListAccounts(ctx context.Context) ([]*store.Account, error) {
	cur, err := d.accounts().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var accounts []*store.Account
	if err := cur.All(ctx, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// ConnectionStore implementation

func (d *Driver) CreateConnection(ctx context.Context, rec *store.ConnectionRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	_, err := d.connections().InsertOne(ctx, rec)
	return mapInsertErr(err)
}

func (d *Driver) GetConnection(ctx context.Context, pairKey string) (*store.ConnectionRecord, error) {
	var rec store.ConnectionRecord
	if err := d.connections().FindOne(ctx, bson.M{"_id": pairKey}).Decode(&rec); err != nil {
		return nil, mapFindErr(err)
	}
	return &rec, nil
}

func (d *Driver) UpdateConnectionStatus(ctx context.Context, pairKey string, expect store.Expect, to store.ConnectionStatus) error {
	res, err := d.connections().UpdateOne(ctx,
		expectFilter(pairKey, expect),
		bson.M{"$set": bson.M{"status": string(to), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return d.classifyMiss(ctx, pairKey)
	}
	return nil
}

func (d *Driver) DeleteConnection(ctx context.Context, pairKey string, expect store.Expect) error {
	res, err := d.connections().DeleteOne(ctx, expectFilter(pairKey, expect))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return d.classifyMiss(ctx, pairKey)
	}
	return nil
}

func expectFilter(pairKey string, expect store.Expect) bson.M {
	filter := bson.M{"_id": pairKey, "status": string(expect.Status)}
	if expect.RequesterID != "" {
		filter["requester_id"] = expect.RequesterID
	}
	return filter
}

func (d *Driver) classifyMiss(ctx context.Context, pairKey string) error {
	n, err := d.connections().CountDocuments(ctx, bson.M{"_id": pairKey})
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func (d *Driver) ListConnections(ctx context.Context, userID string, statuses ...store.ConnectionStatus) ([]*store.ConnectionRecord, error) {
	filter := bson.M{"$or": bson.A{bson.M{"user_a": userID}, bson.M{"user_b": userID}}}
	if len(statuses) > 0 {
		values := make(bson.A, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		filter["status"] = bson.M{"$in": values}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := d.connections().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var records []*store.ConnectionRecord
	if err := cur.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// NotificationStore implementation

func (d *Driver) CreateNotification(ctx context.Context, n *store.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := d.notifications().InsertOne(ctx, n)
	return mapInsertErr(err)
}

func (d *Driver) GetNotification(ctx context.Context, recipientID, id string) (*store.Notification, error) {
	var n store.Notification
	if err := d.notifications().FindOne(ctx, bson.M{"_id": id, "recipient_id": recipientID}).Decode(&n); err != nil {
		return nil, mapFindErr(err)
	}
	return &n, nil
}

func (d *Driver) ListNotifications(ctx context.Context, recipientID string, limit int) ([]*store.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := d.notifications().Find(ctx, bson.M{"recipient_id": recipientID}, opts)
	if err != nil {
		return nil, err
	}
	var list []*store.Notification
	if err := cur.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *Driver) MarkNotificationRead(ctx context.Context, recipientID, id string) error {
	return d.setNotificationFlag(ctx, recipientID, id, "is_read")
}

func (d *Driver) MarkNotificationActionDone(ctx context.Context, recipientID, id string) error {
	return d.setNotificationFlag(ctx, recipientID, id, "action_done")
}

func (d *Driver) setNotificationFlag(ctx context.Context, recipientID, id, field string) error {
	res, err := d.notifications().UpdateOne(ctx,
		bson.M{"_id": id, "recipient_id": recipientID},
		bson.M{"$set": bson.M{field: true}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *Driver) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := d.notifications().UpdateMany(ctx,
		bson.M{"recipient_id": recipientID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (d *Driver) DeleteNotification(ctx context.Context, recipientID, id string) error {
	res, err := d.notifications().DeleteOne(ctx, bson.M{"_id": id, "recipient_id": recipientID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *Driver) CountUnreadNotifications(ctx context.Context, recipientID, typ string) (int64, error) {
	filter := bson.M{"recipient_id": recipientID, "is_read": false}
	if typ != "" {
		filter["type"] = typ
	}
	return d.notifications().CountDocuments(ctx, filter)
}

var _ store.Store = (*Driver)(nil)
