package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/mmeshcher/bloodbank-system/internal/model"
)

const (
	usersCollection         = "users"
	requestsCollection      = "requests"
	campsCollection         = "blood_camps"
	campDonationsCollection = "camp_donations"
)

// MongoRepository предоставляет доступ к данным в MongoDB.
// Геопоиск выполняется через $geoNear по индексам 2dsphere.
type MongoRepository struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewMongoRepository подключается к MongoDB и создаёт необходимые индексы.
func NewMongoRepository(uri, database string, logger *zap.Logger) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	r := &MongoRepository{
		client: client,
		db:     client.Database(database),
		logger: logger,
	}

	if err := r.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return r, nil
}

// EnsureIndexes создаёт геоиндексы и индексы уникальности. Операция идемпотентна.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		requestsCollection: {
			{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
			{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "donations.donor_id", Value: 1}, {Key: "donations.donated_at", Value: -1}}},
		},
		campsCollection: {
			{Keys: bson.D{{Key: "created_by", Value: 1}}},
			{Keys: bson.D{{Key: "active", Value: 1}, {Key: "date", Value: 1}}},
		},
		campDonationsCollection: {
			{Keys: bson.D{{Key: "camp_id", Value: 1}, {Key: "donor_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "donor_id", Value: 1}, {Key: "donated_at", Value: -1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := r.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}

	return nil
}

// Close закрывает соединение с MongoDB.
func (r *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// CreateUser сохраняет пользователя.
func (r *MongoRepository) CreateUser(ctx context.Context, u *model.User) error {
	if _, err := r.db.Collection(usersCollection).InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: user %s", ErrDuplicate, u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *MongoRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// GetUsers возвращает пользователей с указанными идентификаторами.
func (r *MongoRepository) GetUsers(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cursor, err := r.db.Collection(usersCollection).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}

	var users []model.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

type userWithDistance struct {
	model.User `bson:",inline"`
	DistanceM  float64 `bson:"distance_m"`
}

// FindDonorsNear возвращает доноров в радиусе, ближайшие первыми.
func (r *MongoRepository) FindDonorsNear(ctx context.Context, q DonorQuery) ([]model.DonorMatch, error) {
	filter := bson.D{
		{Key: "role", Value: model.RoleDonor},
		{Key: "available", Value: true},
	}
	if q.BloodType != "" {
		filter = append(filter, bson.E{Key: "blood_type", Value: q.BloodType})
	}
	if len(q.ExcludeIDs) > 0 {
		filter = append(filter, bson.E{Key: "_id", Value: bson.M{"$nin": q.ExcludeIDs}})
	}

	cursor, err := r.db.Collection(usersCollection).Aggregate(ctx, geoNearPipeline(q.Point, q.MaxMeters, filter))
	if err != nil {
		return nil, fmt.Errorf("geo near users: %w", err)
	}

	var docs []userWithDistance
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	res := make([]model.DonorMatch, 0, len(docs))
	for _, d := range docs {
		res = append(res, model.DonorMatch{User: d.User, DistanceKm: d.DistanceM / 1000})
	}
	return res, nil
}

// CreateRequest сохраняет новый запрос.
func (r *MongoRepository) CreateRequest(ctx context.Context, req *model.Request) error {
	if req.Donations == nil {
		req.Donations = []model.DonationEvent{}
	}
	if _, err := r.db.Collection(requestsCollection).InsertOne(ctx, req); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: request %s", ErrDuplicate, req.ID)
		}
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// GetRequest возвращает запрос по идентификатору.
func (r *MongoRepository) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	var req model.Request
	err := r.db.Collection(requestsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find request: %w", err)
	}
	return &req, nil
}

// ApplyRequestTransition применяет переход одной операцией FindOneAndUpdate,
// условием которой служит версия, прочитанная при валидации.
func (r *MongoRepository) ApplyRequestTransition(ctx context.Context, id string, t model.RequestTransition) (*model.Request, error) {
	filter := bson.M{"_id": id, "version": t.ExpectedVersion}
	set := bson.M{"status": t.Status}
	inc := bson.M{"version": 1}
	update := bson.M{}

	if t.AcceptedAt != nil {
		set["accepted_at"] = *t.AcceptedAt
	}
	if t.FulfilledAt != nil {
		set["fulfilled_at"] = *t.FulfilledAt
	}
	if t.CancelledAt != nil {
		set["cancelled_at"] = *t.CancelledAt
	}
	if t.Donation != nil {
		filter["units_left"] = bson.M{"$gte": t.Donation.UnitsDonated}
		filter["donations.donor_id"] = bson.M{"$ne": t.Donation.DonorID}
		inc["units_left"] = -t.Donation.UnitsDonated
		update["$push"] = bson.M{"donations": t.Donation}
	}
	update["$set"] = set
	update["$inc"] = inc

	coll := r.db.Collection(requestsCollection)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var req model.Request
	err := coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&req)
	if err == nil {
		return &req, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update request: %w", err)
	}

	n, err := coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return nil, fmt.Errorf("count request: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	r.logger.Debug("request changed concurrently", zap.String("requestID", id), zap.Int64("version", t.ExpectedVersion))
	return nil, ErrVersionConflict
}

// GetRequestsByRequester возвращает запросы пользователя, новые первыми.
func (r *MongoRepository) GetRequestsByRequester(ctx context.Context, requesterID string) ([]model.Request, error) {
	return r.findRequests(ctx, bson.M{"requester_id": requesterID})
}

// GetRequestsByDonor возвращает запросы, в которых пользователь сделал донацию, новые первыми.
func (r *MongoRepository) GetRequestsByDonor(ctx context.Context, donorID string) ([]model.Request, error) {
	return r.findRequests(ctx, bson.M{"donations.donor_id": donorID})
}

func (r *MongoRepository) findRequests(ctx context.Context, filter bson.M) ([]model.Request, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.db.Collection(requestsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find requests: %w", err)
	}

	var requests []model.Request
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("decode requests: %w", err)
	}
	return requests, nil
}

type requestWithDistance struct {
	model.Request `bson:",inline"`
	DistanceM     float64 `bson:"distance_m"`
}

// FindRequestsNear возвращает открытые запросы в радиусе, ближайшие первыми.
func (r *MongoRepository) FindRequestsNear(ctx context.Context, q RequestQuery) ([]model.RequestMatch, error) {
	filter := bson.D{
		{Key: "status", Value: bson.M{"$in": []model.RequestStatus{model.RequestStatusPending, model.RequestStatusAccepted}}},
		{Key: "units_left", Value: bson.M{"$gt": 0}},
	}
	if q.BloodType != "" {
		filter = append(filter, bson.E{Key: "blood_type", Value: q.BloodType})
	}

	cursor, err := r.db.Collection(requestsCollection).Aggregate(ctx, geoNearPipeline(q.Point, q.MaxMeters, filter))
	if err != nil {
		return nil, fmt.Errorf("geo near requests: %w", err)
	}

	var docs []requestWithDistance
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode requests: %w", err)
	}

	res := make([]model.RequestMatch, 0, len(docs))
	for _, d := range docs {
		res = append(res, model.RequestMatch{Request: d.Request, DistanceKm: d.DistanceM / 1000})
	}
	return res, nil
}

func geoNearPipeline(p model.GeoPoint, maxMeters float64, filter bson.D) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$geoNear", Value: bson.D{
			{Key: "near", Value: bson.D{
				{Key: "type", Value: "Point"},
				{Key: "coordinates", Value: bson.A{p.Lng(), p.Lat()}},
			}},
			{Key: "key", Value: "location"},
			{Key: "distanceField", Value: "distance_m"},
			{Key: "maxDistance", Value: maxMeters},
			{Key: "query", Value: filter},
			{Key: "spherical", Value: true},
		}}},
	}
}

// CreateCamp сохраняет акцию.
func (r *MongoRepository) CreateCamp(ctx context.Context, c *model.BloodCamp) error {
	if _, err := r.db.Collection(campsCollection).InsertOne(ctx, c); err != nil {
		return fmt.Errorf("insert camp: %w", err)
	}
	return nil
}

// GetCamp возвращает акцию по идентификатору.
func (r *MongoRepository) GetCamp(ctx context.Context, id string) (*model.BloodCamp, error) {
	var c model.BloodCamp
	err := r.db.Collection(campsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find camp: %w", err)
	}
	return &c, nil
}

// GetActiveCamps возвращает активные акции, ближайшие по дате первыми.
func (r *MongoRepository) GetActiveCamps(ctx context.Context) ([]model.BloodCamp, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start_time", Value: 1}})
	return r.findCamps(ctx, bson.M{"active": true}, opts)
}

// GetCampsByCreator возвращает акции учреждения, новые первыми.
func (r *MongoRepository) GetCampsByCreator(ctx context.Context, creatorID string) ([]model.BloodCamp, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.findCamps(ctx, bson.M{"created_by": creatorID}, opts)
}

func (r *MongoRepository) findCamps(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.BloodCamp, error) {
	cursor, err := r.db.Collection(campsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find camps: %w", err)
	}

	var camps []model.BloodCamp
	if err := cursor.All(ctx, &camps); err != nil {
		return nil, fmt.Errorf("decode camps: %w", err)
	}
	return camps, nil
}

// SetCampActive меняет признак активности акции.
func (r *MongoRepository) SetCampActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.Collection(campsCollection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"active": active}})
	if err != nil {
		return fmt.Errorf("update camp: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateCampDonation сохраняет донацию на акции. Уникальный индекс (camp_id, donor_id) отклоняет повтор.
func (r *MongoRepository) CreateCampDonation(ctx context.Context, d *model.CampDonation) error {
	if _, err := r.db.Collection(campDonationsCollection).InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: donor %s in camp %s", ErrDuplicate, d.DonorID, d.CampID)
		}
		return fmt.Errorf("insert camp donation: %w", err)
	}
	return nil
}

// GetCampDonations возвращает донации акции в порядке записи.
func (r *MongoRepository) GetCampDonations(ctx context.Context, campID string) ([]model.CampDonation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "donated_at", Value: 1}})
	cursor, err := r.db.Collection(campDonationsCollection).Find(ctx, bson.M{"camp_id": campID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find camp donations: %w", err)
	}

	var donations []model.CampDonation
	if err := cursor.All(ctx, &donations); err != nil {
		return nil, fmt.Errorf("decode camp donations: %w", err)
	}
	return donations, nil
}

// CountCampDonationsByBloodType группирует донации указанных акций по группе крови.
func (r *MongoRepository) CountCampDonationsByBloodType(ctx context.Context, campIDs []string) ([]model.BloodTypeCount, error) {
	if len(campIDs) == 0 {
		return nil, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "camp_id", Value: bson.M{"$in": campIDs}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$blood_type"},
			{Key: "units", Value: bson.M{"$sum": 1}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}

	cursor, err := r.db.Collection(campDonationsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate camp donations: %w", err)
	}

	var counts []model.BloodTypeCount
	if err := cursor.All(ctx, &counts); err != nil {
		return nil, fmt.Errorf("decode counts: %w", err)
	}
	return counts, nil
}

// HasDonatedSince сообщает, есть ли в журнале донация донора не раньше since.
func (r *MongoRepository) HasDonatedSince(ctx context.Context, source model.DonationSource, donorID string, since time.Time) (bool, error) {
	var (
		coll   string
		filter bson.M
	)
	switch source {
	case model.DonationSourceRequest:
		coll = requestsCollection
		filter = bson.M{"donations": bson.M{"$elemMatch": bson.M{
			"donor_id":   donorID,
			"donated_at": bson.M{"$gte": since},
		}}}
	case model.DonationSourceCamp:
		coll = campDonationsCollection
		filter = bson.M{"donor_id": donorID, "donated_at": bson.M{"$gte": since}}
	default:
		return false, fmt.Errorf("unknown donation source %q", source)
	}

	n, err := r.db.Collection(coll).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count %s donations: %w", source, err)
	}
	return n > 0, nil
}

// DonorsSince возвращает доноров, у которых в журнале есть донация не раньше since.
func (r *MongoRepository) DonorsSince(ctx context.Context, source model.DonationSource, since time.Time) ([]string, error) {
	var (
		coll     string
		pipeline mongo.Pipeline
	)
	switch source {
	case model.DonationSourceRequest:
		recent := bson.M{"donor_role": model.RoleDonor, "donated_at": bson.M{"$gte": since}}
		coll = requestsCollection
		pipeline = mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"donations": bson.M{"$elemMatch": recent}}}},
			{{Key: "$unwind", Value: "$donations"}},
			{{Key: "$match", Value: bson.M{
				"donations.donor_role": model.RoleDonor,
				"donations.donated_at": bson.M{"$gte": since},
			}}},
			{{Key: "$group", Value: bson.M{"_id": "$donations.donor_id"}}},
		}
	case model.DonationSourceCamp:
		coll = campDonationsCollection
		pipeline = mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"donated_at": bson.M{"$gte": since}}}},
			{{Key: "$group", Value: bson.M{"_id": "$donor_id"}}},
		}
	default:
		return nil, fmt.Errorf("unknown donation source %q", source)
	}

	cursor, err := r.db.Collection(coll).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s donors: %w", source, err)
	}

	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode donors: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}
