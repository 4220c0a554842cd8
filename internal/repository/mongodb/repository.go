package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/rabbitry/internal/calendar"
	"github.com/mamadbah2/rabbitry/internal/domain/models"
	"github.com/mamadbah2/rabbitry/internal/repository"
)

const (
	farmsCollection     = "farms"
	animalsCollection   = "animals"
	eventsCollection    = "breeding_events"
	remindersCollection = "reminders"
)

// MongoDBRepository implements repository.Store on MongoDB. Multi-document
// transactions require a replica set deployment.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ repository.Store = (*MongoDBRepository)(nil)

// NewMongoDBRepository connects, pings and ensures the indexes the engine relies on.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	r := &MongoDBRepository{client: client, db: client.Database(dbName)}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MongoDBRepository) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		eventsCollection: {
			{
				Keys: bson.D{{Key: "doe_id", Value: 1}},
				Options: options.Index().
					SetName("one_open_event_per_doe").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"open": true}),
			},
			{Keys: bson.D{{Key: "buck_id", Value: 1}, {Key: "mating_date", Value: -1}}},
			{Keys: bson.D{{Key: "doe_id", Value: 1}, {Key: "actual_birth_date", Value: -1}}},
		},
		remindersCollection: {
			{Keys: bson.D{{Key: "farm_id", Value: 1}, {Key: "status", Value: 1}, {Key: "notify_on", Value: 1}}},
			{Keys: bson.D{{Key: "animal_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "breeding_event_id", Value: 1}}},
		},
		animalsCollection: {
			{Keys: bson.D{{Key: "farm_id", Value: 1}}},
		},
	}

	for coll, idx := range indexes {
		if _, err := r.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// RunInTransaction runs fn inside a session transaction; the driver retries
// transient transaction errors and commit failures.
func (r *MongoDBRepository) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", what, repository.ErrConflict)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func (r *MongoDBRepository) SaveFarm(ctx context.Context, farm models.Farm) error {
	_, err := r.db.Collection(farmsCollection).ReplaceOne(ctx, bson.M{"_id": farm.ID}, fromFarm(farm), options.Replace().SetUpsert(true))
	return translate(err, "save farm "+farm.ID)
}

func (r *MongoDBRepository) GetFarm(ctx context.Context, id string) (models.Farm, error) {
	var doc farmDoc
	if err := r.db.Collection(farmsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return models.Farm{}, translate(err, "farm "+id)
	}
	return doc.model(), nil
}

func (r *MongoDBRepository) ListFarms(ctx context.Context) ([]models.Farm, error) {
	cur, err := r.db.Collection(farmsCollection).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, translate(err, "list farms")
	}
	var docs []farmDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate(err, "decode farms")
	}
	out := make([]models.Farm, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (r *MongoDBRepository) InsertAnimals(ctx context.Context, animals ...models.Animal) error {
	if len(animals) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(animals))
	for _, a := range animals {
		docs = append(docs, fromAnimal(a))
	}
	_, err := r.db.Collection(animalsCollection).InsertMany(ctx, docs)
	return translate(err, "insert animals")
}

func (r *MongoDBRepository) GetAnimal(ctx context.Context, id string) (models.Animal, error) {
	var doc animalDoc
	if err := r.db.Collection(animalsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return models.Animal{}, translate(err, "animal "+id)
	}
	return doc.model()
}

func (r *MongoDBRepository) UpdateAnimal(ctx context.Context, animal models.Animal) error {
	res, err := r.db.Collection(animalsCollection).ReplaceOne(ctx, bson.M{"_id": animal.ID}, fromAnimal(animal))
	if err != nil {
		return translate(err, "update animal "+animal.ID)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("animal %s: %w", animal.ID, repository.ErrNotFound)
	}
	return nil
}

func (r *MongoDBRepository) InsertBreedingEvent(ctx context.Context, event models.BreedingEvent) error {
	_, err := r.db.Collection(eventsCollection).InsertOne(ctx, fromEvent(event))
	return translate(err, "insert breeding event for doe "+event.DoeID)
}

func (r *MongoDBRepository) GetBreedingEvent(ctx context.Context, id string) (models.BreedingEvent, error) {
	var doc eventDoc
	if err := r.db.Collection(eventsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return models.BreedingEvent{}, translate(err, "breeding event "+id)
	}
	return doc.model()
}

// closeOpenEvent applies set to the event only while it is open.
func (r *MongoDBRepository) closeOpenEvent(ctx context.Context, id string, set bson.M) (models.BreedingEvent, error) {
	coll := r.db.Collection(eventsCollection)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc eventDoc
	err := coll.FindOneAndUpdate(ctx, bson.M{"_id": id, "open": true}, bson.M{"$set": set}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, countErr := coll.CountDocuments(ctx, bson.M{"_id": id})
		if countErr != nil {
			return models.BreedingEvent{}, translate(countErr, "breeding event "+id)
		}
		if n == 0 {
			return models.BreedingEvent{}, fmt.Errorf("breeding event %s: %w", id, repository.ErrNotFound)
		}
		return models.BreedingEvent{}, fmt.Errorf("breeding event %s is closed: %w", id, repository.ErrConflict)
	}
	if err != nil {
		return models.BreedingEvent{}, translate(err, "close breeding event "+id)
	}
	return doc.model()
}

func (r *MongoDBRepository) RecordBirth(ctx context.Context, id string, birth calendar.Date, litterSize int, notes string, at time.Time) (models.BreedingEvent, error) {
	set := bson.M{
		"actual_birth_date": birth.String(),
		"litter_size":       litterSize,
		"open":              false,
		"updated_at":        at,
	}
	if notes != "" {
		set["notes"] = notes
	}
	return r.closeOpenEvent(ctx, id, set)
}

func (r *MongoDBRepository) RetractBreedingEvent(ctx context.Context, id string, at time.Time) (models.BreedingEvent, error) {
	return r.closeOpenEvent(ctx, id, bson.M{"deleted": true, "open": false, "updated_at": at})
}

func (r *MongoDBRepository) MarkKitsRecorded(ctx context.Context, id string, at time.Time) error {
	filter := bson.M{
		"_id":               id,
		"deleted":           false,
		"kits_recorded":     false,
		"actual_birth_date": bson.M{"$exists": true, "$ne": ""},
	}
	res, err := r.db.Collection(eventsCollection).UpdateOne(ctx, filter, bson.M{"$set": bson.M{"kits_recorded": true, "updated_at": at}})
	if err != nil {
		return translate(err, "mark kits recorded "+id)
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetBreedingEvent(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("breeding event %s kits: %w", id, repository.ErrConflict)
	}
	return nil
}

func (r *MongoDBRepository) findEvents(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.BreedingEvent, error) {
	cur, err := r.db.Collection(eventsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, translate(err, "find breeding events")
	}
	var docs []eventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate(err, "decode breeding events")
	}
	out := make([]models.BreedingEvent, 0, len(docs))
	for _, d := range docs {
		ev, err := d.model()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *MongoDBRepository) ListBreedingEventsByDoe(ctx context.Context, doeID string) ([]models.BreedingEvent, error) {
	return r.findEvents(ctx,
		bson.M{"doe_id": doeID, "deleted": false},
		options.Find().SetSort(bson.D{{Key: "mating_date", Value: -1}}))
}

func (r *MongoDBRepository) ListMatingsByBuck(ctx context.Context, buckID string, from, to calendar.Date) ([]models.BreedingEvent, error) {
	return r.findEvents(ctx,
		bson.M{
			"buck_id":     buckID,
			"deleted":     false,
			"mating_date": bson.M{"$gte": from.String(), "$lte": to.String()},
		},
		options.Find().SetSort(bson.D{{Key: "mating_date", Value: -1}}))
}

func (r *MongoDBRepository) ListCompletedByDoe(ctx context.Context, doeID string, limit int) ([]models.BreedingEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "actual_birth_date", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.findEvents(ctx,
		bson.M{
			"doe_id":            doeID,
			"deleted":           false,
			"actual_birth_date": bson.M{"$exists": true, "$ne": ""},
		},
		opts)
}

func (r *MongoDBRepository) InsertReminders(ctx context.Context, reminders ...models.Reminder) error {
	if len(reminders) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(reminders))
	for _, rem := range reminders {
		docs = append(docs, fromReminder(rem))
	}
	_, err := r.db.Collection(remindersCollection).InsertMany(ctx, docs)
	return translate(err, "insert reminders")
}

func (r *MongoDBRepository) GetReminder(ctx context.Context, id string) (models.Reminder, error) {
	var doc reminderDoc
	if err := r.db.Collection(remindersCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return models.Reminder{}, translate(err, "reminder "+id)
	}
	return doc.model()
}

func (r *MongoDBRepository) findReminders(ctx context.Context, filter bson.M) ([]models.Reminder, error) {
	opts := options.Find().SetSort(bson.D{{Key: "trigger_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.db.Collection(remindersCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, translate(err, "find reminders")
	}
	var docs []reminderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate(err, "decode reminders")
	}
	out := make([]models.Reminder, 0, len(docs))
	for _, d := range docs {
		rem, err := d.model()
		if err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	return out, nil
}

func (r *MongoDBRepository) ListDueReminders(ctx context.Context, farmID string, day calendar.Date) ([]models.Reminder, error) {
	return r.findReminders(ctx, bson.M{
		"farm_id":   farmID,
		"status":    string(models.StatusPending),
		"notify_on": day.String(),
	})
}

func (r *MongoDBRepository) ListRemindersByAnimal(ctx context.Context, animalID string) ([]models.Reminder, error) {
	return r.findReminders(ctx, bson.M{"animal_id": animalID})
}

func reminderFilter(f repository.ReminderFilter) bson.M {
	filter := bson.M{"status": string(models.StatusPending)}
	if f.AnimalID != "" {
		filter["animal_id"] = f.AnimalID
	}
	if f.BreedingEventID != "" {
		filter["breeding_event_id"] = f.BreedingEventID
	}
	if len(f.Categories) > 0 {
		values := make([]string, 0, len(f.Categories))
		for _, c := range f.Categories {
			values = append(values, string(c))
		}
		filter["category"] = bson.M{"$in": values}
	}
	if len(f.Kinds) > 0 {
		values := make([]string, 0, len(f.Kinds))
		for _, k := range f.Kinds {
			values = append(values, string(k))
		}
		filter["kind"] = bson.M{"$in": values}
	}
	return filter
}

func (r *MongoDBRepository) TransitionPending(ctx context.Context, f repository.ReminderFilter, status models.ReminderStatus, at time.Time) (int, error) {
	if f.AnimalID == "" && f.BreedingEventID == "" {
		return 0, fmt.Errorf("transition reminders: filter needs an animal or breeding event")
	}
	if !models.StatusPending.CanTransitionTo(status) {
		return 0, fmt.Errorf("transition reminders to %s: illegal transition", status)
	}

	update := bson.M{
		"$set":   bson.M{"status": string(status), "updated_at": at},
		"$unset": bson.M{"claim_token": "", "claim_expires_at": ""},
	}
	res, err := r.db.Collection(remindersCollection).UpdateMany(ctx, reminderFilter(f), update)
	if err != nil {
		return 0, translate(err, "transition reminders")
	}
	return int(res.ModifiedCount), nil
}

// conditionalReminderUpdate applies update when filter matches; otherwise it
// reports ErrNotFound or ErrConflict depending on whether the reminder exists.
func (r *MongoDBRepository) conditionalReminderUpdate(ctx context.Context, id string, filter, update bson.M) error {
	coll := r.db.Collection(remindersCollection)
	res, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return translate(err, "update reminder "+id)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return translate(err, "reminder "+id)
	}
	if n == 0 {
		return fmt.Errorf("reminder %s: %w", id, repository.ErrNotFound)
	}
	return fmt.Errorf("reminder %s: %w", id, repository.ErrConflict)
}

func (r *MongoDBRepository) ClaimReminder(ctx context.Context, id, token string, now, until time.Time) error {
	filter := bson.M{
		"_id":    id,
		"status": string(models.StatusPending),
		"$or": bson.A{
			bson.M{"claim_expires_at": nil},
			bson.M{"claim_expires_at": bson.M{"$lte": now}},
		},
	}
	update := bson.M{"$set": bson.M{"claim_token": token, "claim_expires_at": until}}
	return r.conditionalReminderUpdate(ctx, id, filter, update)
}

func (r *MongoDBRepository) ReleaseReminderClaim(ctx context.Context, id, token string) error {
	_, err := r.db.Collection(remindersCollection).UpdateOne(ctx,
		bson.M{"_id": id, "claim_token": token},
		bson.M{"$unset": bson.M{"claim_token": "", "claim_expires_at": ""}})
	return translate(err, "release reminder claim "+id)
}

func (r *MongoDBRepository) MarkReminderSent(ctx context.Context, id, token string, at time.Time) error {
	filter := bson.M{"_id": id, "status": string(models.StatusPending), "claim_token": token}
	update := bson.M{
		"$set":   bson.M{"status": string(models.StatusSent), "sent_at": at, "updated_at": at},
		"$unset": bson.M{"claim_token": "", "claim_expires_at": ""},
	}
	return r.conditionalReminderUpdate(ctx, id, filter, update)
}

func (r *MongoDBRepository) CompleteReminder(ctx context.Context, id string, at time.Time) error {
	filter := bson.M{"_id": id, "status": string(models.StatusPending)}
	update := bson.M{
		"$set":   bson.M{"status": string(models.StatusCompleted), "updated_at": at},
		"$unset": bson.M{"claim_token": "", "claim_expires_at": ""},
	}
	return r.conditionalReminderUpdate(ctx, id, filter, update)
}
