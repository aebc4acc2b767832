package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aveksana/referrals-api/internal/database"
)

const usersCollection = "users"

// mongoUser is the document shape of the users collection. Ids are stored as
// canonical uuid strings.
type mongoUser struct {
	ID            string  `bson:"_id"`
	Email         string  `bson:"email"`
	PasswordHash  string  `bson:"passwordHash"`
	ReferralCode  string  `bson:"referralCode"`
	ReferredBy    *string `bson:"referredBy"`
	ReferrerEmail string  `bson:"referrerEmail,omitempty"`

	Credits       int `bson:"credits"`
	PremiumMonths int `bson:"premiumMonths"`

	ActivationEvents map[string]ActivationEvent `bson:"activationEvents"`
	RequiredEvents   []string                   `bson:"requiredEvents"`
	ReferralStatus   *string                    `bson:"referralStatus"`

	RewardReceived          bool            `bson:"rewardReceived"`
	SuperActivationRewarded bool            `bson:"superActivationRewarded"`
	Milestones              map[string]bool `bson:"milestones"`
	Badges                  []string        `bson:"badges"`
	ProjectsSaved           int             `bson:"projectsSaved"`

	CreatedAt         time.Time  `bson:"createdAt"`
	ActivatedAt       *time.Time `bson:"activatedAt,omitempty"`
	SuperActivationAt *time.Time `bson:"superActivationAt,omitempty"`
	UpdatedAt         time.Time  `bson:"updatedAt"`
}

// MongoRepository is the MongoDB Store. Conditional writes use $ne guards and
// report ModifiedCount.
type MongoRepository struct {
	coll *mongo.Collection
}

var _ Store = (*MongoRepository)(nil)

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(usersCollection)}
}

// EnsureIndexes creates the unique and lookup indexes the store relies on.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_unique")},
		{Keys: bson.D{{Key: "referralCode", Value: 1}}, Options: options.Index().SetUnique(true).SetName("referral_code_unique")},
		{Keys: bson.D{{Key: "referredBy", Value: 1}, {Key: "referralStatus", Value: 1}}, Options: options.Index().SetName("referred_by_status")},
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) Create(ctx context.Context, u *User) (*User, error) {
	doc := toMongoUser(u)
	if doc.ID == uuid.Nil.String() {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "referral_code_unique") {
				return nil, ErrDuplicateReferralCode
			}
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return fromMongoUser(doc)
}

func (r *MongoRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.findOne(ctx, database.NewFilter().Eq("_id", id.String()).Build())
}

func (r *MongoRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, database.NewFilter().Eq("email", email).Build())
}

func (r *MongoRepository) GetByReferralCode(ctx context.Context, code string) (*User, error) {
	return r.findOne(ctx, database.NewFilter().Eq("referralCode", code).Build())
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var doc mongoUser
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return fromMongoUser(&doc)
}

func (r *MongoRepository) ListReferredBy(ctx context.Context, referrerID uuid.UUID) ([]*User, error) {
	filter := database.NewFilter().Eq("referredBy", referrerID.String()).Build()
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list referred users: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoUser
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode referred users: %w", err)
	}

	out := make([]*User, 0, len(docs))
	for i := range docs {
		u, err := fromMongoUser(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *MongoRepository) CountActivatedReferrals(ctx context.Context, referrerID uuid.UUID) (int, error) {
	filter := database.NewFilter().
		Eq("referredBy", referrerID.String()).
		Eq("referralStatus", string(StatusActivated)).
		Build()
	n, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count activated referrals: %w", err)
	}
	return int(n), nil
}

// UpsertActivationEvent sets activationEvents.<name> only, so concurrent
// writes to other events are never overwritten.
func (r *MongoRepository) UpsertActivationEvent(ctx context.Context, id uuid.UUID, name string, ev ActivationEvent) (ActivationEvents, error) {
	if err := ValidateEventName(name); err != nil {
		return nil, err
	}

	update := database.NewUpdate().
		Set("activationEvents."+name, ev).
		Set("updatedAt", time.Now().UTC()).
		Build()
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"activationEvents": 1})

	var doc struct {
		ActivationEvents ActivationEvents `bson:"activationEvents"`
	}
	err := r.coll.FindOneAndUpdate(ctx, database.NewFilter().Eq("_id", id.String()).Build(), update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to upsert activation event: %w", err)
	}
	return doc.ActivationEvents, nil
}

func (r *MongoRepository) MarkActivated(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	filter := database.NewFilter().
		Eq("_id", id.String()).
		Ne("referralStatus", string(StatusActivated)).
		Build()
	return r.updateOne(ctx, "mark activated", filter, markActivatedUpdate(at, time.Now()))
}

// markActivatedUpdate keeps an existing activatedAt, so it is a pipeline
// update rather than a plain $set.
func markActivatedUpdate(at, now time.Time) []bson.M {
	return []bson.M{{"$set": bson.M{
		"referralStatus": string(StatusActivated),
		"activatedAt":    bson.M{"$ifNull": bson.A{"$activatedAt", at.UTC()}},
		"updatedAt":      now.UTC(),
	}}}
}

func (r *MongoRepository) LatchRewardReceived(ctx context.Context, id uuid.UUID) (bool, error) {
	filter := database.NewFilter().
		Eq("_id", id.String()).
		Ne("rewardReceived", true).
		Build()
	update := database.NewUpdate().
		Set("rewardReceived", true).
		Set("updatedAt", time.Now().UTC()).
		Build()
	return r.updateOne(ctx, "latch reward", filter, update)
}

func (r *MongoRepository) LatchSuperActivation(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	filter := database.NewFilter().
		Eq("_id", id.String()).
		Ne("superActivationRewarded", true).
		Build()
	update := database.NewUpdate().
		Set("superActivationRewarded", true).
		Set("superActivationAt", at.UTC()).
		Set("updatedAt", time.Now().UTC()).
		Build()
	return r.updateOne(ctx, "latch super activation", filter, update)
}

func (r *MongoRepository) GrantMilestones(ctx context.Context, id uuid.UUID, keys []string, months int) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}

	filter := database.NewFilter().Eq("_id", id.String())
	update := database.NewUpdate().
		Inc("premiumMonths", months).
		Set("updatedAt", time.Now().UTC())
	for _, k := range keys {
		filter.Ne("milestones."+k, true)
		update.Set("milestones."+k, true)
	}
	return r.updateOne(ctx, "grant milestones", filter.Build(), update.Build())
}

func (r *MongoRepository) CreditSuperActivation(ctx context.Context, id uuid.UUID, credits int, badge string) error {
	update := database.NewUpdate().
		Inc("credits", credits).
		AddToSet("badges", badge).
		Set("updatedAt", time.Now().UTC()).
		Build()

	res, err := r.coll.UpdateOne(ctx, database.NewFilter().Eq("_id", id.String()).Build(), update)
	if err != nil {
		return fmt.Errorf("failed to credit super activation: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) IncrementProjectsSaved(ctx context.Context, id uuid.UUID) (int, error) {
	update := database.NewUpdate().
		Inc("projectsSaved", 1).
		Set("updatedAt", time.Now().UTC()).
		Build()
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.M{"projectsSaved": 1})

	var doc struct {
		ProjectsSaved int `bson:"projectsSaved"`
	}
	err := r.coll.FindOneAndUpdate(ctx, database.NewFilter().Eq("_id", id.String()).Build(), update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment projects saved: %w", err)
	}
	return doc.ProjectsSaved, nil
}

func (r *MongoRepository) updateOne(ctx context.Context, op string, filter bson.M, update any) (bool, error) {
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	return res.ModifiedCount > 0, nil
}

func toMongoUser(u *User) *mongoUser {
	doc := &mongoUser{
		ID:                      u.ID.String(),
		Email:                   u.Email,
		PasswordHash:            u.PasswordHash,
		ReferralCode:            u.ReferralCode,
		ReferrerEmail:           u.ReferrerEmail,
		Credits:                 u.Credits,
		PremiumMonths:           u.PremiumMonths,
		ActivationEvents:        u.ActivationEvents,
		RequiredEvents:          nonNil(u.RequiredEvents),
		RewardReceived:          u.RewardReceived,
		SuperActivationRewarded: u.SuperActivationRewarded,
		Milestones:              u.Milestones,
		Badges:                  nonNil(u.Badges),
		ProjectsSaved:           u.ProjectsSaved,
		CreatedAt:               u.CreatedAt.UTC(),
		ActivatedAt:             u.ActivatedAt,
		SuperActivationAt:       u.SuperActivationAt,
		UpdatedAt:               u.UpdatedAt.UTC(),
	}
	if doc.ActivationEvents == nil {
		doc.ActivationEvents = ActivationEvents{}
	}
	if doc.Milestones == nil {
		doc.Milestones = Milestones{}
	}
	if u.ReferredBy != nil {
		s := u.ReferredBy.String()
		doc.ReferredBy = &s
	}
	if u.ReferralStatus != StatusNone {
		s := string(u.ReferralStatus)
		doc.ReferralStatus = &s
	}
	return doc
}

func fromMongoUser(doc *mongoUser) (*User, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", doc.ID, err)
	}

	u := &User{
		ID:                      id,
		Email:                   doc.Email,
		PasswordHash:            doc.PasswordHash,
		ReferralCode:            doc.ReferralCode,
		ReferrerEmail:           doc.ReferrerEmail,
		Credits:                 doc.Credits,
		PremiumMonths:           doc.PremiumMonths,
		ActivationEvents:        doc.ActivationEvents,
		RequiredEvents:          doc.RequiredEvents,
		RewardReceived:          doc.RewardReceived,
		SuperActivationRewarded: doc.SuperActivationRewarded,
		Milestones:              doc.Milestones,
		Badges:                  BadgeSet(nonNil(doc.Badges)),
		ProjectsSaved:           doc.ProjectsSaved,
		CreatedAt:               doc.CreatedAt,
		ActivatedAt:             doc.ActivatedAt,
		SuperActivationAt:       doc.SuperActivationAt,
		UpdatedAt:               doc.UpdatedAt,
	}
	if u.ActivationEvents == nil {
		u.ActivationEvents = ActivationEvents{}
	}
	if u.Milestones == nil {
		u.Milestones = Milestones{}
	}
	if doc.ReferredBy != nil {
		ref, err := uuid.Parse(*doc.ReferredBy)
		if err != nil {
			return nil, fmt.Errorf("invalid referredBy %q: %w", *doc.ReferredBy, err)
		}
		u.ReferredBy = &ref
	}
	if doc.ReferralStatus != nil {
		u.ReferralStatus = ReferralStatus(*doc.ReferralStatus)
	}
	return u, nil
}
