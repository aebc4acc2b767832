package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestMarkActivatedUpdate_KeepsExistingTimestamp(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := at.Add(time.Minute)

	got := markActivatedUpdate(at, now)

	assert.Equal(t, []bson.M{{"$set": bson.M{
		"referralStatus": "activated",
		"activatedAt":    bson.M{"$ifNull": bson.A{"$activatedAt", at}},
		"updatedAt":      now,
	}}}, got)
}
