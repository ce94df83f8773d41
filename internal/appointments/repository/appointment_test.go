package repository

import (
	"testing"
	"time"
	"vaxslot/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestAppointmentDocument_UsesObjectID(t *testing.T) {
	id := primitive.NewObjectID()
	a := &model.Appointment{
		ID:        id.Hex(),
		UserID:    "user-1",
		UserEmail: "one@example.com",
		SlotID:    "65f0c0ffee0000000000aaaa",
		VaccineID: "65f0c0ffee0000000000bbbb",
		BookedAt:  time.Date(2026, 11, 2, 9, 0, 0, 0, time.UTC),
		Status:    model.StatusScheduled,
	}

	doc, err := appointmentDocument(a, id)
	require.NoError(t, err)

	ids := 0
	for _, e := range doc {
		if e.Key == "_id" {
			ids++
			assert.Equal(t, id, e.Value)
		}
	}
	assert.Equal(t, 1, ids)
	assert.Equal(t, id.Hex(), a.ID, "encoding must not modify the caller's appointment")

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var back model.Appointment
	require.NoError(t, bson.Unmarshal(raw, &back))
	assert.Equal(t, id.Hex(), back.ID)
	assert.Equal(t, "user-1", back.UserID)
	assert.Equal(t, model.StatusScheduled, back.Status)
}
