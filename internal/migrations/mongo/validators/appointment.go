package validators

import (
	"vaxslot/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

var AppointmentValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"user_id",
			"user_email",
			"slot_id",
			"vaccine_id",
			"booked_at",
			"status",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id":        bson.M{"bsonType": "objectId"},
			"user_id":    bson.M{"bsonType": "string", "minLength": 1},
			"user_email": bson.M{"bsonType": "string"},
			"slot_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},
			"vaccine_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},
			"booked_at": bson.M{"bsonType": "date"},
			"status": bson.M{
				"bsonType": "string",
				"enum":     statuses(),
			},
			"credential_token": bson.M{"bsonType": "string"},
			"updated_at":       bson.M{"bsonType": "date"},
		},
	},
}

func statuses() []string {
	out := make([]string, 0, len(model.AppointmentStatuses))
	for _, s := range model.AppointmentStatuses {
		out = append(out, string(s))
	}
	return out
}
