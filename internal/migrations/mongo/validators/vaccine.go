package validators

import "go.mongodb.org/mongo-driver/bson"

var VaccineValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"name", "manufacturer", "doses_available", "created_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":          bson.M{"bsonType": "objectId"},
			"name":         bson.M{"bsonType": "string", "minLength": 2, "maxLength": 100},
			"manufacturer": bson.M{"bsonType": "string", "minLength": 2, "maxLength": 100},
			"description":  bson.M{"bsonType": "string", "maxLength": 1000},
			"doses_available": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
			"created_at": bson.M{"bsonType": "date"},
		},
	},
}
