package validators

import "go.mongodb.org/mongo-driver/bson"

var NotificationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"user_id",
			"type",
			"message",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"user_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"type": bson.M{
				"bsonType": "string",
				"enum": []string{
					"approved",
					"rejected",
					"cancelled",
					"info",
					"signup",
				},
			},

			"message": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"booking_request_id": bson.M{
				"bsonType": "string",
			},

			"admin_feedback": bson.M{
				"bsonType": "string",
			},

			"acknowledged_at": bson.M{
				"bsonType": []string{"date", "null"},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
