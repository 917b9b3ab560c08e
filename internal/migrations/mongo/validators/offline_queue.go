package validators

import "go.mongodb.org/mongo-driver/bson"

var OfflineQueueValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"booking_data",
			"status",
			"attempts",
			"created_at",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"booking_data": bson.M{
				"bsonType": "object",
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"pending-validation",
					"pending-sync",
					"syncing",
					"conflict",
					"failed",
					"synced",
				},
			},

			"attempts": bson.M{
				"bsonType": "int",
				"minimum":  0,
			},

			"conflict_details": bson.M{
				"bsonType": "object",
				"required": []string{"message"},
				"properties": bson.M{
					"message": bson.M{
						"bsonType": "string",
					},
				},
			},

			"error": bson.M{
				"bsonType": "string",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
