package entities

import "time"

// Device represents a registered client device allowed to open
// pipeline sessions
type Device struct {
	ID           string    `json:"id" bson:"_id"`
	SerialNumber string    `json:"serial_number" bson:"serial_number"`
	SecretKey    string    `json:"secret_key" bson:"secret_key"`
	Label        string    `json:"label" bson:"label"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}
