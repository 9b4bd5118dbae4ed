package entity

import "time"

// Subscription is a recurring-payment agreement linked to a parent order.
// The processor token and the renewal flag live in its metadata.
type Subscription struct {
	Id            string    `json:"subscription_id" bson:"subscription_id"`
	ParentOrderId string    `json:"parent_order_id" bson:"parent_order_id"`
	Status        string    `json:"status" bson:"status"`
	TimeUpdated   time.Time `json:"time_updated" bson:"time_updated"`
}
