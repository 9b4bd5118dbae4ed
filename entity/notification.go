package entity

import (
	"net/url"
	"time"
)

const ResultSuccess = "1"

// Notification is an ITN received from the processor. Values keeps every
// received field for signature verification and the journal.
type Notification struct {
	OrderId       string            `json:"pg_order_id" bson:"order_id"`
	Result        string            `json:"pg_result" bson:"result"`
	PaymentId     string            `json:"pg_payment_id" bson:"payment_id"`
	PaymentStatus string            `json:"pg_status" bson:"payment_status"`
	Amount        string            `json:"pg_amount" bson:"amount"`
	Signature     string            `json:"pg_sig" bson:"signature"`
	Token         string            `json:"token" bson:"token"`
	Values        map[string]string `json:"values" bson:"values"`
	TimeReceived  time.Time         `json:"time_received" bson:"time_received"`
}

// NewNotification reads known fields from form or query values. The token is
// taken from pg_recurring_profile_id, or from token when that one is absent.
func NewNotification(values url.Values) *Notification {
	n := &Notification{
		OrderId:       values.Get("pg_order_id"),
		Result:        values.Get("pg_result"),
		PaymentId:     values.Get("pg_payment_id"),
		PaymentStatus: values.Get("pg_status"),
		Amount:        values.Get("pg_amount"),
		Signature:     values.Get("pg_sig"),
		Token:         values.Get("pg_recurring_profile_id"),
		Values:        make(map[string]string, len(values)),
		TimeReceived:  time.Now(),
	}
	if n.Token == "" {
		n.Token = values.Get("token")
	}
	for key := range values {
		n.Values[key] = values.Get(key)
	}
	return n
}

func (n *Notification) IsSuccess() bool {
	return n.Result == ResultSuccess
}

func (n *Notification) DataType() string {
	return "notification"
}
