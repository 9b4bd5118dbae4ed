package entity

import (
	"github.com/mailru/easyjson/jlexer"
	"github.com/shopspring/decimal"
)

// RenewalRequest is the body of a scheduled renewal charge.
type RenewalRequest struct {
	Amount decimal.Decimal
}

func (r *RenewalRequest) UnmarshalEasyJSON(in *jlexer.Lexer) {
	if in.IsNull() {
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "amount":
			amount, err := decimal.NewFromString(string(in.JsonNumber()))
			if err != nil {
				in.AddError(err)
			}
			r.Amount = amount
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
}

// ChargeResult is the outcome of a charge made with a stored token.
type ChargeResult struct {
	Status           string `xml:"pg_status"`
	PaymentId        string `xml:"pg_payment_id"`
	ErrorCode        string `xml:"pg_error_code"`
	ErrorDescription string `xml:"pg_error_description"`
}

func (c *ChargeResult) IsOk() bool {
	return c.Status == "ok"
}
