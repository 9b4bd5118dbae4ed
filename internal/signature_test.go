package internal

import (
	"paybox/entity"
	"testing"

	"github.com/shopspring/decimal"
)

func canonicalParams() entity.Params {
	return entity.Params{
		{Key: "merchant-id", Value: "100"},
		{Key: "version", Value: "v1"},
		{Key: "empty", Value: ""},
		{Key: "zero", Value: "0"},
		{Key: "signature", Value: "abc"},
		{Key: "amount", Value: "10.50"},
		{Key: "text", Value: "a b~c"},
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name       string
		passPhrase string
		sort       bool
		skipEmpty  bool
		want       string
	}{
		{
			name:       "sorted with pass phrase",
			passPhrase: "pass phrase",
			sort:       true,
			skipEmpty:  true,
			want:       "amount=10.50&merchant-id=100&passphrase=pass+phrase&text=a+b%7Ec&version=v1",
		},
		{
			name:       "sorted keeps empty values",
			passPhrase: "pass phrase",
			sort:       true,
			skipEmpty:  false,
			want:       "amount=10.50&empty=&merchant-id=100&passphrase=pass+phrase&text=a+b%7Ec&version=v1&zero=0",
		},
		{
			name:      "sorted without pass phrase",
			sort:      true,
			skipEmpty: true,
			want:      "amount=10.50&merchant-id=100&text=a+b%7Ec&version=v1",
		},
		{
			name:       "unsorted appends raw pass phrase",
			passPhrase: "pass phrase",
			sort:       false,
			skipEmpty:  true,
			want:       "merchant-id=100&version=v1&amount=10.50&text=a+b%7Ec&passphrase=pass phrase",
		},
		{
			name:      "unsorted without pass phrase",
			sort:      false,
			skipEmpty: true,
			want:      "merchant-id=100&version=v1&amount=10.50&text=a+b%7Ec",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer := &Signer{merchantKey: "secret", passPhrase: tt.passPhrase}
			got := signer.Canonicalize(canonicalParams(), tt.sort, tt.skipEmpty)
			if got != tt.want {
				t.Errorf("Canonicalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalizeSortedIgnoresInputOrder(t *testing.T) {
	signer := &Signer{merchantKey: "secret", passPhrase: "phrase"}

	params := canonicalParams()
	reversed := make(entity.Params, 0, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		reversed = append(reversed, params[i])
	}

	first := signer.Canonicalize(params, true, true)
	if second := signer.Canonicalize(params, true, true); second != first {
		t.Errorf("repeated call differs: %q != %q", second, first)
	}
	if got := signer.Canonicalize(reversed, true, true); got != first {
		t.Errorf("reversed input differs: %q != %q", got, first)
	}
}

func TestCanonicalizeSortedReplacesPassPhraseParam(t *testing.T) {
	signer := &Signer{passPhrase: "configured"}
	params := entity.Params{
		{Key: "version", Value: "v1"},
		{Key: "passphrase", Value: "sent"},
	}

	want := "passphrase=configured&version=v1"
	if got := signer.Canonicalize(params, true, true); got != want {
		t.Errorf("Canonicalize() = %q, want %q", got, want)
	}
	if params[1].Value != "sent" {
		t.Errorf("input changed: %v", params[1].Value)
	}
}

func TestSign(t *testing.T) {
	signer := NewSigner(entity.MerchantConfig{MerchantKey: "secret"})
	params := entity.Params{
		{Key: "pg_order_id", Value: "1001"},
		{Key: "pg_amount", Value: decimal.RequireFromString("150.00")},
	}

	// md5("init_payment.php;150;1001;secret")
	want := "ff810cda56ddac51d0efab598bb45158"
	if got := signer.Sign("init_payment.php", params); got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
	if got := signer.Sign("init_payment.php", params); got != want {
		t.Errorf("Sign() is not stable: %s", got)
	}

	changed := entity.Params{
		{Key: "pg_order_id", Value: "1001"},
		{Key: "pg_amount", Value: decimal.RequireFromString("150.01")},
	}
	if got := signer.Sign("init_payment.php", changed); got == want {
		t.Error("Sign() did not change with the amount")
	}

	otherKey := NewSigner(entity.MerchantConfig{MerchantKey: "other"})
	if got := otherKey.Sign("init_payment.php", params); got == want {
		t.Error("Sign() did not change with the merchant key")
	}
}

func TestSignNestedReceipt(t *testing.T) {
	signer := NewSigner(entity.MerchantConfig{MerchantKey: "secret"})
	params := entity.Params{
		{Key: "pg_order_id", Value: "1001"},
		{Key: "pg_receipt_positions", Value: []entity.Params{
			{{Key: "count", Value: 2}, {Key: "name", Value: "Widget"}},
		}},
	}
	reordered := entity.Params{
		{Key: "pg_order_id", Value: "1001"},
		{Key: "pg_receipt_positions", Value: []entity.Params{
			{{Key: "name", Value: "Widget"}, {Key: "count", Value: 2}},
		}},
	}

	if signer.Sign("init_payment.php", params) == signer.Sign("init_payment.php", reordered) {
		t.Error("position order inside a receipt line must change the signature")
	}
}

func TestVerify(t *testing.T) {
	signer := NewSigner(entity.MerchantConfig{MerchantKey: "secret"})
	signer.SetLogger(testLogger())

	if !signer.Verify("abc", "abc") {
		t.Error("equal signatures must verify")
	}
	if signer.Verify("abc", "abd") {
		t.Error("different signatures must not verify")
	}
	if signer.Verify("", "") {
		t.Error("empty signature must not verify")
	}
}

func TestVerifyValues(t *testing.T) {
	signer := NewSigner(entity.MerchantConfig{MerchantKey: "secret"})
	signer.SetLogger(testLogger())

	values := map[string]string{
		"pg_result":   "1",
		"pg_order_id": "1001",
		"pg_amount":   "150",
		// md5("notify;150;1001;1;secret")
		"pg_sig": "de60efd76e76fe38e4e3257c8cc1ce96",
	}
	if !signer.VerifyValues("notify", values) {
		t.Error("valid notification signature rejected")
	}

	values["pg_amount"] = "1"
	if signer.VerifyValues("notify", values) {
		t.Error("tampered notification accepted")
	}
}
