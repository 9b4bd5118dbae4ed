package entity

import (
	"time"
)

// ReceiptFormat selects the fiscal receipt layout sent with the payment request.
type ReceiptFormat string

const (
	ReceiptLegacy            ReceiptFormat = "old_ru_1_05"
	ReceiptRegionalV2        ReceiptFormat = "ru_1_05"
	ReceiptAlternateRegional ReceiptFormat = "uz_1_0"
)

// ReceiptConfig holds fiscal receipt settings of the installation.
type ReceiptConfig struct {
	Enabled bool
	Format  ReceiptFormat

	// TaxationSystem is the operation_type of regional receipts (osn, usn_income, ...)
	TaxationSystem string
	PaymentMethod  string
	PaymentObject  string

	// Tax is the tax_type code of legacy receipts, NewTax the vat_code of regional ones
	Tax    string
	NewTax string

	InDelivery            bool
	DeliveryPaymentObject string
	DeliveryTax           string
	DeliveryNewTax        string
	DeliveryIkpuCode      string
	DeliveryPackageCode   string
	DeliveryUnitCode      string
}

// MerchantConfig is the read-only merchant configuration, built once at start
// and passed by value into every component.
type MerchantConfig struct {
	MerchantId  int
	MerchantKey string
	PassPhrase  string
	ApiHost     string
	Language    string
	Currencies  []string
	TestMode    bool
	Timeout     time.Duration

	// VerifySignatures rejects notifications whose pg_sig does not match
	VerifySignatures bool

	SiteUrl   string
	ResultUrl string

	SuccessStatus string
	FailureStatus string

	Receipt ReceiptConfig

	SendDebugEmail bool
	DebugEmail     string
	SiteName       string
}

// SupportsCurrency reports whether the currency is in the allow-list.
// An empty allow-list accepts any currency.
func (m MerchantConfig) SupportsCurrency(currency string) bool {
	if len(m.Currencies) == 0 {
		return true
	}
	for _, c := range m.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}
