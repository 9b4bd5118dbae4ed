package config

import (
	"os"
	"path/filepath"
	"paybox/entity"
	"testing"
	"time"
)

func validConfig() *Config {
	c := &Config{}
	c.Merchant.Id = "12345"
	c.Merchant.Key = "secret"
	c.Merchant.ApiHost = "api.paybox.money"
	c.Receipt.Version = string(entity.ReceiptLegacy)
	return c
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		change  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing merchant id", func(c *Config) { c.Merchant.Id = "" }, true},
		{"non numeric merchant id", func(c *Config) { c.Merchant.Id = "abc" }, true},
		{"missing key", func(c *Config) { c.Merchant.Key = "" }, true},
		{"missing api host", func(c *Config) { c.Merchant.ApiHost = "" }, true},
		{"unknown receipt version", func(c *Config) { c.Receipt.Version = "kz_2_0" }, true},
		{"alternate receipt version", func(c *Config) { c.Receipt.Version = "uz_1_0" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.change(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMerchantConfig(t *testing.T) {
	c := validConfig()
	c.Merchant.Currencies = []string{"kzt", " usd ", ""}
	c.Merchant.Timeout = 20 * time.Second
	c.Site.Url = "https://shop.example.com/"
	c.Statuses.Success = "wc-processing"
	c.Statuses.Failure = "wc-failed"
	c.Receipt.Version = string(entity.ReceiptAlternateRegional)
	c.Receipt.DeliveryGnkIkpuCode = "10112006002000000"

	m := c.MerchantConfig()

	if m.MerchantId != 12345 || m.MerchantKey != "secret" || m.Timeout != 20*time.Second {
		t.Errorf("unexpected merchant: %+v", m)
	}
	if len(m.Currencies) != 2 || m.Currencies[0] != "KZT" || m.Currencies[1] != "USD" {
		t.Errorf("currencies = %v", m.Currencies)
	}
	if m.SiteUrl != "https://shop.example.com" || m.ResultUrl != "https://shop.example.com/notify" {
		t.Errorf("urls = %s, %s", m.SiteUrl, m.ResultUrl)
	}
	if m.SuccessStatus != entity.StatusProcessing || m.FailureStatus != entity.StatusFailed {
		t.Errorf("statuses = %s, %s", m.SuccessStatus, m.FailureStatus)
	}
	if m.Receipt.Format != entity.ReceiptAlternateRegional || m.Receipt.DeliveryIkpuCode != "10112006002000000" {
		t.Errorf("receipt = %+v", m.Receipt)
	}

	c.Site.ResultUrl = "https://hooks.example.com/paybox/result"
	if m = c.MerchantConfig(); m.ResultUrl != "https://hooks.example.com/paybox/result" {
		t.Errorf("result url = %s", m.ResultUrl)
	}
}

func TestGetConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := []byte(`merchant:
  id: "555"
  key: "k"
  currencies: [KZT]
site:
  url: https://shop.example.com
receipt:
  enabled: true
  version: ru_1_05
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := GetConfig(path)
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if c.Merchant.Id != "555" || c.Merchant.ApiHost != "api.paybox.money" || c.Listen.Port != "5100" {
		t.Errorf("unexpected config: %+v", c.Merchant)
	}
	if !c.Receipt.Enabled || c.Receipt.Version != "ru_1_05" {
		t.Errorf("unexpected receipt: %+v", c.Receipt)
	}
	if again, _ := GetConfig("other.yml"); again != c {
		t.Error("config must be loaded once")
	}
}
