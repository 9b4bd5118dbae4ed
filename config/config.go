// Package config provides configuration management for the PayBox gateway service.
// Configuration can be loaded from YAML files and overridden by environment variables.
package config

import (
	"fmt"
	"paybox/entity"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the PayBox gateway service.
// Values can be set via YAML configuration file or environment variables.
// Environment variables take precedence over YAML values.
type Config struct {
	IsDebug bool `yaml:"is_debug" env:"DEBUG" env-default:"false"`
	Listen  struct {
		Type     string `yaml:"type" env:"LISTEN_TYPE" env-default:"port"`
		BindIP   string `yaml:"bind_ip" env:"BIND_IP" env-default:"0.0.0.0"`
		Port     string `yaml:"port" env:"PORT" env-default:"5100"`
		TLS      bool   `yaml:"tls_enabled" env:"TLS_ENABLED" env-default:"false"`
		CertFile string `yaml:"cert_file" env:"TLS_CERT_FILE" env-default:""`
		KeyFile  string `yaml:"key_file" env:"TLS_KEY_FILE" env-default:""`
	} `yaml:"listen"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:"admin"`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:"pass"`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:""`
	} `yaml:"mongo"`
	Redis struct {
		Enabled  bool          `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
		Addr     string        `yaml:"addr" env:"REDIS_ADDR" env-default:"127.0.0.1:6379"`
		Password string        `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
		TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL" env-default:"72h"`
	} `yaml:"redis"`
	Merchant struct {
		Id               string        `yaml:"id" env:"MERCHANT_ID" env-default:""`
		Key              string        `yaml:"key" env:"MERCHANT_KEY" env-default:""`
		PassPhrase       string        `yaml:"pass_phrase" env:"MERCHANT_PASS_PHRASE" env-default:""`
		ApiHost          string        `yaml:"api_host" env:"MERCHANT_API_HOST" env-default:"api.paybox.money"`
		Language         string        `yaml:"language" env:"MERCHANT_LANGUAGE" env-default:"ru"`
		Currencies       []string      `yaml:"currencies" env:"MERCHANT_CURRENCIES" env-default:"KZT,RUR,RUB,USD,EUR,KGS,UZS"`
		TestMode         bool          `yaml:"test_mode" env:"MERCHANT_TEST_MODE" env-default:"true"`
		Timeout          time.Duration `yaml:"timeout" env:"MERCHANT_TIMEOUT" env-default:"15s"`
		VerifySignatures bool          `yaml:"verify_signatures" env:"MERCHANT_VERIFY_SIGNATURES" env-default:"true"`
	} `yaml:"merchant"`
	Site struct {
		Url       string `yaml:"url" env:"SITE_URL" env-default:"http://localhost"`
		ResultUrl string `yaml:"result_url" env:"SITE_RESULT_URL" env-default:""`
	} `yaml:"site"`
	Statuses struct {
		Success string `yaml:"success" env:"STATUS_SUCCESS" env-default:"wc-processing"`
		Failure string `yaml:"failure" env:"STATUS_FAILURE" env-default:"wc-failed"`
	} `yaml:"statuses"`
	Receipt struct {
		Enabled                bool   `yaml:"enabled" env:"RECEIPT_ENABLED" env-default:"false"`
		Version                string `yaml:"version" env:"RECEIPT_VERSION" env-default:"old_ru_1_05"`
		TaxationSystem         string `yaml:"taxation_system" env:"RECEIPT_TAXATION_SYSTEM" env-default:""`
		PaymentMethod          string `yaml:"payment_method" env:"RECEIPT_PAYMENT_METHOD" env-default:""`
		PaymentObject          string `yaml:"payment_object" env:"RECEIPT_PAYMENT_OBJECT" env-default:""`
		Tax                    string `yaml:"tax" env:"RECEIPT_TAX" env-default:""`
		NewTax                 string `yaml:"new_tax" env:"RECEIPT_NEW_TAX" env-default:""`
		InDelivery             bool   `yaml:"in_delivery" env:"RECEIPT_IN_DELIVERY" env-default:"false"`
		DeliveryPaymentObject  string `yaml:"delivery_payment_object" env:"RECEIPT_DELIVERY_PAYMENT_OBJECT" env-default:""`
		DeliveryTax            string `yaml:"delivery_tax" env:"RECEIPT_DELIVERY_TAX" env-default:""`
		DeliveryNewTax         string `yaml:"delivery_new_tax" env:"RECEIPT_DELIVERY_NEW_TAX" env-default:""`
		DeliveryGnkIkpuCode    string `yaml:"delivery_gnk_ikpu_code" env:"RECEIPT_DELIVERY_IKPU_CODE" env-default:""`
		DeliveryGnkPackageCode string `yaml:"delivery_gnk_package_code" env:"RECEIPT_DELIVERY_PACKAGE_CODE" env-default:""`
		DeliveryGnkUnitCode    string `yaml:"delivery_gnk_unit_code" env:"RECEIPT_DELIVERY_UNIT_CODE" env-default:""`
	} `yaml:"receipt"`
	Mail struct {
		SendDebugEmail bool   `yaml:"send_debug_email" env:"MAIL_SEND_DEBUG" env-default:"false"`
		DebugEmail     string `yaml:"debug_email" env:"MAIL_DEBUG_EMAIL" env-default:""`
		SiteName       string `yaml:"site_name" env:"MAIL_SITE_NAME" env-default:""`
		SmtpHost       string `yaml:"smtp_host" env:"MAIL_SMTP_HOST" env-default:""`
		SmtpPort       string `yaml:"smtp_port" env:"MAIL_SMTP_PORT" env-default:"587"`
		User           string `yaml:"user" env:"MAIL_USER" env-default:""`
		Password       string `yaml:"password" env:"MAIL_PASSWORD" env-default:""`
		From           string `yaml:"from" env:"MAIL_FROM" env-default:""`
	} `yaml:"mail"`
}

var instance *Config
var once sync.Once

// GetConfig loads configuration from the specified YAML file path.
// Configuration values can be overridden by environment variables.
// This function uses a singleton pattern and only loads the config once.
//
// Example:
//
//	cfg, err := config.GetConfig("config.yml")
//	if err != nil {
//	    log.Fatal(err)
//	}
func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("load config: %w; %s", err, desc)
			instance = nil
			return
		}
		if err = instance.Validate(); err != nil {
			instance = nil
		}
	})
	return instance, err
}

// Validate checks the settings the processor cannot work without.
func (c *Config) Validate() error {
	if c.Merchant.Id == "" {
		return fmt.Errorf("merchant id is required")
	}
	if _, err := strconv.Atoi(c.Merchant.Id); err != nil {
		return fmt.Errorf("merchant id must be numeric: %s", c.Merchant.Id)
	}
	if c.Merchant.Key == "" {
		return fmt.Errorf("merchant key is required")
	}
	if c.Merchant.ApiHost == "" {
		return fmt.Errorf("merchant api host is required")
	}
	switch entity.ReceiptFormat(c.Receipt.Version) {
	case entity.ReceiptLegacy, entity.ReceiptRegionalV2, entity.ReceiptAlternateRegional:
	default:
		return fmt.Errorf("unknown receipt version: %s", c.Receipt.Version)
	}
	return nil
}

// MerchantConfig builds the immutable view of the configuration shared by
// the request builder, the gateway client and the reconciler.
func (c *Config) MerchantConfig() entity.MerchantConfig {
	merchantId, _ := strconv.Atoi(c.Merchant.Id)

	currencies := make([]string, 0, len(c.Merchant.Currencies))
	for _, currency := range c.Merchant.Currencies {
		if currency = strings.ToUpper(strings.TrimSpace(currency)); currency != "" {
			currencies = append(currencies, currency)
		}
	}

	site := strings.TrimRight(c.Site.Url, "/")
	resultUrl := c.Site.ResultUrl
	if resultUrl == "" {
		resultUrl = site + "/notify"
	}

	return entity.MerchantConfig{
		MerchantId:       merchantId,
		MerchantKey:      c.Merchant.Key,
		PassPhrase:       c.Merchant.PassPhrase,
		ApiHost:          c.Merchant.ApiHost,
		Language:         c.Merchant.Language,
		Currencies:       currencies,
		TestMode:         c.Merchant.TestMode,
		Timeout:          c.Merchant.Timeout,
		VerifySignatures: c.Merchant.VerifySignatures,
		SiteUrl:          site,
		ResultUrl:        resultUrl,
		SuccessStatus:    entity.NormalizeStatus(c.Statuses.Success),
		FailureStatus:    entity.NormalizeStatus(c.Statuses.Failure),
		Receipt: entity.ReceiptConfig{
			Enabled:               c.Receipt.Enabled,
			Format:                entity.ReceiptFormat(c.Receipt.Version),
			TaxationSystem:        c.Receipt.TaxationSystem,
			PaymentMethod:         c.Receipt.PaymentMethod,
			PaymentObject:         c.Receipt.PaymentObject,
			Tax:                   c.Receipt.Tax,
			NewTax:                c.Receipt.NewTax,
			InDelivery:            c.Receipt.InDelivery,
			DeliveryPaymentObject: c.Receipt.DeliveryPaymentObject,
			DeliveryTax:           c.Receipt.DeliveryTax,
			DeliveryNewTax:        c.Receipt.DeliveryNewTax,
			DeliveryIkpuCode:      c.Receipt.DeliveryGnkIkpuCode,
			DeliveryPackageCode:   c.Receipt.DeliveryGnkPackageCode,
			DeliveryUnitCode:      c.Receipt.DeliveryGnkUnitCode,
		},
		SendDebugEmail: c.Mail.SendDebugEmail,
		DebugEmail:     c.Mail.DebugEmail,
		SiteName:       c.Mail.SiteName,
	}
}
