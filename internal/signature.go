package internal

import (
	"crypto/subtle"
	"fmt"
	"net/url"
	"paybox/entity"
	"paybox/services"
	"sort"
	"strings"

	"gitee.com/golang-module/dongle"
)

const (
	passPhraseKey   = "passphrase"
	signatureKey    = "signature"
	signatureSep    = ";"
	canonicalSep    = "&"
	initPaymentPath = "init_payment.php"
)

// Signer produces the two signature forms the processor accepts. MD5 is
// required by the processor's wire protocol.
type Signer struct {
	merchantKey string
	passPhrase  string
	logger      services.LogHandler
}

func NewSigner(conf entity.MerchantConfig) *Signer {
	return &Signer{
		merchantKey: conf.MerchantKey,
		passPhrase:  conf.PassPhrase,
	}
}

func (s *Signer) SetLogger(logger services.LogHandler) {
	s.logger = logger
}

// Canonicalize builds the "&" joined form of top-level parameters.
//
// When sortBeforeMerge is set, the pass-phrase joins the set as "passphrase"
// before the keys are sorted byte-wise, and the trailing separator is removed.
// Otherwise keys keep their order and the raw pass-phrase is appended as the
// last segment. Values are URL-encoded, "signature" is never included, and
// with skipEmpty the values "" and "0" are left out.
func (s *Signer) Canonicalize(params entity.Params, sortBeforeMerge, skipEmpty bool) string {
	fields := make(entity.Params, 0, len(params)+1)
	fields = append(fields, params...)

	if sortBeforeMerge {
		if s.passPhrase != "" {
			fields.Set(passPhraseKey, s.passPhrase)
		}
		sort.SliceStable(fields, func(i, j int) bool {
			return fields[i].Key < fields[j].Key
		})
	}

	var sb strings.Builder
	for _, field := range fields {
		if field.Key == signatureKey {
			continue
		}
		value := entity.FormatValue(field.Value)
		if skipEmpty && isEmptyValue(value) {
			continue
		}
		sb.WriteString(field.Key)
		sb.WriteString("=")
		sb.WriteString(urlEncode(value))
		sb.WriteString(canonicalSep)
	}
	result := sb.String()

	if !sortBeforeMerge && s.passPhrase != "" {
		return result + passPhraseKey + "=" + s.passPhrase
	}
	return strings.TrimSuffix(result, canonicalSep)
}

// Sign flattens the tree, sorts the flat keys and hashes
// "endpoint;v1;...;vn;merchantKey".
func (s *Signer) Sign(endpoint string, params entity.Params) string {
	flat := params.Flatten()
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+2)
	parts = append(parts, endpoint)
	for _, key := range keys {
		parts = append(parts, flat[key])
	}
	parts = append(parts, s.merchantKey)

	return md5Hex(strings.Join(parts, signatureSep))
}

// Verify compares the received signature with the recomputed one.
func (s *Signer) Verify(received, recomputed string) bool {
	valid := received != "" && subtle.ConstantTimeCompare([]byte(received), []byte(recomputed)) == 1
	if s.logger != nil {
		if valid {
			s.logger.Debug("signature verified")
		} else {
			s.logger.Warn(fmt.Sprintf("signature mismatch: received %s; expected %s", secret(received), secret(recomputed)))
		}
	}
	return valid
}

// VerifyValues checks pg_sig of values received on the given endpoint.
func (s *Signer) VerifyValues(endpoint string, values map[string]string) bool {
	keys := make([]string, 0, len(values))
	for key := range values {
		if key != "pg_sig" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	params := make(entity.Params, 0, len(keys))
	for _, key := range keys {
		params.Add(key, values[key])
	}
	return s.Verify(values["pg_sig"], s.Sign(endpoint, params))
}

func md5Hex(text string) string {
	return dongle.Encrypt.FromString(text).ByMd5().ToHexString()
}

// isEmptyValue follows the processor's notion of an empty field.
func isEmptyValue(value string) bool {
	return value == "" || value == "0"
}

// urlEncode escapes like url.QueryEscape, and also escapes "~".
func urlEncode(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "~", "%7E")
}
