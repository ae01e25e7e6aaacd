package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// signBody returns base64(HMAC-SHA256(secret, body)) for the X-Wforce-Signature
// header.
func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// deliveryID returns base64(SHA-256(timestamp || id || event_name)) for the
// X-Wforce-Delivery header, a deterministic delivery identifier distinct
// from the HMAC signature.
func deliveryID(timestamp string, id uint32, event Event) string {
	h := sha256.New()
	h.Write([]byte(timestamp))
	h.Write([]byte(fmt.Sprintf("%d", id)))
	h.Write([]byte(event))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// wrapKafka wraps body as a single-record Kafka REST proxy payload when the
// hook's config requests it.
func wrapKafka(body []byte) []byte {
	return []byte(`{"records":[{"value":` + string(body) + `}]}`)
}
