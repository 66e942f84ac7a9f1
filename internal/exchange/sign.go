package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"
)

// Binance signed endpoints take the full query string, an added millisecond
// timestamp, and an HMAC-SHA256 signature of the encoded parameters.

const recvWindowMS = 5000

func hmacSHA256(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// signParams stamps and signs a parameter set for a Binance signed endpoint.
func signParams(secret string, params url.Values) url.Values {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.Itoa(recvWindowMS))
	params.Set("signature", hmacSHA256(secret, params.Encode()))
	return params
}
