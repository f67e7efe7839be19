package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// 受け取ったバイト列そのままにHMAC-SHA256をかけてhexで返す。
// 同期検証は "<razorpayOrderId>|<paymentId>"、webhookは生ボディが対象
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// 比較はhmac.Equalで一定時間。どのバイトで食い違ったかは漏らさない
func VerifySignature(payload []byte, signature string, secret string) bool {
	expected := Sign(payload, secret)
	presented := strings.ToLower(strings.TrimSpace(signature))
	return hmac.Equal([]byte(expected), []byte(presented))
}
