package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

func (c *Client) mac(orderID, paymentID string) []byte {
	m := hmac.New(sha256.New, []byte(c.keySecret))
	m.Write([]byte(orderID + "|" + paymentID))
	return m.Sum(nil)
}

// Sign возвращает подпись, которую шлюз ставит на успешный платёж:
// hex(HMAC-SHA256(secret, orderID|paymentID)).
func (c *Client) Sign(orderID, paymentID string) string {
	return hex.EncodeToString(c.mac(orderID, paymentID))
}

// VerifySignature проверяет подпись платежа точным сравнением за постоянное время.
// Сумма и валюта из тела запроса в проверке не участвуют.
func (c *Client) VerifySignature(orderID, paymentID, signature string) bool {
	if c.keySecret == "" || orderID == "" || paymentID == "" {
		return false
	}
	return hmac.Equal([]byte(c.Sign(orderID, paymentID)), []byte(signature))
}
