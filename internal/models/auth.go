package models

import "time"

// LoginRequest - вход по подписи кошелька (EIP-191 personal_sign)
type LoginRequest struct {
	Address   string `json:"address"`   // 0x...
	Message   string `json:"message"`   // подписанное сообщение, содержит nonce
	Signature string `json:"signature"` // 0x + 65 байт hex
}

// LoginResponse - выданный токен доступа
type LoginResponse struct {
	Token     string    `json:"token"`
	Address   string    `json:"address"`
	ExpiresAt time.Time `json:"expires_at"`
}
