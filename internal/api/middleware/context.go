package middleware

import "context"

type contextKey string

const (
	walletKey     contextKey = "wallet_address"
	authWalletKey contextKey = "auth_wallet"
	requestIDKey  contextKey = "request_id"
)

// WithWallet кладет адрес кошелька запроса в контекст
func WithWallet(ctx context.Context, wallet string) context.Context {
	return context.WithValue(ctx, walletKey, wallet)
}

// WalletFromContext возвращает адрес кошелька, выставленный WalletAddress
func WalletFromContext(ctx context.Context) string {
	wallet, _ := ctx.Value(walletKey).(string)
	return wallet
}

// WithAuthWallet кладет кошелек из проверенного токена
func WithAuthWallet(ctx context.Context, wallet string) context.Context {
	return context.WithValue(ctx, authWalletKey, wallet)
}

// AuthWalletFromContext возвращает кошелек владельца токена, "" без авторизации
func AuthWalletFromContext(ctx context.Context) string {
	wallet, _ := ctx.Value(authWalletKey).(string)
	return wallet
}

// RequestIDFromContext возвращает идентификатор запроса из Logging
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
