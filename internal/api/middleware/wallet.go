package middleware

import (
	"net/http"
	"strings"

	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// WalletHeader - заголовок с адресом кошелька
const WalletHeader = "X-Wallet-Address"

// WalletAddress - middleware извлечения адреса кошелька
//
// Адрес берется из X-Wallet-Address или query параметра address.
// Без адреса используется кошелек из токена, если запрос авторизован.
//
// Ответы:
// - 400 {"error": "Wallet address required"} если адреса нет и required
// - 400 {"error": "Invalid wallet address"} если формат не 0x... и не dydx1...
// - 403 {"error": "Wallet address does not match token"} если адрес чужой
func WalletAddress(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wallet := requestWallet(r)
			authWallet := AuthWalletFromContext(r.Context())

			if wallet == "" {
				wallet = authWallet
			}
			if wallet == "" {
				if required {
					writeError(w, http.StatusBadRequest, errorBody{Error: "Wallet address required", Code: "INVALID_REQUEST"})
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if err := utils.ValidateWalletAddress(wallet); err != nil {
				writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid wallet address", Code: "INVALID_REQUEST"})
				return
			}
			wallet = utils.NormalizeWalletAddress(wallet)

			if authWallet != "" && !strings.EqualFold(authWallet, wallet) {
				writeError(w, http.StatusForbidden, errorBody{Error: "Wallet address does not match token", Code: "FORBIDDEN"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithWallet(r.Context(), wallet)))
		})
	}
}

func requestWallet(r *http.Request) string {
	if wallet := strings.TrimSpace(r.Header.Get(WalletHeader)); wallet != "" {
		return wallet
	}
	return strings.TrimSpace(r.URL.Query().Get("address"))
}
