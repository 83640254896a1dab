package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt"

	"github.com/temitopeohassan/perpraid/internal/models"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// DefaultTokenTTL - срок жизни токена доступа
const DefaultTokenTTL = 24 * time.Hour

const tokenIssuer = "perpraid"

// AuthService выдает и проверяет токены доступа
//
// Вход: кошелек подписывает сообщение (personal_sign, EIP-191),
// сервис восстанавливает адрес из подписи и выдает JWT (HS256) с адресом в sub.
// Сообщение должно содержать адрес кошелька.
type AuthService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	logger *utils.Logger
}

// NewAuthService создает новый экземпляр AuthService.
// Пустой secret отключает вход: Login и ValidateToken возвращают ErrAuthNotConfigured.
func NewAuthService(secret string, ttl time.Duration, logger *utils.Logger) *AuthService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if logger == nil {
		logger = utils.L()
	}
	return &AuthService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		logger: logger.WithComponent("auth_service"),
	}
}

// Enabled - настроен ли секрет подписи токенов
func (s *AuthService) Enabled() bool {
	return len(s.secret) > 0
}

// Login проверяет подпись кошелька и выдает токен
func (s *AuthService) Login(req *models.LoginRequest) (*models.LoginResponse, error) {
	if !s.Enabled() {
		return nil, ErrAuthNotConfigured
	}
	if req == nil {
		return nil, invalidRequest("body", errors.New("request body is required"))
	}

	var verrs utils.ValidationErrors
	verrs.AddError("address", utils.ValidateEthAddress(req.Address))
	if strings.TrimSpace(req.Message) == "" {
		verrs.Add("message", "is required")
	} else if !strings.Contains(strings.ToLower(req.Message), strings.ToLower(req.Address)) {
		verrs.Add("message", "must contain the wallet address")
	}
	if req.Signature == "" {
		verrs.Add("signature", "is required")
	}
	if verrs.HasErrors() {
		return nil, invalidFields(verrs)
	}

	signer, err := recoverSigner(req.Message, req.Signature)
	if err != nil {
		s.logger.Debug("signature recovery failed", utils.Wallet(req.Address), utils.Err(err))
		return nil, ErrInvalidSignature
	}
	if signer != common.HexToAddress(req.Address) {
		return nil, ErrInvalidSignature
	}

	address := strings.ToLower(signer.Hex())
	now := s.now()
	expiresAt := now.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &jwt.StandardClaims{
		Subject:   address,
		Issuer:    tokenIssuer,
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Info("wallet logged in", utils.Wallet(address))

	return &models.LoginResponse{
		Token:     signed,
		Address:   address,
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// ValidateToken проверяет токен и возвращает адрес кошелька из sub
func (s *AuthService) ValidateToken(tokenString string) (string, error) {
	if !s.Enabled() {
		return "", ErrAuthNotConfigured
	}

	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Issuer != tokenIssuer || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// recoverSigner восстанавливает адрес, подписавший сообщение через personal_sign
func recoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, err
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	// кошельки отдают v = 27/28, SigToPub ожидает 0/1
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(personalHash(message), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// personalHash - хэш сообщения с префиксом EIP-191
func personalHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}
