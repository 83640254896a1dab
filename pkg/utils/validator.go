package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// validator.go - валидация входных данных API
//
// Назначение:
// Проверка и нормализация того, что приходит от клиента,
// до обращения к индексеру и калькулятору.
//
// Функции:
// - NormalizeMarket / ValidateMarket: тикер dYdX (BTC-USD)
// - ValidateWalletAddress: EVM адрес (0x...) или адрес dYdX Chain (dydx1...)
// - ParsePositiveDecimal / ParseNonNegativeDecimal: числа из JSON-строк
// - ParseLimit: параметр limit пагинации
//
// Возвращает error с описанием проблемы или nil

var (
	ErrInvalidMarket  = errors.New("invalid market")
	ErrInvalidAddress = errors.New("invalid wallet address")
	ErrInvalidDecimal = errors.New("invalid decimal value")
	ErrInvalidLimit   = errors.New("invalid limit")
)

var marketRegex = regexp.MustCompile(`^[A-Z0-9]{1,20}-[A-Z]{2,6}$`)

// ============================================================
// Рынки
// ============================================================

// NormalizeMarket приводит тикер к виду индексера: верхний регистр, разделитель "-".
// "btc/usd", "BTC_USD" и "btcusd" дают "BTC-USD".
func NormalizeMarket(market string) string {
	m := strings.ToUpper(strings.TrimSpace(market))
	m = strings.NewReplacer("/", "-", "_", "-").Replace(m)
	if !strings.Contains(m, "-") && len(m) > 3 && strings.HasSuffix(m, "USD") {
		m = m[:len(m)-3] + "-USD"
	}
	return m
}

// ValidateMarket проверяет тикер после нормализации
func ValidateMarket(market string) error {
	if market == "" {
		return fmt.Errorf("%w: empty", ErrInvalidMarket)
	}
	if !marketRegex.MatchString(NormalizeMarket(market)) {
		return fmt.Errorf("%w: %q", ErrInvalidMarket, market)
	}
	return nil
}

// IsValidMarket - булев вариант ValidateMarket
func IsValidMarket(market string) bool {
	return ValidateMarket(market) == nil
}

// ============================================================
// Адреса кошельков
// ============================================================

const (
	dydxPrefix        = "dydx"
	dydxAddressLength = 43 // "dydx" + "1" + 32 символа данных + 6 символов checksum
	bech32Charset     = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
)

// ValidateEthAddress проверяет EVM адрес с префиксом 0x
func ValidateEthAddress(address string) error {
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		return fmt.Errorf("%w: missing 0x prefix", ErrInvalidAddress)
	}
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return nil
}

// ValidateDydxAddress проверяет bech32 адрес dYdX Chain, включая checksum
func ValidateDydxAddress(address string) error {
	addr := strings.ToLower(address)
	if addr != address && strings.ToUpper(address) != address {
		return fmt.Errorf("%w: mixed case", ErrInvalidAddress)
	}
	if len(addr) != dydxAddressLength || !strings.HasPrefix(addr, dydxPrefix+"1") {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	data := make([]byte, 0, len(addr)-len(dydxPrefix)-1)
	for _, c := range addr[len(dydxPrefix)+1:] {
		idx := strings.IndexRune(bech32Charset, c)
		if idx < 0 {
			return fmt.Errorf("%w: invalid character %q", ErrInvalidAddress, c)
		}
		data = append(data, byte(idx))
	}

	if bech32Polymod(append(bech32HRPExpand(dydxPrefix), data...)) != 1 {
		return fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	return nil
}

// ValidateWalletAddress принимает любой из двух форматов
func ValidateWalletAddress(address string) error {
	address = strings.TrimSpace(address)
	switch {
	case address == "":
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	case strings.HasPrefix(strings.ToLower(address), dydxPrefix+"1"):
		return ValidateDydxAddress(address)
	default:
		return ValidateEthAddress(address)
	}
}

// NormalizeWalletAddress: EVM адрес в checksum-формате, dYdX адрес в нижнем регистре.
// Адрес должен быть предварительно проверен ValidateWalletAddress.
func NormalizeWalletAddress(address string) string {
	address = strings.TrimSpace(address)
	if strings.HasPrefix(strings.ToLower(address), dydxPrefix+"1") {
		return strings.ToLower(address)
	}
	return common.HexToAddress(address).Hex()
}

// IsDydxAddress - адрес субаккаунта dYdX (только такие адреса есть в индексере)
func IsDydxAddress(address string) bool {
	return ValidateDydxAddress(address) == nil
}

func bech32Polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func bech32HRPExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]>>5)
	}
	out = append(out, 0)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]&31)
	}
	return out
}

// ============================================================
// Числа
// ============================================================

// ParsePositiveDecimal разбирает строку как число > 0
func ParsePositiveDecimal(field, value string) (decimal.Decimal, error) {
	d, err := parseDecimal(field, value)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s must be positive", ErrInvalidDecimal, field)
	}
	return d, nil
}

// ParseNonNegativeDecimal разбирает строку как число >= 0. Пустая строка дает 0.
func ParseNonNegativeDecimal(field, value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, nil
	}
	d, err := parseDecimal(field, value)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s must not be negative", ErrInvalidDecimal, field)
	}
	return d, nil
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, fmt.Errorf("%w: %s is required", ErrInvalidDecimal, field)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s=%q", ErrInvalidDecimal, field, value)
	}
	return d, nil
}

// ParseLimit разбирает limit из query. Пустое значение дает def, больше max обрезается.
func ParseLimit(value string, def, max int) (int, error) {
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLimit, value)
	}
	if n > max {
		n = max
	}
	return n, nil
}

// ============================================================
// Накопление ошибок
// ============================================================

// ValidationError - ошибка конкретного поля
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors собирает ошибки всех полей запроса
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Add добавляет ошибку поля
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// AddError добавляет ошибку, если она не nil
func (v *ValidationErrors) AddError(field string, err error) {
	if err != nil {
		v.Add(field, err.Error())
	}
}

// HasErrors - есть ли ошибки
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// Err возвращает nil при отсутствии ошибок
func (v ValidationErrors) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}
