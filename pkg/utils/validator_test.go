package utils

import (
	"errors"
	"testing"
)

const (
	testDydxAddress  = "dydx1e2tczyk2rw7u47kzxxee5g7ufkncdmlc7c779v"
	testDydxAddress2 = "dydx18c37s9sq89v55vuffajkfcd3xj9m67sq2tva8a"
	testEthAddress   = "0x52908400098527886E0F7030069857D2E4169EE7"
)

func TestNormalizeMarket(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already normalized", "BTC-USD", "BTC-USD"},
		{"lowercase", "eth-usd", "ETH-USD"},
		{"with slash", "btc/usd", "BTC-USD"},
		{"with underscore", "SOL_USD", "SOL-USD"},
		{"without separator", "btcusd", "BTC-USD"},
		{"spaces trimmed", "  link-usd ", "LINK-USD"},
		{"bare usd untouched", "USD", "USD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeMarket(tt.input); got != tt.expected {
				t.Errorf("NormalizeMarket(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidateMarket(t *testing.T) {
	tests := []struct {
		name    string
		market  string
		wantErr bool
	}{
		{"valid BTC-USD", "BTC-USD", false},
		{"valid lowercase", "eth-usd", false},
		{"valid with numbers", "1INCH-USD", false},
		{"valid no separator", "SOLUSD", false},

		{"empty", "", true},
		{"no quote", "BTC", true},
		{"special chars", "BTC@-USD", true},
		{"spaces inside", "BTC - USD", true},
		{"too long base", "ABCDEFGHIJKLMNOPQRSTU-USD", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMarket(tt.market)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMarket(%q) error = %v, wantErr %v", tt.market, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidMarket) {
				t.Errorf("ValidateMarket(%q) error does not wrap ErrInvalidMarket", tt.market)
			}
		})
	}
}

func TestValidateWalletAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"eth checksum", testEthAddress, false},
		{"eth lowercase", "0x52908400098527886e0f7030069857d2e4169ee7", false},
		{"dydx", testDydxAddress, false},
		{"dydx second", testDydxAddress2, false},
		{"dydx uppercase", "DYDX1E2TCZYK2RW7U47KZXXEE5G7UFKNCDMLC7C779V", false},

		{"empty", "", true},
		{"eth without prefix", "52908400098527886E0F7030069857D2E4169EE7", true},
		{"eth too short", "0x5290840009852788", true},
		{"eth non-hex", "0xZZ908400098527886E0F7030069857D2E4169EE7", true},
		{"dydx bad checksum", "dydx1e2tczyk2rw7u47kzxxee5g7ufkncdmlc7c779q", true},
		{"dydx mixed case", "dydx1E2tczyk2rw7u47kzxxee5g7ufkncdmlc7c779v", true},
		{"dydx invalid char", "dydx1b2tczyk2rw7u47kzxxee5g7ufkncdmlc7c779v", true},
		{"dydx too short", "dydx1e2tczyk2rw7u47", true},
		{"cosmos prefix", "cosmos1e2tczyk2rw7u47kzxxee5g7ufkncdmlc7c7", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWalletAddress(tt.address)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWalletAddress(%q) error = %v, wantErr %v", tt.address, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("ValidateWalletAddress(%q) error does not wrap ErrInvalidAddress", tt.address)
			}
		})
	}
}

func TestNormalizeWalletAddress(t *testing.T) {
	if got := NormalizeWalletAddress("0x52908400098527886e0f7030069857d2e4169ee7"); got != testEthAddress {
		t.Errorf("NormalizeWalletAddress(eth) = %q, want %q", got, testEthAddress)
	}
	if got := NormalizeWalletAddress("DYDX1E2TCZYK2RW7U47KZXXEE5G7UFKNCDMLC7C779V"); got != testDydxAddress {
		t.Errorf("NormalizeWalletAddress(dydx) = %q, want %q", got, testDydxAddress)
	}
}

func TestIsDydxAddress(t *testing.T) {
	if !IsDydxAddress(testDydxAddress) {
		t.Error("IsDydxAddress(dydx) = false, want true")
	}
	if IsDydxAddress(testEthAddress) {
		t.Error("IsDydxAddress(eth) = true, want false")
	}
}

func TestParsePositiveDecimal(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{"integer", "42000", "42000", false},
		{"fraction", "0.001", "0.001", false},
		{"padded", " 5 ", "5", false},
		{"zero", "0", "", true},
		{"negative", "-1", "", true},
		{"empty", "", "", true},
		{"garbage", "abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePositiveDecimal("size", tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePositiveDecimal(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidDecimal) {
					t.Errorf("error does not wrap ErrInvalidDecimal: %v", err)
				}
				return
			}
			if got.String() != tt.want {
				t.Errorf("ParsePositiveDecimal(%q) = %s, want %s", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseNonNegativeDecimal(t *testing.T) {
	if d, err := ParseNonNegativeDecimal("entry_price", ""); err != nil || !d.IsZero() {
		t.Errorf("empty value = (%s, %v), want (0, nil)", d, err)
	}
	if d, err := ParseNonNegativeDecimal("entry_price", "0"); err != nil || !d.IsZero() {
		t.Errorf("zero value = (%s, %v), want (0, nil)", d, err)
	}
	if _, err := ParseNonNegativeDecimal("entry_price", "-0.5"); err == nil {
		t.Error("negative value should fail")
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		value   string
		want    int
		wantErr bool
	}{
		{"", 50, false},
		{"10", 10, false},
		{"1000", 100, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"ten", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := ParseLimit(tt.value, 50, 100)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLimit(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLimit(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors

	if errs.Err() != nil {
		t.Error("empty ValidationErrors.Err() should be nil")
	}

	errs.Add("market", "required")
	errs.AddError("size", nil)
	errs.AddError("leverage", ErrInvalidDecimal)

	if !errs.HasErrors() {
		t.Error("ValidationErrors.HasErrors() = false, want true")
	}
	if len(errs) != 2 {
		t.Errorf("ValidationErrors length = %d, want 2", len(errs))
	}
	if got := errs.Error(); got != "market: required; leverage: invalid decimal value" {
		t.Errorf("ValidationErrors.Error() = %q", got)
	}
}

func BenchmarkValidateDydxAddress(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = ValidateDydxAddress(testDydxAddress)
	}
}

func BenchmarkNormalizeMarket(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NormalizeMarket("btc/usd")
	}
}
