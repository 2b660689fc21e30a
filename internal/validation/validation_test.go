package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidAccount(t *testing.T) {
	valid := []string{
		"GB29NWBK60161331926819",
		"DE89370400440532013000",
		"gb29nwbk60161331926819", // case-normalized before matching
		"  GB29NWBK60161331926819  ",
	}
	for _, acct := range valid {
		assert.True(t, IsValidAccount(acct), acct)
	}

	invalid := []string{
		"",
		"1234567890",
		"GB29",                     // too short
		"GB29NWBK-6016-1331-9268",  // separators not allowed
		"XXGB29NWBK60161331926819", // check digits missing
	}
	for _, acct := range invalid {
		assert.False(t, IsValidAccount(acct), acct)
	}
}

func TestIsValidCurrency(t *testing.T) {
	assert.True(t, IsValidCurrency("GBP"))
	assert.True(t, IsValidCurrency("EUR"))
	assert.False(t, IsValidCurrency("gbp"))
	assert.False(t, IsValidCurrency("POUND"))
	assert.False(t, IsValidCurrency(""))
}

func TestIsValidChannel(t *testing.T) {
	assert.True(t, IsValidChannel("web"))
	assert.True(t, IsValidChannel("mobile"))
	assert.True(t, IsValidChannel("branch"))
	assert.False(t, IsValidChannel("carrier-pigeon"))
	assert.False(t, IsValidChannel(""))
}

func TestNormalizeAccount(t *testing.T) {
	assert.Equal(t, "GB29NWBK60161331926819", NormalizeAccount(" gb29 nwbk 6016 1331 9268 19 "))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello  ", 100))
	assert.Equal(t, "abc", SanitizeString("abcdef", 3))
	assert.Equal(t, "ab", SanitizeString("a\x00b", 100))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	errs := Validate(
		ValidAccount("srcAccount", "nope"),
		ValidCurrency("currency", "POUNDS"),
		ValidChannel("channel", "fax"),
		PositiveAmount("amount", -1),
	)
	assert.Len(t, errs, 4)
	assert.NotEmpty(t, errs.Error())

	errs = Validate(
		ValidAccount("srcAccount", "GB29NWBK60161331926819"),
		ValidCurrency("currency", "GBP"),
		ValidChannel("channel", "web"),
		PositiveAmount("amount", 10),
	)
	assert.Empty(t, errs)
}
