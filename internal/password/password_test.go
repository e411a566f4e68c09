package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("Correct#Horse9Battery")
	require.NoError(t, err)
	assert.NotEqual(t, "Correct#Horse9Battery", hash)
	assert.True(t, strings.HasPrefix(hash, "$2"))

	assert.True(t, Verify("Correct#Horse9Battery", hash))
	assert.False(t, Verify("otra-cosa", hash))
	assert.False(t, Verify("Correct#Horse9Battery", "no-es-un-hash"))
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken(32)
	require.NoError(t, err)
	b, err := GenerateToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	// URL-safe alphabet, no padding.
	assert.NotContains(t, a, "=")
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")

	t.Run("non-positive size falls back", func(t *testing.T) {
		tok, err := GenerateToken(0)
		require.NoError(t, err)
		assert.NotEmpty(t, tok)
	})
}

func TestCheckStrength(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		username  string
		email     string
		want      error
	}{
		{"acceptable", "Correct#Horse9Battery", "analista", "ana", nil},
		{"too short", "Ab1#xyz", "", "", ErrTooShort},
		{"too long", strings.Repeat("Ab1#Ab1#", 17), "", "", ErrTooLong},
		{"missing upper", "correct#horse9battery", "", "", ErrMissingUpper},
		{"missing lower", "CORRECT#HORSE9BATTERY", "", "", ErrMissingLower},
		{"missing digit", "Correct#HorseBattery", "", "", ErrMissingDigit},
		{"missing symbol", "CorrectHorse9Battery", "", "", ErrMissingSymbol},
		{"weak sequence", "MiPassword9#Segura", "", "", ErrWeakSubstring},
		{"keyboard walk", "Xx1#qwertyUUU", "", "", ErrWeakSubstring},
		{"role word allowed", "Admin123456!", "fundadora", "", nil},
		{"role word inside passphrase", "Issued#ByAdmin9Phrase", "operadora", "", nil},
		{"contains username", "Analista#2024xyz", "analista", "", ErrContainsUser},
		{"contains email local part", "Maria.Lopez#2024x", "", "maria.lopez", ErrContainsEmail},
		{"short username skipped", "Krm7#plvndQsx", "kr", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckStrength(tt.candidate, tt.username, tt.email)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestInputChecks(t *testing.T) {
	t.Run("sql signatures", func(t *testing.T) {
		assert.True(t, ContainsSQLInjection("1 UNION SELECT password FROM usuarios"))
		assert.True(t, ContainsSQLInjection("x; DROP TABLE usuarios"))
		assert.True(t, ContainsSQLInjection("admin' --"))
		assert.False(t, ContainsSQLInjection("Selección de señales"))
	})

	t.Run("xss signatures", func(t *testing.T) {
		assert.True(t, ContainsXSS("<script>alert(1)</script>"))
		assert.True(t, ContainsXSS("a onerror=alert(1)"))
		assert.True(t, ContainsXSS("javascript:void(0)"))
		assert.False(t, ContainsXSS("Operador <nivel 2>"))
	})

	t.Run("safe text", func(t *testing.T) {
		assert.True(t, SafeText(""))
		assert.True(t, SafeText("Analista de monitoreo"))
		assert.False(t, SafeText("<script>x</script>"))
	})
}
