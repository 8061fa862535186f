package security

import "strings"

// Test secrets for unit tests only. Do not use in production.
const (
	testMasterSecret = "test-master-secret-0123456789abcdef"
	testOtherSecret  = "another-secret-fedcba9876543210-xyz"
)

// NewTestCodec returns a Codec using keys derived from a fixed test secret.
// For unit tests only. Callers must not use in production.
func NewTestCodec() (*Codec, error) {
	keys, err := DeriveSigningKeys(testMasterSecret, "")
	if err != nil {
		return nil, err
	}
	return NewCodec(keys, "test-issuer", "test-audience")
}

// NewForeignTestCodec returns a Codec with the same issuer and audience as
// NewTestCodec but different keys. For unit tests only.
func NewForeignTestCodec() (*Codec, error) {
	keys, err := DeriveSigningKeys(testOtherSecret, "")
	if err != nil {
		return nil, err
	}
	return NewCodec(keys, "test-issuer", "test-audience")
}

const base64URLAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// RespelledTestTokens returns alternate spellings of token that a lenient
// decoder would read as the same token: surrounding whitespace, an embedded
// newline, and a flipped padding bit in the last signature character.
// For unit tests only.
func RespelledTestTokens(token string) map[string]string {
	out := map[string]string{
		"leading space":    " " + token,
		"trailing newline": token + "\n",
		"trailing crlf":    token + "\r\n",
		"tab":              "\t" + token,
	}
	if n := len(token); n > 0 {
		if i := strings.IndexByte(base64URLAlphabet, token[n-1]); i >= 0 {
			out["signature padding bit"] = token[:n-1] + string(base64URLAlphabet[i^1])
		}
		out["newline in signature"] = token[:n-1] + "\n" + token[n-1:]
	}
	return out
}
