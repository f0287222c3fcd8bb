package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// CompletionCodeLength is the number of digits in a job completion code.
const CompletionCodeLength = 6

// generateSecureOTP generates a numeric OTP of the given length using crypto/rand.
func generateSecureOTP(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate random digit: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// NewCompletionCode returns a fresh code and its bcrypt hash. Only the hash is persisted.
func NewCompletionCode() (code string, hash string, err error) {
	code, err = generateSecureOTP(CompletionCodeLength)
	if err != nil {
		return "", "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash completion code: %w", err)
	}
	return code, string(hashed), nil
}

// VerifyCompletionCode compares a provided code against its stored hash.
func VerifyCompletionCode(hash, provided string) bool {
	if hash == "" || provided == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(provided)) == nil
}
