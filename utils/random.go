package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

func GenerateCode(n int) (string, error) {
	// Make a slice of n random bytes.
	byt := make([]byte, n)

	// Read into the slice.
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	// Return the hexadecimal string.
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

func GenerateDigits(length int) (string, error) {
	const charset = "0123456789"

	code := make([]byte, length)
	if _, err := rand.Read(code); err != nil {
		return "", err
	}

	for i := 0; i < length; i++ {
		code[i] = charset[int(code[i])%len(charset)]
	}

	return string(code), nil
}

// GenerateTicketNumber builds a human-readable ticket number:
// TKT-<unix day>-<10 random digits>.
func GenerateTicketNumber() (string, error) {
	digits, err := GenerateDigits(10)
	if err != nil {
		return "", err
	}
	day := time.Now().UTC().Unix() / 86400
	return fmt.Sprintf("TKT-%d-%s", day, digits), nil
}

// GenerateConfirmationCode returns an 8-char uppercase hex code shown to
// the buyer after purchase.
func GenerateConfirmationCode() (string, error) {
	return GenerateCode(4)
}
