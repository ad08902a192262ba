package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const codeDigits = 6

// GenerateCode draws a 6-digit one-time code from crypto/rand, uniformly
// over 000000..999999.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
