package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashSecret salts and hashes a credential secret for storage. This is
// local bookkeeping, not a server-side security boundary; the accept/reject
// contract is what matters.
func HashSecret(secret string) (hash, salt string, err error) {
	saltBytes := make([]byte, 16)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", "", err
	}
	salt = hex.EncodeToString(saltBytes)
	return hashWithSalt(secret, salt), salt, nil
}

// VerifySecret compares in constant time.
func VerifySecret(secret, hash, salt string) bool {
	computed := hashWithSalt(secret, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

func hashWithSalt(secret, salt string) string {
	sum := sha256.Sum256([]byte(salt + ":" + secret))
	return hex.EncodeToString(sum[:])
}
