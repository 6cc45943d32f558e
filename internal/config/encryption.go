package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"starload/pkg/errors"
	"starload/pkg/models"
)

const (
	encryptedPrefix = "ENC["
	encryptedSuffix = "]"

	// EnvEncryptionKey overrides the machine-derived key
	EnvEncryptionKey = "STARLOAD_ENCRYPTION_KEY"

	keySalt          = "starload-config-v1"
	pbkdf2Iterations = 100000
	keySize          = 32
)

// getEncryptionKey derives the AES key from $STARLOAD_ENCRYPTION_KEY or, failing
// that, from the host name and home directory.
func getEncryptionKey() []byte {
	secret := os.Getenv(EnvEncryptionKey)
	if secret == "" {
		hostname, _ := os.Hostname()
		homeDir, _ := os.UserHomeDir()
		secret = fmt.Sprintf("%s-%s-starload", hostname, homeDir)
	}
	return pbkdf2.Key([]byte(secret), []byte(keySalt), pbkdf2Iterations, keySize, sha256.New)
}

func newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(getEncryptionKey())
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptPassword encrypts a password using AES-256-GCM
func EncryptPassword(password string) (string, error) {
	if password == "" || IsEncrypted(password) {
		return password, nil
	}

	gcm, err := newGCM()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeEncryptionFailed, "failed to encrypt password")
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeEncryptionFailed, "failed to generate nonce")
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(password), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext) + encryptedSuffix, nil
}

// DecryptPassword decrypts a password encrypted with EncryptPassword. Plain
// values are returned unchanged.
func DecryptPassword(encrypted string) (string, error) {
	if !IsEncrypted(encrypted) {
		return encrypted, nil
	}

	encoded := strings.TrimSuffix(strings.TrimPrefix(encrypted, encryptedPrefix), encryptedSuffix)
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeEncryptionFailed, "failed to decode encrypted password")
	}

	gcm, err := newGCM()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeEncryptionFailed, "failed to decrypt password")
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", errors.New(errors.ErrCodeEncryptionFailed, "ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeEncryptionFailed, "failed to decrypt password").
			WithSuggestions("Check " + EnvEncryptionKey + " matches the key used by 'starload encrypt-config'")
	}

	return string(plaintext), nil
}

// IsEncrypted checks if a string is encrypted
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encryptedPrefix) && strings.HasSuffix(value, encryptedSuffix)
}

// EncryptConfigPasswords encrypts the warehouse password in place
func EncryptConfigPasswords(cfg *models.Config) error {
	encrypted, err := EncryptPassword(cfg.Warehouse.Password)
	if err != nil {
		return err
	}
	cfg.Warehouse.Password = encrypted
	return nil
}

// DecryptConfigPasswords decrypts the warehouse password in place
func DecryptConfigPasswords(cfg *models.Config) error {
	decrypted, err := DecryptPassword(cfg.Warehouse.Password)
	if err != nil {
		return err
	}
	cfg.Warehouse.Password = decrypted
	return nil
}
