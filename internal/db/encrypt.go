package db

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql/driver"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
)

// keyRing holds every AES-256 key this process knows about, indexed by
// generation: keys[0] is the active key new Value() calls encrypt
// under, keys[1:] are retired keys kept only so Scan() can still
// decrypt rows written before the most recent rotation.
type keyRing struct {
	mu   sync.RWMutex
	keys [][]byte
}

var ring keyRing

// InitEncryption registers the AES-256 keys used to encrypt and decrypt
// sensitive fields at rest. current becomes the active key for all new
// writes; retired, if given, are prior keys still accepted for reading
// rows encrypted before a rotation — pass the previous active key there
// when rolling to a new one so existing credentials keep decrypting
// until they are next rewritten. Every key must be exactly 32 bytes
// (AES-256).
//
// Call this once during application startup, before calling db.New:
//
//	if err := db.InitEncryption([]byte(os.Getenv("PUSHKEEP_SECRET_KEY")), retiredKeys...); err != nil {
//	    log.Fatal(err)
//	}
func InitEncryption(current []byte, retired ...[]byte) error {
	if len(current) != 32 {
		return fmt.Errorf("db: active encryption key must be exactly 32 bytes, got %d", len(current))
	}
	keys := make([][]byte, 0, 1+len(retired))
	keys = append(keys, cloneKey(current))
	for i, k := range retired {
		if len(k) != 32 {
			return fmt.Errorf("db: retired encryption key #%d must be exactly 32 bytes, got %d", i, len(k))
		}
		keys = append(keys, cloneKey(k))
	}

	ring.mu.Lock()
	ring.keys = keys
	ring.mu.Unlock()
	return nil
}

func cloneKey(k []byte) []byte {
	c := make([]byte, 32)
	copy(c, k)
	return c
}

// keyFor returns the key registered at the given generation, and
// whether it was found.
func keyFor(generation byte) ([]byte, bool) {
	ring.mu.RLock()
	defer ring.mu.RUnlock()
	if int(generation) >= len(ring.keys) {
		return nil, false
	}
	return ring.keys[generation], true
}

// EncryptedString is a string type that is transparently encrypted with
// AES-256-GCM before being written to the database, and decrypted after
// being read. Use it for any sensitive field (credentials, passwords, tokens).
//
// The value stored in the database is a base64-encoded string in the format:
//
//	base64(generation byte + nonce + ciphertext)
//
// generation is the slot, in the key ring InitEncryption registered, of
// the key that encrypted the value; Value always writes under slot 0
// (the active key). Scan tries the stamped slot first and then every
// other registered key, so a row encrypted before a key rotation —
// stamped 0, while its key now sits in a retired slot — still decrypts
// after one. An empty EncryptedString is stored as an empty string
// without encryption.
type EncryptedString string

// Value implements driver.Valuer. Called by GORM before writing to the
// database. Encrypts the string value with AES-256-GCM under the
// active (generation 0) key and encodes it as base64.
func (e EncryptedString) Value() (driver.Value, error) {
	if e == "" {
		return "", nil
	}

	key, ok := keyFor(0)
	if !ok {
		return nil, fmt.Errorf("db: EncryptedString.Value: no active encryption key, call db.InitEncryption first")
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("db: EncryptedString.Value: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("db: EncryptedString.Value: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(e), nil)
	payload := append([]byte{0}, sealed...)

	return base64.StdEncoding.EncodeToString(payload), nil
}

// Scan implements sql.Scanner. Called by GORM after reading from the
// database. Decodes the base64 payload and decrypts it with the key
// registered at the payload's generation, falling back to the other
// registered keys if that one does not open it.
func (e *EncryptedString) Scan(value interface{}) error {
	if value == nil {
		*e = ""
		return nil
	}

	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("db: EncryptedString.Scan: expected string, got %T", value)
	}
	if str == "" {
		*e = ""
		return nil
	}

	data, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return fmt.Errorf("db: EncryptedString.Scan: decode base64: %w", err)
	}
	if len(data) < 1 {
		return fmt.Errorf("db: EncryptedString.Scan: payload too short to contain a key generation")
	}

	generation, sealed := data[0], data[1:]
	key, ok := keyFor(generation)
	if !ok {
		return fmt.Errorf("db: EncryptedString.Scan: no key registered for generation %d (rotated out?)", generation)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return fmt.Errorf("db: EncryptedString.Scan: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return fmt.Errorf("db: EncryptedString.Scan: payload too short to contain a nonce")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	// Value stamps generation 0, which after a rotation is the new active
	// key's slot, so fall back to every other registered key.
	for g := 0; err != nil; g++ {
		other, ok := keyFor(byte(g))
		if !ok {
			break
		}
		if otherGCM, gErr := newGCM(other); gErr == nil && byte(g) != generation {
			if pt, oErr := otherGCM.Open(nil, nonce, ciphertext, nil); oErr == nil {
				plaintext, err = pt, nil
			}
		}
	}
	if err != nil {
		return fmt.Errorf("db: EncryptedString.Scan: decrypt under generation %d: %w", generation, err)
	}

	*e = EncryptedString(plaintext)
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}
