// Package crypto provides the confidentiality, integrity and identity
// primitives used by the governance core: authenticated encryption,
// password hashing, token generation, keyed MACs and evidence signing.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// ErrCrypto indicates a failed cryptographic operation. Callers must treat
// it as fatal to the operation that triggered it; it is never recoverable
// into partial output.
var ErrCrypto = errors.New("crypto: operation failed")

const (
	keySize   = 32
	saltSize  = 16
	nonceSize = 12

	// aadTag binds every ciphertext to this application.
	aadTag = "arcade-core.v1"

	// pbkdf2Iterations is sized to resist offline brute force.
	pbkdf2Iterations = 150_000
	passwordHashSize = 32

	apiKeyBytes = 32
)

// Bundle carries the output of Encrypt. All fields are required to decrypt.
type Bundle struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	AuthTag    []byte `json:"auth_tag"`
	Salt       []byte `json:"salt"`
}

// PasswordHash pairs a derived hash with the salt used to derive it.
type PasswordHash struct {
	Hash []byte
	Salt []byte
}

// KeyPair holds an Ed25519 signing key pair.
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Service exposes the crypto primitives. It holds no state beyond the
// master key supplied at construction; every operation is deterministic
// given its inputs, that key and fresh randomness.
type Service struct {
	masterKey []byte
}

// NewService constructs a Service from a 256-bit master key.
func NewService(masterKey []byte) (*Service, error) {
	if len(masterKey) != keySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes, got %d", ErrCrypto, keySize, len(masterKey))
	}
	key := make([]byte, keySize)
	copy(key, masterKey)
	return &Service{masterKey: key}, nil
}

// GenerateMasterKey returns a fresh random 256-bit key.
func GenerateMasterKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return key, nil
}

// Encrypt seals plaintext with AES-256-GCM. A per-call random salt feeds an
// HKDF schedule so the cipher key differs on every call even under the same
// input key; the IV is always explicit and random, never derived from the
// primitive. Pass a nil key to use the master key.
func (s *Service) Encrypt(plaintext, key []byte) (Bundle, error) {
	if len(plaintext) == 0 {
		return Bundle{}, fmt.Errorf("%w: empty plaintext", ErrCrypto)
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	gcm, err := s.aead(key, salt)
	if err != nil {
		return Bundle{}, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, []byte(aadTag))
	tagStart := len(sealed) - gcm.Overhead()
	return Bundle{
		Ciphertext: sealed[:tagStart],
		IV:         nonce,
		AuthTag:    sealed[tagStart:],
		Salt:       salt,
	}, nil
}

// Decrypt opens a Bundle produced by Encrypt. Authentication failure is a
// hard ErrCrypto; no partial plaintext is ever returned.
func (s *Service) Decrypt(bundle Bundle, key []byte) ([]byte, error) {
	if len(bundle.Ciphertext) == 0 || len(bundle.IV) != nonceSize || len(bundle.Salt) != saltSize {
		return nil, fmt.Errorf("%w: malformed bundle", ErrCrypto)
	}
	gcm, err := s.aead(key, bundle.Salt)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(bundle.Ciphertext)+len(bundle.AuthTag))
	sealed = append(sealed, bundle.Ciphertext...)
	sealed = append(sealed, bundle.AuthTag...)
	plaintext, err := gcm.Open(nil, bundle.IV, sealed, []byte(aadTag))
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrCrypto)
	}
	return plaintext, nil
}

func (s *Service) aead(key, salt []byte) (cipher.AEAD, error) {
	material := key
	if len(material) == 0 {
		material = s.masterKey
	}
	if len(material) != keySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrCrypto, keySize, len(material))
	}
	derived := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, salt, []byte(aadTag)), derived); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return gcm, nil
}

// MAC computes the keyed integrity tag over data under the master key.
func (s *Service) MAC(data []byte) []byte {
	mac := hmac.New(sha256.New, s.masterKey)
	_, _ = mac.Write(data)
	return mac.Sum(nil)
}

// VerifyMAC recomputes the tag and compares in constant time.
func (s *Service) VerifyMAC(data, tag []byte) bool {
	return hmac.Equal(s.MAC(data), tag)
}

// HashPassword derives a salted PBKDF2-SHA256 hash. Pass a nil salt to
// generate a fresh random one.
func HashPassword(password string, salt []byte) (PasswordHash, error) {
	if password == "" {
		return PasswordHash{}, fmt.Errorf("%w: empty password", ErrCrypto)
	}
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return PasswordHash{}, fmt.Errorf("%w: %v", ErrCrypto, err)
		}
	}
	hash := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, passwordHashSize, sha256.New)
	return PasswordHash{Hash: hash, Salt: salt}, nil
}

// VerifyPassword reports whether password matches hash under salt, using a
// constant-time comparison.
func VerifyPassword(password string, hash, salt []byte) bool {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, passwordHashSize, sha256.New)
	return subtle.ConstantTimeCompare(derived, hash) == 1
}

// GenerateToken returns a URL-safe random token of n bytes of entropy.
func GenerateToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("%w: token length must be positive", ErrCrypto)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateAPIKey returns a prefixed URL-safe API key.
func GenerateAPIKey() (string, error) {
	token, err := GenerateToken(apiKeyBytes)
	if err != nil {
		return "", err
	}
	return "ak_" + token, nil
}

// GenerateKeyPair creates an Ed25519 key pair for evidence signing.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// Sign produces an Ed25519 signature over data.
func Sign(data []byte, priv ed25519.PrivateKey) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: invalid private key", ErrCrypto)
	}
	return ed25519.Sign(priv, data), nil
}

// Verify reports whether sig is a valid signature of data under pub.
func Verify(data, sig []byte, pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}
