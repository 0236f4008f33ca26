package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func testService(t *testing.T) *Service {
	t.Helper()
	key, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("generate master key: %v", err)
	}
	svc, err := NewService(key)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewServiceRejectsShortKey(t *testing.T) {
	if _, err := NewService([]byte("short")); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto, got %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc := testService(t)
	inputs := [][]byte{
		[]byte("a"),
		[]byte("the quick brown fox"),
		bytes.Repeat([]byte{0x00, 0xff}, 4096),
	}
	for _, plaintext := range inputs {
		bundle, err := svc.Encrypt(plaintext, nil)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if len(bundle.Salt) != saltSize || len(bundle.IV) != nonceSize {
			t.Fatalf("unexpected bundle shape: salt=%d iv=%d", len(bundle.Salt), len(bundle.IV))
		}
		got, err := svc.Decrypt(bundle, nil)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("round trip mismatch")
		}
	}
}

func TestEncryptRejectsEmptyPlaintext(t *testing.T) {
	svc := testService(t)
	if _, err := svc.Encrypt(nil, nil); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto, got %v", err)
	}
}

func TestEncryptSaltsDiffer(t *testing.T) {
	svc := testService(t)
	a, err := svc.Encrypt([]byte("payload"), nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := svc.Encrypt([]byte("payload"), nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(a.Salt, b.Salt) || bytes.Equal(a.IV, b.IV) {
		t.Fatalf("salt or IV reused across calls")
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Fatalf("identical ciphertext under fresh salts")
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	svc := testService(t)
	bundle, err := svc.Encrypt([]byte("governance record"), nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	bundle.Ciphertext[0] ^= 0x01
	if _, err := svc.Decrypt(bundle, nil); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto on tampered ciphertext, got %v", err)
	}
}

func TestDecryptTamperedTag(t *testing.T) {
	svc := testService(t)
	bundle, err := svc.Encrypt([]byte("governance record"), nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	bundle.AuthTag[0] ^= 0x01
	if _, err := svc.Decrypt(bundle, nil); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto on tampered tag, got %v", err)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	svc := testService(t)
	bundle, err := svc.Encrypt([]byte("secret"), nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	other, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if _, err := svc.Decrypt(bundle, other); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto under wrong key, got %v", err)
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	ph, err := HashPassword("correct horse battery staple", nil)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if len(ph.Salt) != saltSize {
		t.Fatalf("expected %d byte salt, got %d", saltSize, len(ph.Salt))
	}
	if !VerifyPassword("correct horse battery staple", ph.Hash, ph.Salt) {
		t.Fatalf("expected password to verify")
	}
	if VerifyPassword("correct horse battery stapler", ph.Hash, ph.Salt) {
		t.Fatalf("wrong password must not verify")
	}
}

func TestHashPasswordDeterministicUnderFixedSalt(t *testing.T) {
	salt := bytes.Repeat([]byte{0x42}, saltSize)
	a, err := HashPassword("pw", salt)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	b, err := HashPassword("pw", salt)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !bytes.Equal(a.Hash, b.Hash) {
		t.Fatalf("same password and salt must derive the same hash")
	}
}

func TestMACDetectsModification(t *testing.T) {
	svc := testService(t)
	tag := svc.MAC([]byte("record-1|allow|2024-01-01"))
	if !svc.VerifyMAC([]byte("record-1|allow|2024-01-01"), tag) {
		t.Fatalf("expected tag to verify")
	}
	if svc.VerifyMAC([]byte("record-1|deny|2024-01-01"), tag) {
		t.Fatalf("modified data must not verify")
	}
}

func TestGenerateTokenURLSafe(t *testing.T) {
	token, err := GenerateToken(24)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			t.Fatalf("token contains non URL-safe rune %q", r)
		}
	}
	if _, err := GenerateToken(0); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto for zero length")
	}
}

func TestGenerateAPIKeyPrefix(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate api key: %v", err)
	}
	if len(key) < 10 || key[:3] != "ak_" {
		t.Fatalf("unexpected api key %q", key)
	}
}

func TestSignVerify(t *testing.T) {
	pair, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	data := []byte(`{"framework":"GDPR","score":100}`)
	sig, err := Sign(data, pair.PrivateKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify(data, sig, pair.PublicKey) {
		t.Fatalf("expected signature to verify")
	}
	if Verify([]byte(`{"framework":"GDPR","score":0}`), sig, pair.PublicKey) {
		t.Fatalf("altered data must not verify")
	}
	other, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	if Verify(data, sig, other.PublicKey) {
		t.Fatalf("foreign key must not verify")
	}
}
