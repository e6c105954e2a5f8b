package storage

import (
	"encoding/base64"
	"testing"
)

func TestEncryption(t *testing.T) {
	// Generate a 32-byte key (AES-256)
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	enc, err := NewEncryption(key)
	if err != nil {
		t.Fatalf("Failed to create encryption: %v", err)
	}

	plaintext := []byte("my-secret-api-key-12345")
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}

	if string(decrypted) != string(plaintext) {
		t.Errorf("Decrypted text doesn't match original. Got %s, want %s", decrypted, plaintext)
	}
}

func TestEncryptionFromBase64(t *testing.T) {
	keyBase64, err := GenerateKey(32)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	enc, err := NewEncryptionFromBase64(keyBase64)
	if err != nil {
		t.Fatalf("Failed to create encryption from base64: %v", err)
	}

	plaintext := []byte("test-data")
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}

	if string(decrypted) != string(plaintext) {
		t.Errorf("Decrypted text doesn't match original")
	}
}

func TestGenerateKey(t *testing.T) {
	// Test AES-256 (32 bytes)
	key, err := GenerateKey(32)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		t.Fatalf("Generated key is not valid base64: %v", err)
	}

	if len(decoded) != 32 {
		t.Errorf("Generated key has wrong length. Got %d, want 32", len(decoded))
	}

	// Test that we can use the generated key
	enc, err := NewEncryptionFromBase64(key)
	if err != nil {
		t.Fatalf("Failed to create encryption with generated key: %v", err)
	}

	plaintext := []byte("test")
	ciphertext, _ := enc.Encrypt(plaintext)
	decrypted, _ := enc.Decrypt(ciphertext)

	if string(decrypted) != string(plaintext) {
		t.Errorf("Encryption with generated key failed")
	}
}

func TestInvalidKeySize(t *testing.T) {
	_, err := NewEncryption([]byte("too-short"))
	if err == nil {
		t.Error("Expected error for invalid key size")
	}

	_, err = GenerateKey(20)
	if err == nil {
		t.Error("Expected error for invalid key size in GenerateKey")
	}
}

func TestDecryptTampered(t *testing.T) {
	key := make([]byte, 32)
	enc, _ := NewEncryption(key)

	ciphertext, err := enc.Encrypt([]byte("credential"))
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(ciphertext)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := enc.Decrypt(tampered); err == nil {
		t.Error("Expected error for tampered ciphertext")
	}
}

func TestLooksEncrypted(t *testing.T) {
	key := make([]byte, 32)
	enc, _ := NewEncryption(key)

	ciphertext, err := enc.Encrypt([]byte("sk-plain-credential"))
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	if !enc.LooksEncrypted(ciphertext) {
		t.Error("Expected ciphertext to look encrypted")
	}
	if enc.LooksEncrypted("sk-plain-credential") {
		t.Error("Expected plaintext credential to not look encrypted")
	}
	if enc.LooksEncrypted("dG9vLXNob3J0") {
		t.Error("Expected short base64 value to not look encrypted")
	}
}
