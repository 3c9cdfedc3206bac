package trust

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// KeyProvider supplies the signing key material the core never generates
// itself (§6 "Persisted state"). Policy and storage for key material are
// external collaborators; godview only defines the seam.
type KeyProvider interface {
	LoadSigningKey() (ed25519.PrivateKey, error)
	LoadTrustedKeys() ([]ed25519.PublicKey, error)
}

// pbkdf2Iterations mirrors the teacher vault's PBKDF2-SHA256 key derivation
// function choice (security/vault.DefaultVaultConfig KeyDerivationFunc).
const pbkdf2Iterations = 200_000

// FileKeyProvider is a key-provider backed by an AES-256-GCM encrypted file
// on disk, adapted from the teacher's vault encryption scheme: a master
// passphrase is stretched via PBKDF2-SHA256 into an AES-256 key, which seals
// a JSON document holding the signing key and trusted public keys.
type FileKeyProvider struct {
	path       string
	passphrase string
}

// NewFileKeyProvider points at an encrypted key file and the passphrase
// used to unseal it.
func NewFileKeyProvider(path, passphrase string) *FileKeyProvider {
	return &FileKeyProvider{path: path, passphrase: passphrase}
}

type sealedKeyDocument struct {
	SigningKey  []byte   `json:"signing_key"`
	TrustedKeys [][]byte `json:"trusted_keys"`
}

// LoadSigningKey unseals the key file and returns the local signing key.
func (p *FileKeyProvider) LoadSigningKey() (ed25519.PrivateKey, error) {
	doc, err := p.load()
	if err != nil {
		return nil, err
	}
	if len(doc.SigningKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("trust: signing key has wrong size %d", len(doc.SigningKey))
	}
	return ed25519.PrivateKey(doc.SigningKey), nil
}

// LoadTrustedKeys unseals the key file and returns the trusted public keys.
func (p *FileKeyProvider) LoadTrustedKeys() ([]ed25519.PublicKey, error) {
	doc, err := p.load()
	if err != nil {
		return nil, err
	}
	out := make([]ed25519.PublicKey, 0, len(doc.TrustedKeys))
	for _, k := range doc.TrustedKeys {
		if len(k) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("trust: trusted key has wrong size %d", len(k))
		}
		out = append(out, ed25519.PublicKey(k))
	}
	return out, nil
}

func (p *FileKeyProvider) load() (sealedKeyDocument, error) {
	var doc sealedKeyDocument
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return doc, fmt.Errorf("trust: read key file: %w", err)
	}
	plaintext, err := p.decrypt(raw)
	if err != nil {
		return doc, fmt.Errorf("trust: decrypt key file: %w", err)
	}
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return doc, fmt.Errorf("trust: parse key document: %w", err)
	}
	return doc, nil
}

// SealKeyFile writes an encrypted key file at path, holding the given
// signing key and the given trusted keys. Used by provisioning tooling and
// by tests constructing a FileKeyProvider end to end.
func SealKeyFile(path, passphrase string, signingKey ed25519.PrivateKey, trusted []ed25519.PublicKey) error {
	doc := sealedKeyDocument{SigningKey: []byte(signingKey)}
	for _, k := range trusted {
		doc.TrustedKeys = append(doc.TrustedKeys, []byte(k))
	}
	plaintext, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("trust: marshal key document: %w", err)
	}
	ciphertext, err := encrypt(plaintext, passphrase)
	if err != nil {
		return fmt.Errorf("trust: encrypt key document: %w", err)
	}
	return os.WriteFile(path, ciphertext, 0o600)
}

func deriveAESKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)
}

func encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(deriveAESKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

func (p *FileKeyProvider) decrypt(data []byte) ([]byte, error) {
	if len(data) < 16+12 {
		return nil, fmt.Errorf("key file too short")
	}
	salt, rest := data[:16], data[16:]
	block, err := aes.NewCipher(deriveAESKey(p.passphrase, salt))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("key file too short")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
