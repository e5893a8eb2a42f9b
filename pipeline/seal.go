package pipeline

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"

	"github.com/rotisserie/eris"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/use-agent/carscout/cache"
	"github.com/use-agent/carscout/models"
)

// Sealer encrypts sensitive record fields with XChaCha20-Poly1305.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a Sealer from a 32-byte key. A nil key generates a
// random one, which makes sealed values unreadable after the process
// exits.
func NewSealer(key []byte) (*Sealer, error) {
	if key == nil {
		key = make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, eris.Wrap(err, "generate sealing key")
		}
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, eris.Wrapf(err, "sealing key must be %d bytes", chacha20poly1305.KeySize)
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns base64(nonce || ciphertext).
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", eris.Wrap(err, "generate nonce")
	}
	return base64.StdEncoding.EncodeToString(s.aead.Seal(nonce, nonce, plaintext, nil)), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, eris.Wrap(err, "decode sealed value")
	}
	if len(raw) < s.aead.NonceSize() {
		return nil, eris.New("sealed value too short")
	}
	nonce, ct := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	pt, err := s.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, eris.Wrap(err, "open sealed value")
	}
	return pt, nil
}

// sealPrice moves the record's price into EncryptedPrice.
func (s *Sealer) sealPrice(r *models.CarRecord) error {
	b, err := json.Marshal(r.Price)
	if err != nil {
		return eris.Wrap(err, "marshal price")
	}
	sealed, err := s.Seal(b)
	if err != nil {
		return err
	}
	r.EncryptedPrice = sealed
	r.Price = models.Price{}
	return nil
}

// OpenPrice decrypts a record's EncryptedPrice.
func (s *Sealer) OpenPrice(r models.CarRecord) (models.Price, error) {
	var p models.Price
	b, err := s.Open(r.EncryptedPrice)
	if err != nil {
		return p, err
	}
	return p, eris.Wrap(json.Unmarshal(b, &p), "unmarshal price")
}

// anonymize drops dealer contact details and source URLs.
func anonymize(r models.CarRecord) models.CarRecord {
	r.Dealer = nil
	r.SourceURLs = nil
	return r
}

// IntegrityHash hashes a record's content, excluding the hash itself.
func IntegrityHash(r models.CarRecord) (string, error) {
	r.IntegrityHash = ""
	return cache.Key(r)
}
