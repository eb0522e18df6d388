package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ErrCrypto is returned for any decryption failure: tampered ciphertext,
// wrong key, or an unknown key version. Callers get no further detail.
var ErrCrypto = errors.New("cryptox: decryption failed")

// Envelope is the serialized form of an encrypted field value. All byte
// fields are hex-encoded. KeyVersion identifies which keyring entry was used
// so that records encrypted under retired keys remain recoverable.
type Envelope struct {
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
	Value      string `json:"value"`
	KeyVersion int    `json:"keyVersion"`
}

// Encode serializes the envelope as JSON text for storage.
func (e Envelope) Encode() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("cryptox: encode envelope: %w", err)
	}
	return string(data), nil
}

// ParseEnvelope deserializes a stored envelope.
func ParseEnvelope(s string) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return Envelope{}, fmt.Errorf("cryptox: parse envelope: %w", err)
	}
	return e, nil
}

// Keyring holds versioned key material for the searchable identity index.
// Each version derives two independent 32-byte keys: one for the HMAC
// equality index and one for AES-256-GCM field encryption. New writes use
// the active version; reads accept any version still in the ring.
type Keyring struct {
	hmacKeys map[int][]byte
	aesKeys  map[int][]byte
	active   int
}

// NewKeyring derives a keyring from raw secrets keyed by version. The
// secrets may be any length; proper keys are derived with SHA-256 using
// distinct domain labels for the HMAC and AES keys.
func NewKeyring(secrets map[int][]byte, active int) (*Keyring, error) {
	if len(secrets) == 0 {
		return nil, errors.New("cryptox: keyring requires at least one key")
	}
	if _, ok := secrets[active]; !ok {
		return nil, fmt.Errorf("cryptox: active key version %d not present", active)
	}

	k := &Keyring{
		hmacKeys: make(map[int][]byte, len(secrets)),
		aesKeys:  make(map[int][]byte, len(secrets)),
		active:   active,
	}
	for version, material := range secrets {
		hmacKey := sha256.Sum256(append([]byte("orgauth-index:"), material...))
		aesKey := sha256.Sum256(append([]byte("orgauth-field:"), material...))
		k.hmacKeys[version] = hmacKey[:]
		k.aesKeys[version] = aesKey[:]
	}
	return k, nil
}

// ActiveVersion reports the version used for new writes.
func (k *Keyring) ActiveVersion() int { return k.active }

// Versions lists every version in the ring, active first and the rest
// newest first. Equality lookups must probe all of them: a digest written
// before a rotation stays keyed under the version that produced it.
func (k *Keyring) Versions() []int {
	versions := make([]int, 0, len(k.hmacKeys))
	for v := range k.hmacKeys {
		if v != k.active {
			versions = append(versions, v)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))
	return append([]int{k.active}, versions...)
}

// HMAC returns the hex-encoded HMAC-SHA256 digest of value under the given
// key version. The digest is deterministic, so equal plaintexts under the
// same version yield equal digests and can be looked up by exact match.
func (k *Keyring) HMAC(value string, version int) (string, error) {
	key, ok := k.hmacKeys[version]
	if !ok {
		return "", fmt.Errorf("cryptox: unknown key version %d", version)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Encrypt seals value with AES-256-GCM under the given key version using a
// fresh random IV per call.
func (k *Keyring) Encrypt(value string, version int) (Envelope, error) {
	key, ok := k.aesKeys[version]
	if !ok {
		return Envelope{}, fmt.Errorf("cryptox: unknown key version %d", version)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return Envelope{}, fmt.Errorf("cryptox: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Envelope{}, fmt.Errorf("cryptox: create GCM: %w", err)
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Envelope{}, fmt.Errorf("cryptox: generate IV: %w", err)
	}

	// gcm.Seal appends the auth tag to the ciphertext; split it out so the
	// envelope carries the tag as its own field.
	sealed := gcm.Seal(nil, iv, []byte(value), nil)
	tagStart := len(sealed) - gcm.Overhead()

	return Envelope{
		IV:         hex.EncodeToString(iv),
		AuthTag:    hex.EncodeToString(sealed[tagStart:]),
		Value:      hex.EncodeToString(sealed[:tagStart]),
		KeyVersion: version,
	}, nil
}

// Decrypt opens an envelope and returns the plaintext. Any failure,
// including an unknown key version or a bad auth tag, reports ErrCrypto.
func (k *Keyring) Decrypt(env Envelope) (string, error) {
	key, ok := k.aesKeys[env.KeyVersion]
	if !ok {
		return "", ErrCrypto
	}

	iv, err := hex.DecodeString(env.IV)
	if err != nil {
		return "", ErrCrypto
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil {
		return "", ErrCrypto
	}
	ciphertext, err := hex.DecodeString(env.Value)
	if err != nil {
		return "", ErrCrypto
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ErrCrypto
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrCrypto
	}
	if len(iv) != gcm.NonceSize() {
		return "", ErrCrypto
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrCrypto
	}
	return string(plaintext), nil
}

// Mask redacts a value for display and logging: the first and last runes
// are kept and the interior replaced with '*'. Values of two runes or
// fewer are fully masked.
func Mask(value string) string {
	runes := []rune(value)
	if len(runes) <= 2 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-1])
}
