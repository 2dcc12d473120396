// Package callback verifies, decrypts and answers DingTalk event callbacks.
//
// Payloads are AES-256-CBC encrypted with the app's EncodingAESKey. The
// plaintext is 16 random bytes, a 4-byte big-endian message length, the
// message, and the app key. Signatures are SHA-1 over the sorted
// concatenation of token, timestamp, nonce and ciphertext.
package callback

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // G505: mandated by the callback protocol
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
)

// Ensure Crypto implements the interface.
var _ driven.CallbackCipher = (*Crypto)(nil)

const (
	aesKeyLength = 43
	blockSize    = 32
	randomLength = 16
)

// SuccessReply is the plaintext acknowledged to the platform.
const SuccessReply = "success"

// Crypto handles callbacks for one app.
type Crypto struct {
	token  string
	appKey string
	key    []byte
	now    func() time.Time
	nonce  func() string
}

// New creates a Crypto. The EncodingAESKey must be the 43-character value
// configured on the platform.
func New(token, encodingAESKey, appKey string) (*Crypto, error) {
	if token == "" || appKey == "" {
		return nil, domain.Configurationf("callback token and app key are required")
	}
	if len(encodingAESKey) != aesKeyLength {
		return nil, domain.Configurationf("encoding aes key must be %d characters", aesKeyLength)
	}
	key, err := base64.StdEncoding.DecodeString(encodingAESKey + "=")
	if err != nil {
		return nil, domain.Configurationf("encoding aes key is not base64: %v", err)
	}
	return &Crypto{
		token:  token,
		appKey: appKey,
		key:    key,
		now:    time.Now,
		nonce:  func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:16] },
	}, nil
}

// Signature returns the hex SHA-1 over the sorted parameters.
func Signature(token, timestamp, nonce, encrypt string) string {
	parts := []string{token, timestamp, nonce, encrypt}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, ""))) //nolint:gosec // G401: protocol requirement
	return hex.EncodeToString(sum[:])
}

// Decrypt checks the signature and returns the decrypted message.
func (c *Crypto) Decrypt(signature, timestamp, nonce, encrypt string) ([]byte, error) {
	want := Signature(c.token, timestamp, nonce, encrypt)
	if subtle.ConstantTimeCompare([]byte(want), []byte(signature)) != 1 {
		return nil, domain.Verificationf("signature mismatch")
	}

	raw, err := base64.StdEncoding.DecodeString(encrypt)
	if err != nil {
		return nil, domain.Verificationf("ciphertext is not base64")
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return nil, domain.Verificationf("ciphertext has invalid length %d", len(raw))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, c.key[:aes.BlockSize]).CryptBlocks(plain, raw)

	plain, err = unpad(plain)
	if err != nil {
		return nil, err
	}
	if len(plain) < randomLength+4 {
		return nil, domain.Verificationf("plaintext too short")
	}
	size := int(binary.BigEndian.Uint32(plain[randomLength : randomLength+4]))
	start := randomLength + 4
	if start+size > len(plain) {
		return nil, domain.Verificationf("message length out of range")
	}
	msg := plain[start : start+size]
	if owner := string(plain[start+size:]); owner != c.appKey {
		return nil, domain.Verificationf("payload addressed to %q", owner)
	}
	return msg, nil
}

// Encrypt returns the base64 ciphertext of msg.
func (c *Crypto) Encrypt(msg string) (string, error) {
	var buf bytes.Buffer
	random := make([]byte, randomLength)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	buf.Write(random)
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(msg)))
	buf.Write(size[:])
	buf.WriteString(msg)
	buf.WriteString(c.appKey)

	plain := pad(buf.Bytes())
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, c.key[:aes.BlockSize]).CryptBlocks(out, plain)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Reply encrypts plaintext into a signed response envelope.
func (c *Crypto) Reply(plaintext string) (*domain.CallbackReply, error) {
	encrypt, err := c.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	nonce := c.nonce()
	return &domain.CallbackReply{
		MsgSignature: Signature(c.token, timestamp, nonce, encrypt),
		TimeStamp:    timestamp,
		Nonce:        nonce,
		Encrypt:      encrypt,
	}, nil
}

func pad(b []byte) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, domain.Verificationf("invalid padding")
	}
	return b[:len(b)-n], nil
}
