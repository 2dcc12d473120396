package driven

import "github.com/custodia-labs/dingsync/internal/core/domain"

// CallbackCipher verifies, decrypts and answers inbound callbacks for one app.
type CallbackCipher interface {
	// Decrypt checks the signature over (token, timestamp, nonce, encrypt)
	// and returns the plaintext. Failures wrap domain.ErrVerification.
	Decrypt(signature, timestamp, nonce, encrypt string) ([]byte, error)
	// Reply encrypts plaintext into a signed response envelope.
	Reply(plaintext string) (*domain.CallbackReply, error)
}

// CipherFactory builds the callback cipher of an app.
type CipherFactory interface {
	// Cipher fails with domain.ErrConfiguration when the app has no
	// callback credentials.
	Cipher(app *domain.App) (CallbackCipher, error)
}
