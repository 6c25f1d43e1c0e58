package keys

import "time"

// Key is a GPG key pair held for an org. Private material arrives already
// encrypted client-side; this service never sees plaintext.
type Key struct {
	ID                  string
	OrgID               string
	Name                string
	Fingerprint         string
	PublicKey           string
	EncryptedPrivateKey string
	CreatedBy           string
	CreatedAt           time.Time
}

// CreateInput carries the request payload for key creation.
type CreateInput struct {
	Name                string `json:"name" validate:"required,min=1,max=128"`
	Fingerprint         string `json:"fingerprint" validate:"required,hexadecimal,len=40"`
	PublicKey           string `json:"public_key" validate:"required"`
	EncryptedPrivateKey string `json:"encrypted_private_key" validate:"required"`
}
