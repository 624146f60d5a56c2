// Package session implements the session keys granting time-limited
// decryption authority.
//
// A session key is minted unsigned, presented to the wallet as a
// human-readable personal message, and becomes usable once the wallet
// signature is attached. The key-holding services re-verify the certificate
// independently, so a session key is bearer material only together with a
// policy the chain accepts.
package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
	"golang.org/x/xerrors"

	"go.signet.dev/signet/crypto"
	"go.signet.dev/signet/crypto/schnorr"
	"go.signet.dev/signet/ledger"
)

// SessionKey is a time-limited decryption authorization bound to a wallet
// address and a contract scope. It is immutable: attaching the signature
// returns a new value.
type SessionKey struct {
	nonce     string
	address   ledger.Address
	scope     string
	ttl       time.Duration
	issuedAt  time.Time
	pubKey    []byte
	signature []byte
}

// New creates an unsigned session key for the address, valid for the
// contract scope during ttl from now.
func New(address ledger.Address, scope string, ttl time.Duration) SessionKey {
	return SessionKey{
		nonce:    xid.New().String(),
		address:  address,
		scope:    scope,
		ttl:      ttl,
		issuedAt: time.Now(),
	}
}

// GetPersonalMessage returns the message the wallet is asked to sign. It
// spells out what the signature grants so the user can review it.
func (k SessionKey) GetPersonalMessage() []byte {
	return []byte(fmt.Sprintf("signet session %s: grant %v access to %s for %s",
		k.nonce, k.address, k.scope, k.ttl))
}

// AttachSignature returns a copy of the session key carrying the wallet
// signature over the personal message. It can be called only once, and the
// signature is checked locally so a bad one is caught before any request
// leaves the client.
func (k SessionKey) AttachSignature(sig crypto.Signature, pk crypto.PublicKey) (SessionKey, error) {
	if len(k.signature) > 0 {
		return k, NewAlreadySignedError()
	}

	addr, err := ledger.NewAddressFromPublicKey(pk)
	if err != nil {
		return k, xerrors.Errorf("failed to derive address: %v", err)
	}

	if !addr.Equal(k.address) {
		return k, xerrors.Errorf("public key does not match address %v", k.address)
	}

	err = pk.Verify(k.GetPersonalMessage(), sig)
	if err != nil {
		return k, xerrors.Errorf("invalid signature: %v", err)
	}

	sigBuf, err := sig.MarshalBinary()
	if err != nil {
		return k, xerrors.Errorf("failed to marshal signature: %v", err)
	}

	pkBuf, err := pk.MarshalBinary()
	if err != nil {
		return k, xerrors.Errorf("failed to marshal public key: %v", err)
	}

	k.signature = sigBuf
	k.pubKey = pkBuf

	return k, nil
}

// IsSigned returns true when the session key carries a signature.
func (k SessionKey) IsSigned() bool {
	return len(k.signature) > 0
}

// IsExpired returns true when the lifetime of the session key is over at the
// given time. The boundary itself is expired.
func (k SessionKey) IsExpired(now time.Time) bool {
	return !now.Before(k.issuedAt.Add(k.ttl))
}

// Verify checks the certificate the way a key-holding service does: the key
// must hold together structurally, be within its lifetime and carry a valid
// wallet signature binding to its address.
func (k SessionKey) Verify(now time.Time) error {
	if k.nonce == "" || k.address.IsZero() || k.scope == "" || k.ttl <= 0 {
		return NewMalformedError("missing fields")
	}

	if k.IsExpired(now) {
		return NewExpiredError()
	}

	if len(k.signature) == 0 {
		return NewUnsignedError("no signature attached")
	}

	pk, err := schnorr.NewPublicKey(k.pubKey)
	if err != nil {
		return NewMalformedError(fmt.Sprintf("bad public key: %v", err))
	}

	addr, err := ledger.NewAddressFromPublicKey(pk)
	if err != nil {
		return NewMalformedError(fmt.Sprintf("bad public key: %v", err))
	}

	if !addr.Equal(k.address) {
		return NewUnsignedError("public key does not bind to the address")
	}

	err = pk.Verify(k.GetPersonalMessage(), schnorr.NewSignature(k.signature))
	if err != nil {
		return NewUnsignedError(fmt.Sprintf("bad signature: %v", err))
	}

	return nil
}

// GetNonce returns the nonce of the session key.
func (k SessionKey) GetNonce() string {
	return k.nonce
}

// GetAddress returns the wallet address the session key is bound to.
func (k SessionKey) GetAddress() ledger.Address {
	return k.address
}

// GetScope returns the contract scope of the session key.
func (k SessionKey) GetScope() string {
	return k.scope
}

// GetTTL returns the lifetime of the session key.
func (k SessionKey) GetTTL() time.Duration {
	return k.ttl
}

// GetIssuedAt returns the issuance time of the session key.
func (k SessionKey) GetIssuedAt() time.Time {
	return k.issuedAt
}

type sessionJSON struct {
	Nonce     string `json:"nonce"`
	Address   string `json:"address"`
	Scope     string `json:"scope"`
	TTL       int64  `json:"ttl"`
	IssuedAt  string `json:"issued_at"`
	PublicKey string `json:"public_key,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Export returns the JSON form of the session key so it can be persisted or
// sent to a key-holding service.
func (k SessionKey) Export() ([]byte, error) {
	m := sessionJSON{
		Nonce:     k.nonce,
		Address:   k.address.String(),
		Scope:     k.scope,
		TTL:       int64(k.ttl),
		IssuedAt:  k.issuedAt.Format(time.RFC3339Nano),
		PublicKey: base64.StdEncoding.EncodeToString(k.pubKey),
		Signature: base64.StdEncoding.EncodeToString(k.signature),
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal session key: %v", err)
	}

	return data, nil
}

// Import reconstructs a session key from its JSON form. The signature is not
// re-verified here: a tampered key is rejected by the key-holding services.
func Import(data []byte) (SessionKey, error) {
	m := sessionJSON{}

	err := json.Unmarshal(data, &m)
	if err != nil {
		return SessionKey{}, NewMalformedError(fmt.Sprintf("bad json: %v", err))
	}

	address, err := ledger.ParseAddress(m.Address)
	if err != nil {
		return SessionKey{}, NewMalformedError(fmt.Sprintf("bad address: %v", err))
	}

	issuedAt, err := time.Parse(time.RFC3339Nano, m.IssuedAt)
	if err != nil {
		return SessionKey{}, NewMalformedError(fmt.Sprintf("bad issuance time: %v", err))
	}

	if m.Nonce == "" || m.Scope == "" || m.TTL <= 0 {
		return SessionKey{}, NewMalformedError("missing fields")
	}

	pubKey, err := base64.StdEncoding.DecodeString(m.PublicKey)
	if err != nil {
		return SessionKey{}, NewMalformedError(fmt.Sprintf("bad public key: %v", err))
	}

	signature, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return SessionKey{}, NewMalformedError(fmt.Sprintf("bad signature: %v", err))
	}

	return SessionKey{
		nonce:     m.Nonce,
		address:   address,
		scope:     m.Scope,
		ttl:       time.Duration(m.TTL),
		issuedAt:  issuedAt,
		pubKey:    pubKey,
		signature: signature,
	}, nil
}
