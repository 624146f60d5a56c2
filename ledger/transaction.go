package ledger

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"sort"

	"github.com/rs/xid"
	"golang.org/x/xerrors"

	"go.signet.dev/signet/crypto"
	"go.signet.dev/signet/crypto/schnorr"
)

// Transaction is a call to a contract carried by the ledger. It is immutable
// once created: signing returns a new value.
type Transaction struct {
	nonce     []byte
	sender    Address
	contract  string
	args      map[string][]byte
	gasBudget uint64
	pubKey    []byte
	signature []byte
	hash      []byte
}

// TransactionOption is the option type to set up a transaction template.
type TransactionOption func(*template)

type template struct {
	args        map[string][]byte
	gasBudget   uint64
	nonce       []byte
	hashFactory crypto.HashFactory
}

// WithArg is an option to set a named argument of the transaction.
func WithArg(key string, value []byte) TransactionOption {
	return func(tmpl *template) {
		tmpl.args[key] = value
	}
}

// WithGasBudget is an option to set the resource budget of the transaction.
func WithGasBudget(budget uint64) TransactionOption {
	return func(tmpl *template) {
		tmpl.gasBudget = budget
	}
}

// WithNonce is an option to force the nonce, used when reconstructing a
// transaction from its serialized form.
func WithNonce(nonce []byte) TransactionOption {
	return func(tmpl *template) {
		tmpl.nonce = append([]byte{}, nonce...)
	}
}

// WithHashFactory is an option to set the hash factory used to compute the
// transaction hash.
func WithHashFactory(f crypto.HashFactory) TransactionOption {
	return func(tmpl *template) {
		tmpl.hashFactory = f
	}
}

// NewTransaction creates a new transaction from the sender to the contract.
// A fresh nonce is generated unless one is provided.
func NewTransaction(sender Address, contract string, opts ...TransactionOption) Transaction {
	tmpl := &template{
		args:        make(map[string][]byte),
		gasBudget:   DefaultGasBudget,
		hashFactory: crypto.NewSha256Factory(),
	}

	for _, opt := range opts {
		opt(tmpl)
	}

	if tmpl.nonce == nil {
		tmpl.nonce = xid.New().Bytes()
	}

	tx := Transaction{
		nonce:     tmpl.nonce,
		sender:    sender,
		contract:  contract,
		args:      tmpl.args,
		gasBudget: tmpl.gasBudget,
	}

	tx.hash = tx.computeHash(tmpl.hashFactory)

	return tx
}

// DefaultGasBudget is the resource budget assigned to transactions that do
// not set one explicitly.
const DefaultGasBudget = 10_000_000

func (t Transaction) computeHash(f crypto.HashFactory) []byte {
	h := f.New()

	h.Write(t.nonce)
	h.Write(t.sender[:])
	h.Write([]byte(t.contract))

	keys := make([]string, 0, len(t.args))
	for k := range t.args {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		h.Write([]byte(k))
		h.Write(t.args[k])
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, t.gasBudget)
	h.Write(buf)

	return h.Sum(nil)
}

// Sign returns a copy of the transaction carrying the signature of the
// signer over the transaction hash. The signer's key must be the one the
// sender address is derived from.
func (t Transaction) Sign(signer crypto.Signer) (Transaction, error) {
	addr, err := NewAddressFromPublicKey(signer.GetPublicKey())
	if err != nil {
		return t, xerrors.Errorf("failed to derive address: %v", err)
	}

	if !addr.Equal(t.sender) {
		return t, xerrors.Errorf("signer address %v does not match sender %v",
			addr, t.sender)
	}

	sig, err := signer.Sign(t.hash)
	if err != nil {
		return t, xerrors.Errorf("failed to sign: %v", err)
	}

	sigBuf, err := sig.MarshalBinary()
	if err != nil {
		return t, xerrors.Errorf("failed to marshal signature: %v", err)
	}

	pkBuf, err := signer.GetPublicKey().MarshalBinary()
	if err != nil {
		return t, xerrors.Errorf("failed to marshal public key: %v", err)
	}

	t.signature = sigBuf
	t.pubKey = pkBuf

	return t, nil
}

// Verify checks that the transaction carries a valid signature over its hash
// and that the signing key binds to the sender address.
func (t Transaction) Verify() error {
	if len(t.signature) == 0 {
		return xerrors.New("transaction is not signed")
	}

	pk, err := schnorr.NewPublicKey(t.pubKey)
	if err != nil {
		return xerrors.Errorf("malformed public key: %v", err)
	}

	addr, err := NewAddressFromPublicKey(pk)
	if err != nil {
		return xerrors.Errorf("failed to derive address: %v", err)
	}

	if !addr.Equal(t.sender) {
		return xerrors.Errorf("public key does not match sender %v", t.sender)
	}

	err = pk.Verify(t.hash, schnorr.NewSignature(t.signature))
	if err != nil {
		return xerrors.Errorf("invalid signature: %v", err)
	}

	return nil
}

// GetNonce returns the nonce of the transaction.
func (t Transaction) GetNonce() []byte {
	return append([]byte{}, t.nonce...)
}

// GetSender returns the sender address.
func (t Transaction) GetSender() Address {
	return t.sender
}

// GetContract returns the name of the target contract.
func (t Transaction) GetContract() string {
	return t.contract
}

// GetArg returns the value of the named argument, or nil if it is not set.
func (t Transaction) GetArg(key string) []byte {
	return append([]byte{}, t.args[key]...)
}

// GetGasBudget returns the resource budget of the transaction.
func (t Transaction) GetGasBudget() uint64 {
	return t.gasBudget
}

// GetHash returns the hash of the transaction.
func (t Transaction) GetHash() []byte {
	return append([]byte{}, t.hash...)
}

type txJSON struct {
	Nonce     string            `json:"nonce"`
	Sender    string            `json:"sender"`
	Contract  string            `json:"contract"`
	Args      map[string]string `json:"args"`
	GasBudget uint64            `json:"gas_budget"`
	PublicKey string            `json:"public_key,omitempty"`
	Signature string            `json:"signature,omitempty"`
}

// Serialize returns the JSON form of the transaction so that it can travel
// to the key-holding services as a policy-check payload.
func (t Transaction) Serialize() ([]byte, error) {
	m := txJSON{
		Nonce:     base64.StdEncoding.EncodeToString(t.nonce),
		Sender:    t.sender.String(),
		Contract:  t.contract,
		Args:      make(map[string]string),
		GasBudget: t.gasBudget,
		PublicKey: base64.StdEncoding.EncodeToString(t.pubKey),
		Signature: base64.StdEncoding.EncodeToString(t.signature),
	}

	for k, v := range t.args {
		m.Args[k] = base64.StdEncoding.EncodeToString(v)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal tx: %v", err)
	}

	return data, nil
}

// DeserializeTransaction reconstructs a transaction from its JSON form.
func DeserializeTransaction(data []byte) (Transaction, error) {
	m := txJSON{}

	err := json.Unmarshal(data, &m)
	if err != nil {
		return Transaction{}, xerrors.Errorf("failed to unmarshal tx: %v", err)
	}

	sender, err := ParseAddress(m.Sender)
	if err != nil {
		return Transaction{}, xerrors.Errorf("failed to parse sender: %w", err)
	}

	nonce, err := base64.StdEncoding.DecodeString(m.Nonce)
	if err != nil {
		return Transaction{}, xerrors.Errorf("failed to decode nonce: %v", err)
	}

	opts := []TransactionOption{
		WithNonce(nonce),
		WithGasBudget(m.GasBudget),
	}

	for k, v := range m.Args {
		value, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return Transaction{}, xerrors.Errorf("failed to decode arg '%s': %v", k, err)
		}

		opts = append(opts, WithArg(k, value))
	}

	tx := NewTransaction(sender, m.Contract, opts...)

	tx.pubKey, err = base64.StdEncoding.DecodeString(m.PublicKey)
	if err != nil {
		return Transaction{}, xerrors.Errorf("failed to decode public key: %v", err)
	}

	tx.signature, err = base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return Transaction{}, xerrors.Errorf("failed to decode signature: %v", err)
	}

	return tx, nil
}

// Effects describes the outcome of an accepted transaction.
type Effects struct {
	txHash  []byte
	created []ObjectID
	mutated []ObjectID
	gasUsed uint64
}

// NewEffects creates the effects of a transaction.
func NewEffects(txHash []byte, created, mutated []ObjectID, gasUsed uint64) Effects {
	return Effects{
		txHash:  append([]byte{}, txHash...),
		created: created,
		mutated: mutated,
		gasUsed: gasUsed,
	}
}

// GetTransactionHash returns the hash of the transaction the effects belong
// to.
func (e Effects) GetTransactionHash() []byte {
	return append([]byte{}, e.txHash...)
}

// GetCreated returns the ids of the objects created by the transaction, in
// creation order.
func (e Effects) GetCreated() []ObjectID {
	return append([]ObjectID{}, e.created...)
}

// GetMutated returns the ids of the objects mutated by the transaction.
func (e Effects) GetMutated() []ObjectID {
	return append([]ObjectID{}, e.mutated...)
}

// GetGasUsed returns the resources consumed by the transaction.
func (e Effects) GetGasUsed() uint64 {
	return e.gasUsed
}
