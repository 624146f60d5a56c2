package keysvc

import (
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/share"
)

// ShareRequest is a request for the partial decryptions of an encrypted
// document. It carries the session certificate, the policy transaction to be
// evaluated on chain and the ciphertext points.
type ShareRequest struct {
	sessionKey []byte
	policyTx   []byte
	blob       []byte
	k          kyber.Point
	c          kyber.Point
}

// NewShareRequest creates a new share request.
func NewShareRequest(sessionKey, policyTx, blob []byte, k, c kyber.Point) ShareRequest {
	return ShareRequest{
		sessionKey: sessionKey,
		policyTx:   policyTx,
		blob:       blob,
		k:          k,
		c:          c,
	}
}

// GetSessionKey returns the exported session key of the request.
func (req ShareRequest) GetSessionKey() []byte {
	return append([]byte{}, req.sessionKey...)
}

// GetPolicyTx returns the serialized policy transaction of the request.
func (req ShareRequest) GetPolicyTx() []byte {
	return append([]byte{}, req.policyTx...)
}

// GetBlob returns the identifier of the document the request is about.
func (req ShareRequest) GetBlob() []byte {
	return append([]byte{}, req.blob...)
}

// GetK returns the ephemeral Diffie-Hellman point of the ciphertext.
func (req ShareRequest) GetK() kyber.Point {
	return req.k
}

// GetC returns the blinded message point of the ciphertext.
func (req ShareRequest) GetC() kyber.Point {
	return req.c
}

// ShareReply carries the indexed partial decryptions computed by one server.
type ShareReply struct {
	shares []*share.PubShare
}

// NewShareReply creates a new share reply.
func NewShareReply(shares []*share.PubShare) ShareReply {
	return ShareReply{shares: shares}
}

// GetShares returns the partial decryptions of the reply.
func (rep ShareReply) GetShares() []*share.PubShare {
	return append([]*share.PubShare{}, rep.shares...)
}
