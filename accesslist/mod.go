// Package accesslist implements the client-side view of the access lists.
//
// The client signs and submits the list mutations with the wallet of its
// signer and reads the list state back from the ledger. Reads tolerate
// transient faults with a few bounded retries, and a failed approval lookup
// degrades to "not approved" rather than failing the whole snapshot.
package accesslist

import (
	"context"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"go.signet.dev/signet"
	"go.signet.dev/signet/blob"
	"go.signet.dev/signet/contracts/allowlist"
	"go.signet.dev/signet/crypto"
	"go.signet.dev/signet/ledger"
)

// readAttempts bounds the retries of a ledger read before the fault is
// surfaced or degraded.
const readAttempts = 3

// Snapshot is a read-only view of an access list at one point in time.
type Snapshot struct {
	name     string
	members  []ledger.Address
	approved map[ledger.Address]bool
}

// GetName returns the name of the list.
func (s Snapshot) GetName() string {
	return s.name
}

// GetMembers returns the members of the list in insertion order.
func (s Snapshot) GetMembers() []ledger.Address {
	return append([]ledger.Address{}, s.members...)
}

// HasApproved returns true when the member had recorded its approval at the
// time of the snapshot.
func (s Snapshot) HasApproved(member ledger.Address) bool {
	return s.approved[member]
}

// Client manages access lists on behalf of a wallet.
type Client struct {
	ledger ledger.Client
	signer crypto.Signer
	addr   ledger.Address
	logger zerolog.Logger
}

// NewClient creates a new access list client submitting with the signer's
// wallet.
func NewClient(lc ledger.Client, signer crypto.Signer) (*Client, error) {
	addr, err := ledger.NewAddressFromPublicKey(signer.GetPublicKey())
	if err != nil {
		return nil, xerrors.Errorf("failed to derive address: %v", err)
	}

	return &Client{
		ledger: lc,
		signer: signer,
		addr:   addr,
		logger: signet.Logger.With().Str("component", "accesslist").Logger(),
	}, nil
}

// GetAddress returns the wallet address of the client.
func (c *Client) GetAddress() ledger.Address {
	return c.addr
}

// Create creates a new access list and returns the ids of the list and of
// the capability minted for the caller.
func (c *Client) Create(ctx context.Context, name string) (ledger.ObjectID, ledger.ObjectID, error) {
	effects, err := c.submit(ctx,
		ledger.WithArg(allowlist.CmdArg, []byte(allowlist.CmdCreate)),
		ledger.WithArg(allowlist.NameArg, []byte(name)),
	)
	if err != nil {
		return ledger.ObjectID{}, ledger.ObjectID{}, err
	}

	// The contract writes the list before the capability, so the effects
	// carry them in that order.
	created := effects.GetCreated()
	if len(created) < 2 {
		return ledger.ObjectID{}, ledger.ObjectID{}, xerrors.Errorf(
			"expected at least 2 created objects, got %d", len(created))
	}

	return created[0], created[1], nil
}

// Add adds the member to the list. The caller must hold the capability.
func (c *Client) Add(ctx context.Context, list, cap ledger.ObjectID, member ledger.Address) error {
	_, err := c.submit(ctx,
		ledger.WithArg(allowlist.CmdArg, []byte(allowlist.CmdAdd)),
		ledger.WithArg(allowlist.ListArg, []byte(list.String())),
		ledger.WithArg(allowlist.CapArg, []byte(cap.String())),
		ledger.WithArg(allowlist.MemberArg, []byte(member.String())),
	)

	return err
}

// Remove removes the member from the list. The caller must hold the
// capability, and a member that has approved the list cannot be removed.
func (c *Client) Remove(ctx context.Context, list, cap ledger.ObjectID, member ledger.Address) error {
	_, err := c.submit(ctx,
		ledger.WithArg(allowlist.CmdArg, []byte(allowlist.CmdRemove)),
		ledger.WithArg(allowlist.ListArg, []byte(list.String())),
		ledger.WithArg(allowlist.CapArg, []byte(cap.String())),
		ledger.WithArg(allowlist.MemberArg, []byte(member.String())),
	)

	return err
}

// Publish binds the encrypted document to the list. The caller must hold the
// capability.
func (c *Client) Publish(ctx context.Context, list, cap ledger.ObjectID, id blob.ID) error {
	_, err := c.submit(ctx,
		ledger.WithArg(allowlist.CmdArg, []byte(allowlist.CmdPublish)),
		ledger.WithArg(allowlist.ListArg, []byte(list.String())),
		ledger.WithArg(allowlist.CapArg, []byte(cap.String())),
		ledger.WithArg(allowlist.BlobArg, id.Bytes()),
	)

	return err
}

// Snapshot reads the current state of the list: its name, its members in
// order and which of them have recorded their approval. A failed approval
// lookup is reported as not approved.
func (c *Client) Snapshot(ctx context.Context, list ledger.ObjectID) (Snapshot, error) {
	content, err := c.getList(ctx, list)
	if err != nil {
		return Snapshot{}, err
	}

	tableID, err := ledger.ParseObjectID(content.Table)
	if err != nil {
		return Snapshot{}, xerrors.Errorf("failed to parse table id: %v", err)
	}

	snap := Snapshot{
		name:     content.Name,
		members:  make([]ledger.Address, 0, len(content.Members)),
		approved: make(map[ledger.Address]bool),
	}

	for _, m := range content.Members {
		member, err := ledger.ParseAddress(m)
		if err != nil {
			return Snapshot{}, xerrors.Errorf("failed to parse member: %w", err)
		}

		snap.members = append(snap.members, member)
		snap.approved[member] = c.isApproved(ctx, tableID, member)
	}

	return snap, nil
}

// FindCapability looks among the objects owned by the wallet for the
// capability of the list. It returns false when the wallet holds none.
func (c *Client) FindCapability(ctx context.Context, list ledger.ObjectID) (ledger.ObjectID, bool, error) {
	objs, err := c.ledger.OwnedObjects(ctx, c.addr, allowlist.CapType)
	if err != nil {
		return ledger.ObjectID{}, false, xerrors.Errorf("failed to list owned objects: %v", err)
	}

	for _, obj := range objs {
		content, err := allowlist.DecodeCap(obj.GetContent())
		if err != nil {
			return ledger.ObjectID{}, false, err
		}

		if content.AllowlistID == list.String() {
			return obj.GetID(), true, nil
		}
	}

	return ledger.ObjectID{}, false, nil
}

// Poll returns a channel of snapshots of the list taken at the given
// interval. The channel is closed when the context ends. A failed read is
// logged and skipped, so the channel only ever carries consistent views.
func (c *Client) Poll(ctx context.Context, list ledger.ObjectID, interval time.Duration) <-chan Snapshot {
	ch := make(chan Snapshot, 1)

	go func() {
		defer close(ch)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap, err := c.Snapshot(ctx, list)
				if err != nil {
					c.logger.Warn().Err(err).Msg("failed to poll list")
					continue
				}

				select {
				case <-ctx.Done():
					return
				case ch <- snap:
				}
			}
		}
	}()

	return ch
}

func (c *Client) submit(ctx context.Context, opts ...ledger.TransactionOption) (ledger.Effects, error) {
	tx := ledger.NewTransaction(c.addr, allowlist.ContractName, opts...)

	tx, err := tx.Sign(c.signer)
	if err != nil {
		return ledger.Effects{}, xerrors.Errorf("failed to sign tx: %v", err)
	}

	effects, err := c.ledger.Submit(ctx, tx)
	if err != nil {
		return ledger.Effects{}, xerrors.Errorf("failed to submit tx: %w", err)
	}

	return effects, nil
}

func (c *Client) getList(ctx context.Context, list ledger.ObjectID) (allowlist.List, error) {
	var obj ledger.Object

	err := retry.New(retry.Context(ctx), retry.Attempts(readAttempts)).Do(func() error {
		var err error
		obj, err = c.ledger.GetObject(ctx, list)
		return err
	})
	if err != nil {
		return allowlist.List{}, xerrors.Errorf("failed to read list: %v", err)
	}

	if obj.GetType() != allowlist.ListType {
		return allowlist.List{}, xerrors.Errorf("object %v is not a list", list)
	}

	return allowlist.DecodeList(obj.GetContent())
}

// isApproved resolves the approval entry of the member. Absence means not
// approved, and a read that keeps failing after the retries degrades to not
// approved as well.
func (c *Client) isApproved(ctx context.Context, table ledger.ObjectID, member ledger.Address) bool {
	approved := false

	err := retry.New(retry.Context(ctx), retry.Attempts(readAttempts)).Do(func() error {
		_, err := c.ledger.GetField(ctx, table, allowlist.ApprovalKey(member))
		if err == nil {
			approved = true
			return nil
		}

		if xerrors.Is(err, ledger.NewFieldAbsentError(table, allowlist.ApprovalKey(member))) {
			return nil
		}

		return err
	})
	if err != nil {
		c.logger.Warn().Err(err).
			Str("member", member.String()).
			Msg("approval lookup failed, treated as absent")
	}

	return approved
}
