package accesslist

import (
	"context"

	"golang.org/x/xerrors"

	"go.signet.dev/signet/contracts/allowlist"
	"go.signet.dev/signet/ledger"
)

// Tracker records and reads the per-member approvals of a list. An approval
// is a one-way state: once a member has approved, the record never reverts.
type Tracker struct {
	client *Client
}

// NewTracker creates a tracker on top of the client.
func NewTracker(client *Client) *Tracker {
	return &Tracker{client: client}
}

// RecordApproval records the approval of the client's own wallet for the
// list. The wallet must be a member. Recording twice is a no-op.
func (t *Tracker) RecordApproval(ctx context.Context, list ledger.ObjectID) error {
	_, err := t.client.submit(ctx,
		ledger.WithArg(allowlist.CmdArg, []byte(allowlist.CmdSign)),
		ledger.WithArg(allowlist.ListArg, []byte(list.String())),
	)

	return err
}

// Status returns true when the member has recorded its approval of the list.
// An absent record means false.
func (t *Tracker) Status(ctx context.Context, list ledger.ObjectID, member ledger.Address) (bool, error) {
	content, err := t.client.getList(ctx, list)
	if err != nil {
		return false, err
	}

	tableID, err := ledger.ParseObjectID(content.Table)
	if err != nil {
		return false, xerrors.Errorf("failed to parse table id: %v", err)
	}

	return t.client.isApproved(ctx, tableID, member), nil
}
