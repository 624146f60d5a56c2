// Package allowlist implements the contract managing access lists and the
// policy predicate gating document decryption.
//
// An access list names the identities entitled to a set of published
// documents. Mutations of the list are gated by a capability object minted
// at creation time and owned by the creator's wallet. Members record their
// approval of the list terms with a self-service command; a recorded
// approval is permanent and protects the member from later removal.
package allowlist

import (
	"encoding/json"

	"golang.org/x/xerrors"

	"go.signet.dev/signet"
	"go.signet.dev/signet/ledger"
)

// commands defines the commands of the allowlist contract. This interface
// helps in testing the contract.
type commands interface {
	create(snap ledger.Snapshot, step ledger.Step) error
	add(snap ledger.Snapshot, step ledger.Step) error
	remove(snap ledger.Snapshot, step ledger.Step) error
	sign(snap ledger.Snapshot, step ledger.Step) error
	publish(snap ledger.Snapshot, step ledger.Step) error
	approve(snap ledger.Snapshot, step ledger.Step) error
}

const (
	// ContractName is the name of the contract.
	ContractName = "signet.Allowlist"

	// CmdArg is the argument's name to indicate the kind of command we want
	// to run on the contract. Should be one of the Command type.
	CmdArg = "allowlist:command"

	// NameArg is the argument's name in the transaction that contains the
	// human-readable name of the list to create.
	NameArg = "allowlist:name"

	// ListArg is the argument's name in the transaction that contains the
	// object id of the list, in its 0x-prefixed hex form.
	ListArg = "allowlist:list"

	// CapArg is the argument's name in the transaction that contains the
	// object id of the capability presented for a gated command.
	CapArg = "allowlist:cap"

	// MemberArg is the argument's name in the transaction that contains the
	// address of the member to add or remove.
	MemberArg = "allowlist:member"

	// BlobArg is the argument's name in the transaction that contains the
	// identifier of the encrypted document to publish or to approve access
	// to.
	BlobArg = "allowlist:blob"
)

// Object types minted by the contract.
const (
	// ListType tags the shared object holding the list itself.
	ListType = "allowlist.Allowlist"

	// CapType tags the owned capability object gating the list mutations.
	CapType = "allowlist.Cap"

	// TableType tags the shared object anchoring the per-member approvals
	// and the published document ids as dynamic fields.
	TableType = "allowlist.Table"
)

// Command defines a type of command for the allowlist contract.
type Command string

const (
	// CmdCreate defines the command to create a new list along with its
	// capability.
	CmdCreate Command = "CREATE"

	// CmdAdd defines the command to add a member to a list.
	CmdAdd Command = "ADD"

	// CmdRemove defines the command to remove a member from a list.
	CmdRemove Command = "REMOVE"

	// CmdSign defines the command for a member to record its approval of the
	// list terms.
	CmdSign Command = "SIGN"

	// CmdPublish defines the command to bind an encrypted document to a
	// list.
	CmdPublish Command = "PUBLISH"

	// CmdApprove defines the read-only policy predicate evaluated by the
	// key-holding services before they release a decryption share.
	CmdApprove Command = "APPROVE"
)

// Common error messages
const (
	notFoundInTxArg = "'%s' not found in tx arg"
)

// approvedValue marks a recorded approval or a published document in the
// dynamic fields of the table.
var approvedValue = []byte{1}

// Contract manages access lists, their capabilities and the approval record.
//
// - implements ledger.Contract
type Contract struct {
	// cmd provides the commands that can be executed by this smart contract
	cmd commands
}

// NewContract creates a new allowlist contract.
func NewContract() Contract {
	contract := Contract{}
	contract.cmd = allowlistCommand{Contract: &contract}

	return contract
}

// Execute implements ledger.Contract. It runs the appropriate command. The
// cause is wrapped so that callers can match the command error kinds.
func (c Contract) Execute(snap ledger.Snapshot, step ledger.Step) error {
	cmd := step.Current.GetArg(CmdArg)
	if len(cmd) == 0 {
		return xerrors.Errorf(notFoundInTxArg, CmdArg)
	}

	switch Command(cmd) {
	case CmdCreate:
		err := c.cmd.create(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to CREATE: %w", err)
		}
	case CmdAdd:
		err := c.cmd.add(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to ADD: %w", err)
		}
	case CmdRemove:
		err := c.cmd.remove(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to REMOVE: %w", err)
		}
	case CmdSign:
		err := c.cmd.sign(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to SIGN: %w", err)
		}
	case CmdPublish:
		err := c.cmd.publish(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to PUBLISH: %w", err)
		}
	case CmdApprove:
		err := c.cmd.approve(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to APPROVE: %w", err)
		}
	default:
		return xerrors.Errorf("unknown command: %s", cmd)
	}

	return nil
}

// List is the content of a list object. Members are kept in insertion
// order, in their canonical text form.
type List struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Table   string   `json:"table"`
}

// DecodeList decodes the content of a list object.
func DecodeList(content []byte) (List, error) {
	list := List{}

	err := json.Unmarshal(content, &list)
	if err != nil {
		return List{}, xerrors.Errorf("failed to unmarshal list: %v", err)
	}

	return list, nil
}

// Cap is the content of a capability object.
type Cap struct {
	AllowlistID string `json:"allowlist_id"`
}

// DecodeCap decodes the content of a capability object.
func DecodeCap(content []byte) (Cap, error) {
	c := Cap{}

	err := json.Unmarshal(content, &c)
	if err != nil {
		return Cap{}, xerrors.Errorf("failed to unmarshal cap: %v", err)
	}

	return c, nil
}

// allowlistCommand implements the commands of the allowlist contract.
//
// - implements commands
type allowlistCommand struct {
	*Contract
}

// create implements commands. It performs the CREATE command: it mints the
// list, its capability and the approval table. The object ids derive from
// the transaction hash so that the effects are deterministic.
func (c allowlistCommand) create(snap ledger.Snapshot, step ledger.Step) error {
	name := step.Current.GetArg(NameArg)
	if len(name) == 0 {
		return xerrors.Errorf(notFoundInTxArg, NameArg)
	}

	seed := step.Current.GetHash()

	listID := ledger.DeriveID(seed, 0)
	capID := ledger.DeriveID(seed, 1)
	tableID := ledger.DeriveID(seed, 2)

	content, err := json.Marshal(List{
		Name:    string(name),
		Members: []string{},
		Table:   tableID.String(),
	})
	if err != nil {
		return xerrors.Errorf("failed to marshal list: %v", err)
	}

	err = ledger.StoreObject(snap, ledger.NewObject(listID, ListType, ledger.Address{}, content))
	if err != nil {
		return xerrors.Errorf("failed to store list: %v", err)
	}

	capContent, err := json.Marshal(Cap{AllowlistID: listID.String()})
	if err != nil {
		return xerrors.Errorf("failed to marshal cap: %v", err)
	}

	err = ledger.StoreObject(snap, ledger.NewObject(capID, CapType, step.Current.GetSender(), capContent))
	if err != nil {
		return xerrors.Errorf("failed to store cap: %v", err)
	}

	err = ledger.StoreObject(snap, ledger.NewObject(tableID, TableType, ledger.Address{}, nil))
	if err != nil {
		return xerrors.Errorf("failed to store table: %v", err)
	}

	signet.Logger.Info().
		Str("contract", ContractName).
		Str("list", listID.String()).
		Msgf("created list '%s'", name)

	return nil
}

// add implements commands. It performs the ADD command. The sender must
// present the capability of the list, and the member must not already belong
// to it.
func (c allowlistCommand) add(snap ledger.Snapshot, step ledger.Step) error {
	listID, list, err := c.loadGuardedList(snap, step)
	if err != nil {
		return err
	}

	member, err := memberArg(step)
	if err != nil {
		return err
	}

	for _, m := range list.Members {
		if m == member.String() {
			return NewAlreadyMemberError(member)
		}
	}

	list.Members = append(list.Members, member.String())

	err = storeList(snap, listID, list)
	if err != nil {
		return err
	}

	signet.Logger.Info().
		Str("contract", ContractName).
		Str("list", listID.String()).
		Msgf("added member %v", member)

	return nil
}

// remove implements commands. It performs the REMOVE command. A member that
// has recorded its approval cannot be removed, so that the approval record
// stays truthful.
func (c allowlistCommand) remove(snap ledger.Snapshot, step ledger.Step) error {
	listID, list, err := c.loadGuardedList(snap, step)
	if err != nil {
		return err
	}

	member, err := memberArg(step)
	if err != nil {
		return err
	}

	index := -1
	for i, m := range list.Members {
		if m == member.String() {
			index = i
			break
		}
	}

	if index < 0 {
		return xerrors.Errorf("identity %v is not a member", member)
	}

	tableID, err := ledger.ParseObjectID(list.Table)
	if err != nil {
		return xerrors.Errorf("failed to parse table id: %v", err)
	}

	_, err = ledger.GetFieldValue(snap, tableID, ApprovalKey(member))
	if err == nil {
		return NewHasApprovedError(member)
	}

	list.Members = append(list.Members[:index], list.Members[index+1:]...)

	err = storeList(snap, listID, list)
	if err != nil {
		return err
	}

	signet.Logger.Info().
		Str("contract", ContractName).
		Str("list", listID.String()).
		Msgf("removed member %v", member)

	return nil
}

// sign implements commands. It performs the SIGN command: the sender records
// its approval of the list terms. Only current members can sign, and signing
// again is a no-op.
func (c allowlistCommand) sign(snap ledger.Snapshot, step ledger.Step) error {
	listID, list, err := loadList(snap, step)
	if err != nil {
		return err
	}

	sender := step.Current.GetSender()

	if !isMember(list, sender) {
		return NewUnauthorizedError("sender is not a member")
	}

	tableID, err := ledger.ParseObjectID(list.Table)
	if err != nil {
		return xerrors.Errorf("failed to parse table id: %v", err)
	}

	err = ledger.SetFieldValue(snap, tableID, ApprovalKey(sender), approvedValue)
	if err != nil {
		return xerrors.Errorf("failed to record approval: %v", err)
	}

	signet.Logger.Info().
		Str("contract", ContractName).
		Str("list", listID.String()).
		Msgf("recorded approval of %v", sender)

	return nil
}

// publish implements commands. It performs the PUBLISH command: it binds an
// encrypted document id to the list so that members can later be granted the
// decryption of it.
func (c allowlistCommand) publish(snap ledger.Snapshot, step ledger.Step) error {
	listID, list, err := c.loadGuardedList(snap, step)
	if err != nil {
		return err
	}

	blob := step.Current.GetArg(BlobArg)
	if len(blob) == 0 {
		return xerrors.Errorf(notFoundInTxArg, BlobArg)
	}

	tableID, err := ledger.ParseObjectID(list.Table)
	if err != nil {
		return xerrors.Errorf("failed to parse table id: %v", err)
	}

	err = ledger.SetFieldValue(snap, tableID, BlobKey(blob), approvedValue)
	if err != nil {
		return xerrors.Errorf("failed to publish blob: %v", err)
	}

	signet.Logger.Info().
		Str("contract", ContractName).
		Str("list", listID.String()).
		Msgf("published blob %s", blob)

	return nil
}

// approve implements commands. It performs the APPROVE command, the policy
// predicate evaluated by the key-holding services over a dry run. It writes
// nothing: it succeeds when the sender is a member of the list and the
// document is published under it, and refuses otherwise.
func (c allowlistCommand) approve(snap ledger.Snapshot, step ledger.Step) error {
	_, list, err := loadList(snap, step)
	if err != nil {
		return err
	}

	if !isMember(list, step.Current.GetSender()) {
		return NewPolicyRefusedError("sender is not a member")
	}

	blob := step.Current.GetArg(BlobArg)
	if len(blob) == 0 {
		return xerrors.Errorf(notFoundInTxArg, BlobArg)
	}

	tableID, err := ledger.ParseObjectID(list.Table)
	if err != nil {
		return xerrors.Errorf("failed to parse table id: %v", err)
	}

	_, err = ledger.GetFieldValue(snap, tableID, BlobKey(blob))
	if err != nil {
		return NewPolicyRefusedError("blob is not published under the list")
	}

	return nil
}

// loadGuardedList resolves the list argument and checks that the sender
// presents the matching capability. The capability must be owned by the
// sender at the time of execution.
func (c allowlistCommand) loadGuardedList(snap ledger.Snapshot, step ledger.Step) (ledger.ObjectID, *List, error) {
	listID, list, err := loadList(snap, step)
	if err != nil {
		return ledger.ObjectID{}, nil, err
	}

	capArg := step.Current.GetArg(CapArg)
	if len(capArg) == 0 {
		return ledger.ObjectID{}, nil, xerrors.Errorf(notFoundInTxArg, CapArg)
	}

	capID, err := ledger.ParseObjectID(string(capArg))
	if err != nil {
		return ledger.ObjectID{}, nil, xerrors.Errorf("failed to parse cap id: %v", err)
	}

	capObj, err := ledger.LoadObject(snap, capID)
	if err != nil {
		return ledger.ObjectID{}, nil, xerrors.Errorf("failed to load cap: %v", err)
	}

	if capObj.GetType() != CapType {
		return ledger.ObjectID{}, nil, NewUnauthorizedError("object is not a capability")
	}

	if !capObj.GetOwner().Equal(step.Current.GetSender()) {
		return ledger.ObjectID{}, nil, NewUnauthorizedError("sender does not own the capability")
	}

	content, err := DecodeCap(capObj.GetContent())
	if err != nil {
		return ledger.ObjectID{}, nil, err
	}

	if content.AllowlistID != listID.String() {
		return ledger.ObjectID{}, nil, NewUnauthorizedError("capability is bound to another list")
	}

	return listID, list, nil
}

func loadList(snap ledger.Snapshot, step ledger.Step) (ledger.ObjectID, *List, error) {
	listArg := step.Current.GetArg(ListArg)
	if len(listArg) == 0 {
		return ledger.ObjectID{}, nil, xerrors.Errorf(notFoundInTxArg, ListArg)
	}

	listID, err := ledger.ParseObjectID(string(listArg))
	if err != nil {
		return ledger.ObjectID{}, nil, xerrors.Errorf("failed to parse list id: %v", err)
	}

	obj, err := ledger.LoadObject(snap, listID)
	if err != nil {
		return ledger.ObjectID{}, nil, xerrors.Errorf("failed to load list: %v", err)
	}

	if obj.GetType() != ListType {
		return ledger.ObjectID{}, nil, xerrors.Errorf("object %v is not a list", listID)
	}

	list, err := DecodeList(obj.GetContent())
	if err != nil {
		return ledger.ObjectID{}, nil, err
	}

	return listID, &list, nil
}

func storeList(snap ledger.Snapshot, id ledger.ObjectID, list *List) error {
	content, err := json.Marshal(list)
	if err != nil {
		return xerrors.Errorf("failed to marshal list: %v", err)
	}

	err = ledger.StoreObject(snap, ledger.NewObject(id, ListType, ledger.Address{}, content))
	if err != nil {
		return xerrors.Errorf("failed to store list: %v", err)
	}

	return nil
}

func memberArg(step ledger.Step) (ledger.Address, error) {
	raw := step.Current.GetArg(MemberArg)
	if len(raw) == 0 {
		return ledger.Address{}, xerrors.Errorf(notFoundInTxArg, MemberArg)
	}

	member, err := ledger.ParseAddress(string(raw))
	if err != nil {
		// Keep the identity error kind so that clients can tell a malformed
		// address apart from a contract refusal.
		return ledger.Address{}, xerrors.Errorf("invalid member: %w", err)
	}

	return member, nil
}

func isMember(list *List, addr ledger.Address) bool {
	for _, m := range list.Members {
		if m == addr.String() {
			return true
		}
	}

	return false
}

// ApprovalKey returns the dynamic field key recording the approval of the
// member in the table of a list.
func ApprovalKey(member ledger.Address) []byte {
	return append([]byte("approval:"), member.Bytes()...)
}

// BlobKey returns the dynamic field key recording the publication of an
// encrypted document in the table of a list.
func BlobKey(blob []byte) []byte {
	return append([]byte("blob:"), blob...)
}
