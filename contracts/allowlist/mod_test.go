package allowlist

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.signet.dev/signet/internal/testing/fake"
	"go.signet.dev/signet/ledger"
)

func TestExecute(t *testing.T) {
	contract := NewContract()

	err := contract.Execute(fake.NewSnapshot(), makeStep(t, owner))
	require.EqualError(t, err, "'allowlist:command' not found in tx arg")

	contract.cmd = fakeCmd{err: fake.GetError()}

	err = contract.Execute(fake.NewSnapshot(), makeStep(t, owner, CmdArg, "CREATE"))
	require.EqualError(t, err, fake.Err("failed to CREATE"))

	err = contract.Execute(fake.NewSnapshot(), makeStep(t, owner, CmdArg, "ADD"))
	require.EqualError(t, err, fake.Err("failed to ADD"))

	err = contract.Execute(fake.NewSnapshot(), makeStep(t, owner, CmdArg, "REMOVE"))
	require.EqualError(t, err, fake.Err("failed to REMOVE"))

	err = contract.Execute(fake.NewSnapshot(), makeStep(t, owner, CmdArg, "SIGN"))
	require.EqualError(t, err, fake.Err("failed to SIGN"))

	err = contract.Execute(fake.NewSnapshot(), makeStep(t, owner, CmdArg, "PUBLISH"))
	require.EqualError(t, err, fake.Err("failed to PUBLISH"))

	err = contract.Execute(fake.NewSnapshot(), makeStep(t, owner, CmdArg, "APPROVE"))
	require.EqualError(t, err, fake.Err("failed to APPROVE"))

	err = contract.Execute(fake.NewSnapshot(), makeStep(t, owner, CmdArg, "fake"))
	require.EqualError(t, err, "unknown command: fake")

	call := &fake.Call{}
	contract.cmd = fakeCmd{call: call}

	err = contract.Execute(fake.NewSnapshot(), makeStep(t, owner, CmdArg, "CREATE"))
	require.NoError(t, err)
	require.Equal(t, 1, call.Len())
	require.Equal(t, "create", call.Get(0, 0))
}

func TestExecute_KeepsErrorKinds(t *testing.T) {
	contract := NewContract()

	snap, env := makeList(t, contract)

	err := contract.Execute(snap, makeStep(t, owner,
		CmdArg, "ADD",
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
		MemberArg, member.String(),
	))
	require.NoError(t, err)

	err = contract.Execute(snap, makeStep(t, owner,
		CmdArg, "ADD",
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
		MemberArg, member.String(),
	))
	require.ErrorIs(t, err, NewAlreadyMemberError(member))
}

func TestCommand_Create(t *testing.T) {
	contract := NewContract()

	cmd := allowlistCommand{Contract: &contract}

	err := cmd.create(fake.NewSnapshot(), makeStep(t, owner))
	require.EqualError(t, err, "'allowlist:name' not found in tx arg")

	err = cmd.create(fake.NewBadSnapshot(), makeStep(t, owner, NameArg, "docs"))
	require.EqualError(t, err, fake.Err("failed to store list: failed to set object"))

	snap := fake.NewSnapshot()
	step := makeStep(t, owner, NameArg, "docs")

	err = cmd.create(snap, step)
	require.NoError(t, err)

	listID := ledger.DeriveID(step.Current.GetHash(), 0)
	capID := ledger.DeriveID(step.Current.GetHash(), 1)
	tableID := ledger.DeriveID(step.Current.GetHash(), 2)

	list, err := ledger.LoadObject(snap, listID)
	require.NoError(t, err)
	require.Equal(t, ListType, list.GetType())
	require.True(t, list.GetOwner().IsZero())

	capObj, err := ledger.LoadObject(snap, capID)
	require.NoError(t, err)
	require.Equal(t, CapType, capObj.GetType())
	require.True(t, capObj.GetOwner().Equal(owner))

	table, err := ledger.LoadObject(snap, tableID)
	require.NoError(t, err)
	require.Equal(t, TableType, table.GetType())
}

func TestCommand_Add(t *testing.T) {
	contract := NewContract()

	cmd := allowlistCommand{Contract: &contract}

	err := cmd.add(fake.NewSnapshot(), makeStep(t, owner))
	require.EqualError(t, err, "'allowlist:list' not found in tx arg")

	err = cmd.add(fake.NewSnapshot(), makeStep(t, owner, ListArg, "abc"))
	require.EqualError(t, err, "failed to parse list id: malformed object id 'abc'")

	snap, env := makeList(t, contract)

	err = cmd.add(snap, makeStep(t, owner, ListArg, env.listID.String()))
	require.EqualError(t, err, "'allowlist:cap' not found in tx arg")

	err = cmd.add(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, env.tableID.String(),
	))
	require.EqualError(t, err, "unauthorized: object is not a capability")

	err = cmd.add(snap, makeStep(t, member,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
	))
	require.EqualError(t, err, "unauthorized: sender does not own the capability")

	err = cmd.add(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
	))
	require.EqualError(t, err, "'allowlist:member' not found in tx arg")

	err = cmd.add(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
		MemberArg, "not-an-address",
	))
	require.ErrorIs(t, err, ledger.NewInvalidIdentityError("not-an-address"))

	err = cmd.add(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
		MemberArg, member.String(),
	))
	require.NoError(t, err)

	err = cmd.add(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
		MemberArg, member.String(),
	))
	require.ErrorIs(t, err, NewAlreadyMemberError(member))

	require.Equal(t, []string{member.String()}, loadMembers(t, snap, env.listID))
}

func TestCommand_Add_ForeignCap(t *testing.T) {
	contract := NewContract()

	cmd := allowlistCommand{Contract: &contract}

	snap, env := makeList(t, contract)

	// A capability of another list must not unlock this one.
	otherStep := makeStep(t, owner, NameArg, "other")
	err := cmd.create(snap, otherStep)
	require.NoError(t, err)

	otherCap := ledger.DeriveID(otherStep.Current.GetHash(), 1)

	err = cmd.add(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, otherCap.String(),
		MemberArg, member.String(),
	))
	require.EqualError(t, err, "unauthorized: capability is bound to another list")
}

func TestCommand_Remove(t *testing.T) {
	contract := NewContract()

	cmd := allowlistCommand{Contract: &contract}

	snap, env := makeList(t, contract)

	err := cmd.add(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
		MemberArg, member.String(),
	))
	require.NoError(t, err)

	err = cmd.remove(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
		MemberArg, stranger.String(),
	))
	require.EqualError(t, err, "identity "+stranger.String()+" is not a member")

	err = cmd.remove(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
		MemberArg, member.String(),
	))
	require.NoError(t, err)

	require.Empty(t, loadMembers(t, snap, env.listID))
}

func TestCommand_Remove_ApprovedMember(t *testing.T) {
	contract := NewContract()

	cmd := allowlistCommand{Contract: &contract}

	snap, env := makeList(t, contract)

	err := cmd.add(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
		MemberArg, member.String(),
	))
	require.NoError(t, err)

	err = cmd.sign(snap, makeStep(t, member, ListArg, env.listID.String()))
	require.NoError(t, err)

	err = cmd.remove(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
		MemberArg, member.String(),
	))
	require.ErrorIs(t, err, NewHasApprovedError(member))

	require.Equal(t, []string{member.String()}, loadMembers(t, snap, env.listID))
}

func TestCommand_Sign(t *testing.T) {
	contract := NewContract()

	cmd := allowlistCommand{Contract: &contract}

	snap, env := makeList(t, contract)

	err := cmd.sign(snap, makeStep(t, member, ListArg, env.listID.String()))
	require.EqualError(t, err, "unauthorized: sender is not a member")

	err = cmd.add(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
		MemberArg, member.String(),
	))
	require.NoError(t, err)

	err = cmd.sign(snap, makeStep(t, member, ListArg, env.listID.String()))
	require.NoError(t, err)

	// Signing again is a no-op.
	err = cmd.sign(snap, makeStep(t, member, ListArg, env.listID.String()))
	require.NoError(t, err)

	value, err := ledger.GetFieldValue(snap, env.tableID, ApprovalKey(member))
	require.NoError(t, err)
	require.Equal(t, approvedValue, value)
}

func TestCommand_Publish(t *testing.T) {
	contract := NewContract()

	cmd := allowlistCommand{Contract: &contract}

	snap, env := makeList(t, contract)

	err := cmd.publish(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
	))
	require.EqualError(t, err, "'allowlist:blob' not found in tx arg")

	err = cmd.publish(snap, makeStep(t, member,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
		BlobArg, "blob-1",
	))
	require.EqualError(t, err, "unauthorized: sender does not own the capability")

	err = cmd.publish(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
		BlobArg, "blob-1",
	))
	require.NoError(t, err)

	value, err := ledger.GetFieldValue(snap, env.tableID, BlobKey([]byte("blob-1")))
	require.NoError(t, err)
	require.Equal(t, approvedValue, value)
}

func TestCommand_Approve(t *testing.T) {
	contract := NewContract()

	cmd := allowlistCommand{Contract: &contract}

	snap, env := makeList(t, contract)

	err := cmd.add(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
		MemberArg, member.String(),
	))
	require.NoError(t, err)

	err = cmd.publish(snap, makeStep(t, owner,
		ListArg, env.listID.String(),
		CapArg, env.capID.String(),
		BlobArg, "blob-1",
	))
	require.NoError(t, err)

	err = cmd.approve(snap, makeStep(t, stranger,
		ListArg, env.listID.String(),
		BlobArg, "blob-1",
	))
	require.ErrorIs(t, err, NewPolicyRefusedError("sender is not a member"))

	err = cmd.approve(snap, makeStep(t, member,
		ListArg, env.listID.String(),
		BlobArg, "blob-2",
	))
	require.ErrorIs(t, err, NewPolicyRefusedError("blob is not published under the list"))

	err = cmd.approve(snap, makeStep(t, member,
		ListArg, env.listID.String(),
		BlobArg, "blob-1",
	))
	require.NoError(t, err)
}

// -----------------------------------------------------------------------------
// Utility functions

var (
	owner    = ledger.Address{0xaa}
	member   = ledger.Address{0xbb}
	stranger = ledger.Address{0xcc}
)

type listEnv struct {
	listID  ledger.ObjectID
	capID   ledger.ObjectID
	tableID ledger.ObjectID
}

func makeList(t *testing.T, contract Contract) (*fake.InMemorySnapshot, listEnv) {
	snap := fake.NewSnapshot()

	cmd := allowlistCommand{Contract: &contract}

	step := makeStep(t, owner, NameArg, "docs")

	err := cmd.create(snap, step)
	require.NoError(t, err)

	seed := step.Current.GetHash()

	return snap, listEnv{
		listID:  ledger.DeriveID(seed, 0),
		capID:   ledger.DeriveID(seed, 1),
		tableID: ledger.DeriveID(seed, 2),
	}
}

func loadMembers(t *testing.T, snap ledger.Snapshot, id ledger.ObjectID) []string {
	_, list, err := loadList(snap, makeStep(t, owner, ListArg, id.String()))
	require.NoError(t, err)

	return list.Members
}

func makeStep(t *testing.T, sender ledger.Address, args ...string) ledger.Step {
	return ledger.Step{Current: makeTx(t, sender, args...)}
}

func makeTx(t *testing.T, sender ledger.Address, args ...string) ledger.Transaction {
	require.Equal(t, 0, len(args)%2)

	opts := []ledger.TransactionOption{}
	for i := 0; i < len(args)-1; i += 2 {
		opts = append(opts, ledger.WithArg(args[i], []byte(args[i+1])))
	}

	return ledger.NewTransaction(sender, ContractName, opts...)
}

type fakeCmd struct {
	err  error
	call *fake.Call
}

func (c fakeCmd) record(name string) {
	if c.call != nil {
		c.call.Add(name)
	}
}

func (c fakeCmd) create(snap ledger.Snapshot, step ledger.Step) error {
	c.record("create")
	return c.err
}

func (c fakeCmd) add(snap ledger.Snapshot, step ledger.Step) error {
	c.record("add")
	return c.err
}

func (c fakeCmd) remove(snap ledger.Snapshot, step ledger.Step) error {
	c.record("remove")
	return c.err
}

func (c fakeCmd) sign(snap ledger.Snapshot, step ledger.Step) error {
	c.record("sign")
	return c.err
}

func (c fakeCmd) publish(snap ledger.Snapshot, step ledger.Step) error {
	c.record("publish")
	return c.err
}

func (c fakeCmd) approve(snap ledger.Snapshot, step ledger.Step) error {
	c.record("approve")
	return c.err
}
