package user

import (
	"context"
	"errors"
	"testing"

	"github.com/opd-ai/tanglestream/content"
	"github.com/opd-ai/tanglestream/identity"
	"github.com/opd-ai/tanglestream/transport"
)

func newAuthor(t *testing.T) (*User, transport.Transport) {
	t.Helper()
	id, err := identity.GenerateEd25519Keypair()
	if err != nil {
		t.Fatalf("GenerateEd25519Keypair() error: %v", err)
	}
	tr := transport.NewMemoryTransport()
	return New(id, tr, NewOptions()), tr
}

func newReaderOn(t *testing.T, tr transport.Transport) *User {
	t.Helper()
	id, err := identity.GenerateEd25519Keypair()
	if err != nil {
		t.Fatalf("GenerateEd25519Keypair() error: %v", err)
	}
	return New(id, tr, NewOptions())
}

func TestCreateChannelInitializesRootBranch(t *testing.T) {
	author, _ := newAuthor(t)
	addr, err := author.CreateChannel(context.Background(), 0, "root")
	if err != nil {
		t.Fatalf("CreateChannel() error: %v", err)
	}
	if addr.Channel != author.channel {
		t.Error("CreateChannel() returned address for a different channel than it recorded")
	}
	if !author.perms.MayAdmin(author.myKey(), "root") {
		t.Error("author is not Admin over its own root branch")
	}
}

func TestConnectRejectsSecondChannel(t *testing.T) {
	author, tr := newAuthor(t)
	ctx := context.Background()
	addr, err := author.CreateChannel(ctx, 0, "root")
	if err != nil {
		t.Fatalf("CreateChannel() error: %v", err)
	}

	reader := newReaderOn(t, tr)
	if err := reader.Connect(ctx, addr); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := reader.Connect(ctx, addr); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("second Connect() error = %v, want ErrInvariantViolation", err)
	}
}

func TestSubscribeAcceptGrantsReadOnly(t *testing.T) {
	ctx := context.Background()
	author, tr := newAuthor(t)
	addr, err := author.CreateChannel(ctx, 0, "root")
	if err != nil {
		t.Fatalf("CreateChannel() error: %v", err)
	}

	reader := newReaderOn(t, tr)
	if err := reader.Connect(ctx, addr); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	subAddr, err := reader.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	subscriberID, err := author.AcceptSubscription(ctx, subAddr)
	if err != nil {
		t.Fatalf("AcceptSubscription() error: %v", err)
	}
	lvl, err := author.perms.Effective(identity.Key(subscriberID), "root")
	if err != nil {
		t.Fatalf("Effective() error: %v", err)
	}
	if lvl != content.LevelReadOnly {
		t.Errorf("Effective() = %v, want ReadOnly after AcceptSubscription", lvl)
	}

	if _, err := reader.Sync(ctx); err != nil {
		t.Fatalf("reader Sync() error: %v", err)
	}
	if reader.perms.MayWrite(reader.myKey(), "root") {
		t.Error("reader should not have write access from a ReadOnly grant")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	author, tr := newAuthor(t)
	addr, err := author.CreateChannel(ctx, 0, "root")
	if err != nil {
		t.Fatalf("CreateChannel() error: %v", err)
	}

	reader := newReaderOn(t, tr)
	if err := reader.Connect(ctx, addr); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	subAddr, err := reader.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	subscriberID, err := author.AcceptSubscription(ctx, subAddr)
	if err != nil {
		t.Fatalf("AcceptSubscription() error: %v", err)
	}
	if _, err := author.Permissions("root").Change(subscriberID, content.LevelReadWrite).Apply(ctx); err != nil {
		t.Fatalf("Permissions().Apply() error: %v", err)
	}

	msgAddr, err := author.Message().Topic("root").Payload([]byte("hello")).Tagged().Send(ctx)
	if err != nil {
		t.Fatalf("Message().Send() error: %v", err)
	}

	n, err := reader.Sync(ctx)
	if err != nil {
		t.Fatalf("reader Sync() error: %v", err)
	}
	if n == 0 {
		t.Fatal("reader Sync() applied no messages")
	}

	msg, err := reader.FetchPrevMsg(ctx, msgAddr)
	if err != nil {
		t.Fatalf("FetchPrevMsg() error: %v", err)
	}
	_ = msg
}

func TestPermissionsApplyPreservesEarlierGrants(t *testing.T) {
	ctx := context.Background()
	author, tr := newAuthor(t)
	addr, err := author.CreateChannel(ctx, 0, "root")
	if err != nil {
		t.Fatalf("CreateChannel() error: %v", err)
	}

	alice := newReaderOn(t, tr)
	if err := alice.Connect(ctx, addr); err != nil {
		t.Fatalf("alice Connect() error: %v", err)
	}
	aliceSub, err := alice.Subscribe(ctx)
	if err != nil {
		t.Fatalf("alice Subscribe() error: %v", err)
	}
	aliceID, err := author.AcceptSubscription(ctx, aliceSub)
	if err != nil {
		t.Fatalf("AcceptSubscription(alice) error: %v", err)
	}

	bob := newReaderOn(t, tr)
	if err := bob.Connect(ctx, addr); err != nil {
		t.Fatalf("bob Connect() error: %v", err)
	}
	bobSub, err := bob.Subscribe(ctx)
	if err != nil {
		t.Fatalf("bob Subscribe() error: %v", err)
	}
	if _, err := author.AcceptSubscription(ctx, bobSub); err != nil {
		t.Fatalf("AcceptSubscription(bob) error: %v", err)
	}

	// Bob's acceptance issued a second Keyload that rotates root's content
	// key. Alice was never touched by that call, but she must still be
	// able to decrypt what the author publishes afterward: her entry from
	// the first Keyload has to be carried forward onto the second one.
	lvl, err := author.perms.Effective(identity.Key(aliceID), "root")
	if err != nil {
		t.Fatalf("Effective(alice) error: %v", err)
	}
	if lvl != content.LevelReadOnly {
		t.Fatalf("Effective(alice) after bob's acceptance = %v, want still ReadOnly", lvl)
	}

	if _, err := alice.Sync(ctx); err != nil {
		t.Fatalf("alice Sync() after key rotation error: %v", err)
	}
	if _, err := author.Message().Topic("root").Payload([]byte("after rotation")).Tagged().Send(ctx); err != nil {
		t.Fatalf("Message().Send() error: %v", err)
	}
	msgs, err := alice.FetchNextMsgs(ctx, 1)
	if err != nil {
		t.Fatalf("FetchNextMsgs() error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("FetchNextMsgs() returned %d messages, want 1", len(msgs))
	}
	if string(msgs[0].MaskedPayload) != "after rotation" {
		t.Errorf("MaskedPayload = %q, want alice to decrypt the post-rotation message", msgs[0].MaskedPayload)
	}
}

func TestUnsubscribeRequiresConnection(t *testing.T) {
	id, err := identity.GenerateEd25519Keypair()
	if err != nil {
		t.Fatalf("GenerateEd25519Keypair() error: %v", err)
	}
	u := New(id, transport.NewMemoryTransport(), NewOptions())
	if _, err := u.Unsubscribe(context.Background()); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("Unsubscribe() error = %v, want ErrInvariantViolation", err)
	}
}

func TestBranchFromRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	author, tr := newAuthor(t)
	addr, err := author.CreateChannel(ctx, 0, "root")
	if err != nil {
		t.Fatalf("CreateChannel() error: %v", err)
	}

	reader := newReaderOn(t, tr)
	if err := reader.Connect(ctx, addr); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if _, err := reader.BranchFrom(ctx, "root", "root/private"); err != ErrPermissionDenied {
		t.Errorf("BranchFrom() error = %v, want ErrPermissionDenied", err)
	}

	if _, err := author.BranchFrom(ctx, "root", "root/private"); err != nil {
		t.Fatalf("author BranchFrom() error: %v", err)
	}
	if !author.perms.MayAdmin(author.myKey(), "root/private") {
		t.Error("author should be Admin over the branch it just created")
	}
}

func TestBackupRestoreResumesWithoutReconnecting(t *testing.T) {
	ctx := context.Background()
	author, tr := newAuthor(t)
	addr, err := author.CreateChannel(ctx, 0, "root")
	if err != nil {
		t.Fatalf("CreateChannel() error: %v", err)
	}

	reader := newReaderOn(t, tr)
	if err := reader.Connect(ctx, addr); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	subAddr, err := reader.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	if _, err := author.AcceptSubscription(ctx, subAddr); err != nil {
		t.Fatalf("AcceptSubscription() error: %v", err)
	}
	if _, err := reader.Sync(ctx); err != nil {
		t.Fatalf("reader Sync() error: %v", err)
	}

	password := []byte("hunter2-hunter2")
	blob, err := reader.Backup(password)
	if err != nil {
		t.Fatalf("Backup() error: %v", err)
	}

	restored, err := Restore(password, blob, tr, NewOptions())
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if restored.channel != reader.channel {
		t.Error("Restore() did not recover the original channel binding")
	}
	if restored.rootTopic != reader.rootTopic {
		t.Error("Restore() did not recover the original root topic")
	}

	if _, err := author.Message().Topic("root").Payload([]byte("after restore")).Tagged().Send(ctx); err != nil {
		t.Fatalf("Message().Send() error: %v", err)
	}
	if _, err := restored.Sync(ctx); err != nil {
		t.Fatalf("restored Sync() error: %v", err)
	}
}

// TestPSKGroupThreeReadersDecode covers spec §8 scenario S4: three
// physically distinct readers who all hold the same pre-shared seed
// (hence the same PSK group identifier) each independently decode a
// message sealed under one symmetric Keyload grant to that group.
func TestPSKGroupThreeReadersDecode(t *testing.T) {
	ctx := context.Background()
	author, tr := newAuthor(t)
	addr, err := author.CreateChannel(ctx, 0, "root")
	if err != nil {
		t.Fatalf("CreateChannel() error: %v", err)
	}

	seed := []byte("a shared group seed, 32 bytes!!")
	pskID, err := identity.NewPreSharedKey(seed)
	if err != nil {
		t.Fatalf("NewPreSharedKey() error: %v", err)
	}
	pskKey, err := identity.DerivePSKKey(seed)
	if err != nil {
		t.Fatalf("DerivePSKKey() error: %v", err)
	}

	readers := make([]*User, 3)
	for i := range readers {
		r := New(pskID, tr, NewOptions())
		if err := r.Connect(ctx, addr); err != nil {
			t.Fatalf("reader[%d] Connect() error: %v", i, err)
		}
		readers[i] = r
	}

	if _, err := author.Permissions("root").AddPSKGroup(pskID.PublicIdentifier(), pskKey, content.LevelReadOnly).Apply(ctx); err != nil {
		t.Fatalf("Permissions().AddPSKGroup().Apply() error: %v", err)
	}

	if _, err := author.Message().Topic("root").Payload([]byte("group secret")).Tagged().Send(ctx); err != nil {
		t.Fatalf("Message().Send() error: %v", err)
	}

	for i, r := range readers {
		msgs, err := r.FetchNextMsgs(ctx, 2)
		if err != nil {
			t.Fatalf("reader[%d] FetchNextMsgs() error: %v", i, err)
		}
		var got []byte
		for _, m := range msgs {
			if len(m.MaskedPayload) > 0 {
				got = m.MaskedPayload
			}
		}
		if string(got) != "group secret" {
			t.Errorf("reader[%d] decoded masked payload = %q, want %q", i, got, "group secret")
		}
	}
}

// TestForkTieBreakBothConcurrentWritersApplied covers spec §8 scenario
// S6: two writers both publish from the same predecessor before either
// has seen the other's message (a fork), and a third party syncing
// afterward discovers and applies both instead of only one.
func TestForkTieBreakBothConcurrentWritersApplied(t *testing.T) {
	ctx := context.Background()
	author, tr := newAuthor(t)
	addr, err := author.CreateChannel(ctx, 0, "root")
	if err != nil {
		t.Fatalf("CreateChannel() error: %v", err)
	}

	alice := newReaderOn(t, tr)
	if err := alice.Connect(ctx, addr); err != nil {
		t.Fatalf("alice Connect() error: %v", err)
	}
	aliceSub, err := alice.Subscribe(ctx)
	if err != nil {
		t.Fatalf("alice Subscribe() error: %v", err)
	}
	aliceID, err := author.AcceptSubscription(ctx, aliceSub)
	if err != nil {
		t.Fatalf("AcceptSubscription(alice) error: %v", err)
	}
	if _, err := author.Permissions("root").Change(aliceID, content.LevelReadWrite).Apply(ctx); err != nil {
		t.Fatalf("grant alice ReadWrite error: %v", err)
	}

	bob := newReaderOn(t, tr)
	if err := bob.Connect(ctx, addr); err != nil {
		t.Fatalf("bob Connect() error: %v", err)
	}
	bobSub, err := bob.Subscribe(ctx)
	if err != nil {
		t.Fatalf("bob Subscribe() error: %v", err)
	}
	bobID, err := author.AcceptSubscription(ctx, bobSub)
	if err != nil {
		t.Fatalf("AcceptSubscription(bob) error: %v", err)
	}
	if _, err := author.Permissions("root").Change(bobID, content.LevelReadWrite).Apply(ctx); err != nil {
		t.Fatalf("grant bob ReadWrite error: %v", err)
	}

	if _, err := alice.Sync(ctx); err != nil {
		t.Fatalf("alice Sync() before fork error: %v", err)
	}
	if _, err := bob.Sync(ctx); err != nil {
		t.Fatalf("bob Sync() before fork error: %v", err)
	}

	// Neither alice nor bob has seen the other's message yet: both fork
	// from the same predecessor.
	if _, err := alice.Message().Topic("root").Payload([]byte("from alice")).Tagged().Send(ctx); err != nil {
		t.Fatalf("alice Message().Send() error: %v", err)
	}
	if _, err := bob.Message().Topic("root").Payload([]byte("from bob")).Tagged().Send(ctx); err != nil {
		t.Fatalf("bob Message().Send() error: %v", err)
	}

	msgs, err := author.FetchNextMsgs(ctx, 2)
	if err != nil {
		t.Fatalf("author FetchNextMsgs() error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("author FetchNextMsgs() applied %d messages, want 2 (both sides of the fork)", len(msgs))
	}
	seen := map[string]bool{}
	for _, m := range msgs {
		seen[string(m.MaskedPayload)] = true
	}
	if !seen["from alice"] || !seen["from bob"] {
		t.Errorf("FetchNextMsgs() payloads = %v, want both fork branches applied", seen)
	}
}

func TestBackupRejectsUnsupportedIdentity(t *testing.T) {
	psk, err := identity.NewPreSharedKey([]byte("a shared group seed, 32 bytes!!"))
	if err != nil {
		t.Fatalf("NewPreSharedKey() error: %v", err)
	}
	u := New(psk, transport.NewMemoryTransport(), NewOptions())
	if _, err := u.Backup([]byte("pw")); err != ErrUnsupportedIdentity {
		t.Errorf("Backup() error = %v, want ErrUnsupportedIdentity", err)
	}
}
