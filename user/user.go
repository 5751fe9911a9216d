// Package user implements the user state machine (spec §4.G): the
// composition point for every package below it. It processes inbound
// messages, emits outbound messages, enforces permissions, and manages
// recovery (sync/peek/skip). Grounded on the teacher's toxcore.go (the
// Tox struct: Options, constructor validation, callback-free synchronous
// calls, Bootstrap-style external-service wiring), generalized from a
// single P2P client object into the channel-engine User value spec §5
// requires ("a value owned by exactly one logical actor; its mutating
// operations are not reentrant").
package user

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"github.com/opd-ai/tanglestream/address"
	"github.com/opd-ai/tanglestream/branch"
	"github.com/opd-ai/tanglestream/content"
	"github.com/opd-ai/tanglestream/envelope"
	"github.com/opd-ai/tanglestream/identity"
	"github.com/opd-ai/tanglestream/permission"
	"github.com/opd-ai/tanglestream/spongos"
	"github.com/opd-ai/tanglestream/transport"
)

// User is the channel engine's single entry point: a value owned by
// exactly one logical actor. Its mutating operations are not reentrant —
// callers must not invoke two User methods on the same value concurrently.
// Independent User values derived from the same identity may run
// concurrently since each owns disjoint state (spec §5).
type User struct {
	mu sync.Mutex

	identity  identity.Identity
	transport transport.Transport
	opts      Options

	channel      address.ChannelID
	announceAddr address.Address
	rootTopic    string
	mode         content.ChannelMode
	isAuthor     bool
	authorID     identity.Identifier
	authorXPub   [32]byte

	branches *branch.Store
	perms    *permission.State

	subscribers map[string]*subscriberRecord // accepted subscribers, keyed by identity.Key
	pendingEph  map[string]pendingEphemeral  // Subscribe address string -> our ephemeral keypair

	// msgTopic maps a processed or published message's id back to the
	// topic it belongs to, since an address.MsgID alone does not name its
	// branch. Populated by outbound and dispatchFrame; consulted by
	// FetchPrevMsg/FetchPrevMsgs, which are only ever handed an address.
	msgTopic map[address.MsgID]string

	peek *peekState

	// lastBackupAt is stamped by Backup (crypto.TimeProvider) and restored
	// by Restore, so a caller can tell how stale a restored User's
	// snapshot is without tracking that separately.
	lastBackupAt time.Time
}

// LastBackupAt returns the time this user's most recent snapshot was
// taken (crypto.TimeProvider-derived), or the zero Time if this User has
// never been backed up or restored.
func (u *User) LastBackupAt() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastBackupAt
}

// New constructs a User value bound to id and transport t, ready to
// either CreateChannel or Connect. opts.withDefaults fills unset tunables.
func New(id identity.Identity, t transport.Transport, opts Options) *User {
	return &User{
		identity:    id,
		transport:   t,
		opts:        opts.withDefaults(),
		branches:    branch.NewStore(),
		subscribers: make(map[string]*subscriberRecord),
		pendingEph:  make(map[string]pendingEphemeral),
		msgTopic:    make(map[address.MsgID]string),
	}
}

func topicRef(topic string) [32]byte {
	return blake2b.Sum256([]byte(topic))
}

func (u *User) myIdentifier() identity.Identifier { return u.identity.PublicIdentifier() }
func (u *User) myKey() string                     { return identity.Key(u.myIdentifier()) }

func (u *User) logger(fn string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"function": fn, "package": "user"})
}

// CreateChannel emits an Announce for a new channel, derives its
// identifier from the author's identity and number, and initializes the
// root branch with ACL {Author: Admin}. The author is implicitly accepted
// and unconditionally Admin over every topic (permission.State's
// invariant).
func (u *User) CreateChannel(ctx context.Context, number uint64, rootTopic string) (address.Address, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	log := u.logger("CreateChannel")

	if u.channel != (address.ChannelID{}) {
		return address.Address{}, fmt.Errorf("user: %w: channel already created or connected", ErrInvariantViolation)
	}

	kx, ok := u.identity.(kxKeyExchanger)
	if !ok {
		return address.Address{}, errors.New("user: identity cannot act as channel author without key-exchange capability")
	}

	authorID := u.myIdentifier()
	authorIDBytes := identity.EncodeIdentifier(authorID)

	channelID := address.NewChannelID(authorIDBytes, number)

	msgID := address.NewMsgID(address.ZeroMsgID, authorIDBytes, 0)
	addr := address.Address{Channel: channelID, Msg: msgID}

	ann := &content.Announce{
		AuthorIdentifier: authorIDBytes,
		AuthorXPublic:    kx.XPublic(),
		Mode:             content.ModeMultiBranch,
		RootTopic:        rootTopic,
	}
	body := ann.Encode()

	frame := &envelope.Frame{
		Version:             envelope.Version,
		ContentType:         byte(content.TypeAnnounce),
		Channel:             channelID,
		PredecessorMsg:      address.ZeroMsgID,
		PublisherIdentifier: authorIDBytes,
		Seq:                 0,
		TopicRef:            topicRef(rootTopic),
		Body:                body,
	}

	signable, err := framePrefix(frame, envelope.AuthTagSignature)
	if err != nil {
		return address.Address{}, err
	}
	sig, err := u.identity.Sign(signable)
	if err != nil {
		return address.Address{}, fmt.Errorf("user: signing announce: %w", err)
	}
	frame.AuthTag = sig

	blob, err := envelope.Encode(frame)
	if err != nil {
		return address.Address{}, err
	}
	if err := u.transport.Put(ctx, transport.Index(addr.TangleIndex()), blob); err != nil {
		return address.Address{}, err
	}

	u.channel = channelID
	u.announceAddr = addr
	u.rootTopic = rootTopic
	u.mode = ann.Mode
	u.isAuthor = true
	u.authorID = authorID
	u.authorXPub = kx.XPublic()

	u.perms = permission.NewState(u.myKey())
	u.perms.Accept(u.myKey())

	// Root the branch's sponge chain on the channel id, then absorb the
	// Announce's signed content so every subsequent message on this topic
	// forks from a state that is bound to this specific channel's genesis
	// message, not merely to the channel id.
	root := spongos.New(channelID[:])
	root.Absorb(signable)
	root.Commit()
	u.branches.Init(rootTopic, "", root, addr)
	u.msgTopic[addr.Msg] = rootTopic

	log.WithFields(logrus.Fields{"channel": addr.Channel.String(), "root_topic": rootTopic}).Info("channel created")
	return addr, nil
}

// Connect fetches and validates an Announce at announceAddr, initializing
// the root branch. It does not grant a subscription — callers must still
// Subscribe and have the author AcceptSubscription.
func (u *User) Connect(ctx context.Context, announceAddr address.Address) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.channel != (address.ChannelID{}) {
		return fmt.Errorf("user: %w: channel already created or connected", ErrInvariantViolation)
	}

	blob, err := u.transport.Get(ctx, transport.Index(announceAddr.TangleIndex()))
	if err != nil {
		return err
	}
	frame, err := envelope.Decode(blob)
	if err != nil {
		return err
	}
	if content.Type(frame.ContentType) != content.TypeAnnounce {
		return errors.New("user: address does not hold an Announce")
	}
	if frame.Channel != announceAddr.Channel {
		return errors.New("user: announce channel id mismatch")
	}

	ann, err := content.DecodeAnnounce(frame.Body)
	if err != nil {
		return err
	}
	authorID, err := identity.DecodeIdentifier(ann.AuthorIdentifier)
	if err != nil {
		return err
	}

	signable, err := framePrefix(frame, envelope.AuthTagSignature)
	if err != nil {
		return err
	}
	ok, err := u.identity.Verify(authorID, signable, frame.AuthTag)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAuthenticationFailed
	}

	root := spongos.New(announceAddr.Channel[:])
	root.Absorb(signable)
	root.Commit()

	u.channel = announceAddr.Channel
	u.announceAddr = announceAddr
	u.rootTopic = ann.RootTopic
	u.mode = ann.Mode
	u.isAuthor = false
	u.authorID = authorID
	u.authorXPub = ann.AuthorXPublic

	u.perms = permission.NewState(identity.Key(authorID))
	u.perms.Accept(identity.Key(authorID))
	u.branches.Init(ann.RootTopic, "", root, announceAddr)
	u.msgTopic[announceAddr.Msg] = ann.RootTopic

	u.logger("Connect").WithFields(logrus.Fields{"root_topic": ann.RootTopic}).Info("connected to channel")
	return nil
}

// framePrefix returns everything Encode would produce for f except the
// trailing auth_tag length byte and auth_tag bytes — the bytes a
// signature or sponge-squeezed MAC authenticates. tagLen must be
// envelope.AuthTagMAC or envelope.AuthTagSignature, matching f's eventual
// AuthTag length.
func framePrefix(f *envelope.Frame, tagLen int) ([]byte, error) {
	clone := *f
	clone.AuthTag = make([]byte, tagLen)
	full, err := envelope.Encode(&clone)
	if err != nil {
		return nil, err
	}
	return full[:len(full)-tagLen-1], nil
}
