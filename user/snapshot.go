package user

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/opd-ai/tanglestream/address"
	"github.com/opd-ai/tanglestream/branch"
	"github.com/opd-ai/tanglestream/content"
	"github.com/opd-ai/tanglestream/crypto"
	"github.com/opd-ai/tanglestream/identity"
	"github.com/opd-ai/tanglestream/permission"
	"github.com/opd-ai/tanglestream/snapshot"
	"github.com/opd-ai/tanglestream/transport"
)

// errMalformedState is returned when a decrypted snapshot payload cannot
// be parsed, distinct from snapshot.ErrCorruptSnapshot (which covers the
// outer sealed envelope) so a caller can tell a wrong password apart from
// a payload this version of the engine does not understand.
var errMalformedState = errors.New("user: malformed snapshot payload")

const stateVersion = 1

// Backup serializes this user's entire recoverable state — identity key
// material, every branch's chain position and content key, permission
// state, and known subscribers — and seals it with password via
// snapshot.Backup. Returns ErrUnsupportedIdentity if the identity backing
// this user cannot be serialized (anything but identity.Ed25519Keypair).
func (u *User) Backup(password []byte) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	kp, ok := u.identity.(interface {
		Seed() (ed25519Seed [32]byte, kxScalar [32]byte)
	})
	if !ok {
		return nil, ErrUnsupportedIdentity
	}
	ed25519Seed, kxScalar := kp.Seed()
	defer crypto.ZeroBytes(ed25519Seed[:])
	defer crypto.ZeroBytes(kxScalar[:])

	backedUpAt := crypto.GetDefaultTimeProvider().Now()
	u.lastBackupAt = backedUpAt

	payload := u.encodeState(ed25519Seed, kxScalar, backedUpAt)
	return snapshot.Backup(password, payload)
}

// Restore rebuilds a User from a snapshot previously produced by Backup,
// ready to resume operation immediately: no Subscribe/AcceptSubscription
// round-trip or re-sync is required. t is the transport to bind the
// restored user to.
func Restore(password, blob []byte, t transport.Transport, opts Options) (*User, error) {
	payload, err := snapshot.Restore(password, blob)
	if err != nil {
		return nil, err
	}
	return decodeState(payload, t, opts)
}

func (u *User) encodeState(ed25519Seed, kxScalar [32]byte, backedUpAt time.Time) []byte {
	var buf []byte
	buf = append(buf, stateVersion)
	buf = append(buf, ed25519Seed[:]...)
	buf = append(buf, kxScalar[:]...)
	buf = appendUint64(buf, uint64(backedUpAt.Unix()))
	buf = append(buf, u.channel[:]...)
	buf = append(buf, u.announceAddr.Msg[:]...)
	buf = appendString(buf, u.rootTopic)
	buf = append(buf, byte(u.mode))
	buf = append(buf, boolByte(u.isAuthor))
	buf = appendBytes(buf, identity.EncodeIdentifier(u.authorID))
	buf = append(buf, u.authorXPub[:]...)

	branchSnaps := u.branches.Export()
	buf = appendUint32(buf, uint32(len(branchSnaps)))
	for _, b := range branchSnaps {
		buf = appendString(buf, b.Topic)
		buf = appendString(buf, b.ParentTopic)
		buf = append(buf, b.SpongeChain[:]...)
		buf = appendUint64(buf, b.SpongeCounter)
		buf = append(buf, b.Key[:]...)
		buf = append(buf, b.Tip.Channel[:]...)
		buf = append(buf, b.Tip.Msg[:]...)
		buf = appendUint32(buf, uint32(len(b.Cursors)))
		for key, cur := range b.Cursors {
			buf = appendBytes(buf, []byte(key))
			buf = append(buf, cur.Address.Channel[:]...)
			buf = append(buf, cur.Address.Msg[:]...)
			buf = appendUint64(buf, cur.Seq)
		}
	}

	acls, accepted, pskHolders := u.perms.Export()
	buf = appendUint32(buf, uint32(len(acls)))
	for _, a := range acls {
		buf = appendString(buf, a.Topic)
		buf = appendString(buf, a.Parent)
		buf = appendUint32(buf, uint32(len(a.ACL)))
		for _, e := range a.ACL {
			buf = appendBytes(buf, e.Identifier)
			buf = append(buf, byte(e.Level))
		}
	}
	buf = appendUint32(buf, uint32(len(accepted)))
	for _, key := range accepted {
		buf = appendBytes(buf, []byte(key))
	}
	buf = appendUint32(buf, uint32(len(pskHolders)))
	for _, key := range pskHolders {
		buf = appendBytes(buf, []byte(key))
	}

	buf = appendUint32(buf, uint32(len(u.subscribers)))
	for key, sub := range u.subscribers {
		buf = appendBytes(buf, []byte(key))
		buf = appendBytes(buf, identity.EncodeIdentifier(sub.identifier))
		buf = append(buf, sub.ephemeral[:]...)
		buf = append(buf, boolByte(sub.hasKX))
	}

	buf = appendUint32(buf, uint32(len(u.pendingEph)))
	for key, eph := range u.pendingEph {
		buf = appendString(buf, key)
		buf = append(buf, eph.pub[:]...)
		buf = append(buf, eph.priv[:]...)
	}

	buf = appendUint32(buf, uint32(len(u.msgTopic)))
	for msgID, topic := range u.msgTopic {
		buf = append(buf, msgID[:]...)
		buf = appendString(buf, topic)
	}

	return buf
}

func decodeState(data []byte, t transport.Transport, opts Options) (*User, error) {
	r := data
	version, r, ok := takeByte(r)
	if !ok || version != stateVersion {
		return nil, errMalformedState
	}

	var ed25519Seed, kxScalar [32]byte
	if !takeFixed(&r, ed25519Seed[:]) || !takeFixed(&r, kxScalar[:]) {
		return nil, errMalformedState
	}
	id := identity.FromSeed(ed25519Seed, kxScalar)
	crypto.ZeroBytes(ed25519Seed[:])
	crypto.ZeroBytes(kxScalar[:])

	u := New(id, t, opts)

	backedUpAt, r, ok := takeUint64(r)
	if !ok {
		return nil, errMalformedState
	}
	u.lastBackupAt = time.Unix(int64(backedUpAt), 0).UTC()

	if !takeFixed(&r, u.channel[:]) || !takeFixed(&r, u.announceAddr.Msg[:]) {
		return nil, errMalformedState
	}
	u.announceAddr.Channel = u.channel

	rootTopic, rest, err := readString(r)
	if err != nil {
		return nil, err
	}
	r = rest
	u.rootTopic = rootTopic

	modeByte, r, ok := takeByte(r)
	if !ok {
		return nil, errMalformedState
	}
	u.mode = content.ChannelMode(modeByte)

	isAuthorByte, r, ok := takeByte(r)
	if !ok {
		return nil, errMalformedState
	}
	u.isAuthor = isAuthorByte != 0

	authorIDBytes, r, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	authorID, err := identity.DecodeIdentifier(authorIDBytes)
	if err != nil {
		return nil, err
	}
	u.authorID = authorID

	if !takeFixed(&r, u.authorXPub[:]) {
		return nil, errMalformedState
	}

	branchCount, r, ok := takeUint32(r)
	if !ok {
		return nil, errMalformedState
	}
	branchSnaps := make([]branch.Snapshot, 0, branchCount)
	for i := uint32(0); i < branchCount; i++ {
		var snap branch.Snapshot
		snap.Topic, r, err = readString(r)
		if err != nil {
			return nil, err
		}
		snap.ParentTopic, r, err = readString(r)
		if err != nil {
			return nil, err
		}
		if !takeFixed(&r, snap.SpongeChain[:]) {
			return nil, errMalformedState
		}
		var counter uint64
		counter, r, ok = takeUint64(r)
		if !ok {
			return nil, errMalformedState
		}
		snap.SpongeCounter = counter
		if !takeFixed(&r, snap.Key[:]) {
			return nil, errMalformedState
		}
		if !takeFixed(&r, snap.Tip.Channel[:]) || !takeFixed(&r, snap.Tip.Msg[:]) {
			return nil, errMalformedState
		}
		var cursorCount uint32
		cursorCount, r, ok = takeUint32(r)
		if !ok {
			return nil, errMalformedState
		}
		snap.Cursors = make(map[string]branch.Cursor, cursorCount)
		for j := uint32(0); j < cursorCount; j++ {
			keyBytes, rest, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			r = rest
			var cur branch.Cursor
			if !takeFixed(&r, cur.Address.Channel[:]) || !takeFixed(&r, cur.Address.Msg[:]) {
				return nil, errMalformedState
			}
			var seq uint64
			seq, r, ok = takeUint64(r)
			if !ok {
				return nil, errMalformedState
			}
			cur.Seq = seq
			snap.Cursors[string(keyBytes)] = cur
		}
		branchSnaps = append(branchSnaps, snap)
	}
	u.branches = branch.Import(branchSnaps)

	aclCount, r, ok := takeUint32(r)
	if !ok {
		return nil, errMalformedState
	}
	acls := make([]permission.Snapshot, 0, aclCount)
	for i := uint32(0); i < aclCount; i++ {
		var snap permission.Snapshot
		snap.Topic, r, err = readString(r)
		if err != nil {
			return nil, err
		}
		snap.Parent, r, err = readString(r)
		if err != nil {
			return nil, err
		}
		var entryCount uint32
		entryCount, r, ok = takeUint32(r)
		if !ok {
			return nil, errMalformedState
		}
		snap.ACL = make([]content.ACLEntry, 0, entryCount)
		for j := uint32(0); j < entryCount; j++ {
			idBytes, rest, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			r = rest
			levelByte, rest2, ok := takeByte(r)
			if !ok {
				return nil, errMalformedState
			}
			r = rest2
			snap.ACL = append(snap.ACL, content.ACLEntry{Identifier: idBytes, Level: content.Level(levelByte)})
		}
		acls = append(acls, snap)
	}

	acceptedCount, r, ok := takeUint32(r)
	if !ok {
		return nil, errMalformedState
	}
	accepted := make([]string, 0, acceptedCount)
	for i := uint32(0); i < acceptedCount; i++ {
		keyBytes, rest, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		r = rest
		accepted = append(accepted, string(keyBytes))
	}

	pskCount, r, ok := takeUint32(r)
	if !ok {
		return nil, errMalformedState
	}
	pskHolders := make([]string, 0, pskCount)
	for i := uint32(0); i < pskCount; i++ {
		keyBytes, rest, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		r = rest
		pskHolders = append(pskHolders, string(keyBytes))
	}

	authorKey := identity.Key(authorID)
	u.perms = permission.Import(authorKey, acls, accepted, pskHolders)

	subCount, r, ok := takeUint32(r)
	if !ok {
		return nil, errMalformedState
	}
	for i := uint32(0); i < subCount; i++ {
		keyBytes, rest, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		r = rest
		idBytes, rest2, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		r = rest2
		subID, err := identity.DecodeIdentifier(idBytes)
		if err != nil {
			return nil, err
		}
		var eph [32]byte
		if !takeFixed(&r, eph[:]) {
			return nil, errMalformedState
		}
		hasKXByte, rest3, ok := takeByte(r)
		if !ok {
			return nil, errMalformedState
		}
		r = rest3
		u.subscribers[string(keyBytes)] = &subscriberRecord{identifier: subID, ephemeral: eph, hasKX: hasKXByte != 0}
	}

	ephCount, r, ok := takeUint32(r)
	if !ok {
		return nil, errMalformedState
	}
	for i := uint32(0); i < ephCount; i++ {
		key, rest, err := readString(r)
		if err != nil {
			return nil, err
		}
		r = rest
		var pub, priv [32]byte
		if !takeFixed(&r, pub[:]) || !takeFixed(&r, priv[:]) {
			return nil, errMalformedState
		}
		u.pendingEph[key] = pendingEphemeral{pub: pub, priv: priv}
	}

	topicCount, r, ok := takeUint32(r)
	if !ok {
		return nil, errMalformedState
	}
	for i := uint32(0); i < topicCount; i++ {
		var msgID address.MsgID
		if !takeFixed(&r, msgID[:]) {
			return nil, errMalformedState
		}
		topic, rest, err := readString(r)
		if err != nil {
			return nil, err
		}
		r = rest
		u.msgTopic[msgID] = topic
	}

	return u, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func appendBytes(buf, data []byte) []byte {
	buf = appendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendString(buf []byte, s string) []byte {
	return appendBytes(buf, []byte(s))
}

func readBytes(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, errMalformedState
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) < uint64(n) {
		return nil, nil, errMalformedState
	}
	out := make([]byte, n)
	copy(out, data[:n])
	return out, data[n:], nil
}

func readString(data []byte) (string, []byte, error) {
	b, rest, err := readBytes(data)
	if err != nil {
		return "", nil, err
	}
	return string(b), rest, nil
}

func takeByte(data []byte) (byte, []byte, bool) {
	if len(data) < 1 {
		return 0, nil, false
	}
	return data[0], data[1:], true
}

func takeFixed(data *[]byte, dst []byte) bool {
	if len(*data) < len(dst) {
		return false
	}
	copy(dst, (*data)[:len(dst)])
	*data = (*data)[len(dst):]
	return true
}

func takeUint32(data []byte) (uint32, []byte, bool) {
	if len(data) < 4 {
		return 0, nil, false
	}
	return binary.BigEndian.Uint32(data[:4]), data[4:], true
}

func takeUint64(data []byte) (uint64, []byte, bool) {
	if len(data) < 8 {
		return 0, nil, false
	}
	return binary.BigEndian.Uint64(data[:8]), data[8:], true
}
