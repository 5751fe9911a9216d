// Package address implements channel and message addressing: the 40-byte
// channel identifier, the 12-byte message identifier, their pairing into
// an Address, its canonical hex string form, and the BLAKE2b-256 tangle
// index under which a sealed message is stored in the Transport.
package address

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ErrBadAddress is returned by Parse when the input is not
// "<40-hex>:<24-hex>".
var ErrBadAddress = errors.New("address: malformed address string")

// ChannelLen is the byte length of a ChannelID.
const ChannelLen = 40

// MsgIDLen is the byte length of a MsgID.
const MsgIDLen = 12

// ChannelID is the channel identifier: opaque, derived from the author's
// identifier and a user-chosen channel number, globally unique per author.
type ChannelID [ChannelLen]byte

// MsgID is the message identifier: derived pseudo-randomly from the
// predecessor message id, the publisher's identifier, and the branch's
// sequence number.
type MsgID [MsgIDLen]byte

// ZeroMsgID is the all-zero predecessor used by Announce messages.
var ZeroMsgID MsgID

// Address is the pair (channel identifier, message identifier).
type Address struct {
	Channel ChannelID
	Msg     MsgID
}

// String renders the canonical form: lowercase hex of each half separated
// by a colon.
func (a Address) String() string {
	return hex.EncodeToString(a.Channel[:]) + ":" + hex.EncodeToString(a.Msg[:])
}

// Parse parses the canonical "<40-hex channel>:<24-hex msgid>" form,
// rejecting any other form with ErrBadAddress.
func Parse(s string) (Address, error) {
	var addr Address
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return addr, ErrBadAddress
	}
	chBytes, err := hex.DecodeString(parts[0])
	if err != nil || len(chBytes) != ChannelLen {
		return addr, ErrBadAddress
	}
	msgBytes, err := hex.DecodeString(parts[1])
	if err != nil || len(msgBytes) != MsgIDLen {
		return addr, ErrBadAddress
	}
	copy(addr.Channel[:], chBytes)
	copy(addr.Msg[:], msgBytes)
	return addr, nil
}

// TangleIndex returns the BLAKE2b-256 digest of the address's binary
// concatenation (channel || msg) — the key under which Transport stores
// the sealed blob.
func (a Address) TangleIndex() [32]byte {
	buf := make([]byte, 0, ChannelLen+MsgIDLen)
	buf = append(buf, a.Channel[:]...)
	buf = append(buf, a.Msg[:]...)
	return blake2b.Sum256(buf)
}

// Equal reports whether two addresses name the same channel and message.
func (a Address) Equal(other Address) bool {
	return a.Channel == other.Channel && a.Msg == other.Msg
}
