package address

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// NewChannelID derives a channel identifier from the author's public
// identifier bytes and a user-chosen channel number. The channel id is
// immutable from Announce onward.
func NewChannelID(authorIdentifier []byte, number uint64) ChannelID {
	h, _ := blake2b.New(ChannelLen, nil)
	h.Write([]byte("tanglestream-channel-id"))
	h.Write(authorIdentifier)
	var numBuf [8]byte
	binary.BigEndian.PutUint64(numBuf[:], number)
	h.Write(numBuf[:])
	sum := h.Sum(nil)

	var id ChannelID
	copy(id[:], sum)
	return id
}

// NewMsgID derives a message identifier pseudo-randomly from the
// predecessor message id, the publisher's identifier, and the branch's
// per-publisher sequence number.
func NewMsgID(predecessor MsgID, publisherIdentifier []byte, seq uint64) MsgID {
	h, _ := blake2b.New(MsgIDLen, nil)
	h.Write(predecessor[:])
	h.Write(publisherIdentifier)
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	h.Write(seqBuf[:])
	sum := h.Sum(nil)

	var id MsgID
	copy(id[:], sum)
	return id
}
