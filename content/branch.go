package content

// BranchAnnouncement declares a new topic, names its parent, and carries
// the Keyload that establishes the new branch's initial key and ACL.
type BranchAnnouncement struct {
	ParentTopic    string
	NewTopic       string
	InitialKeyload Keyload
}

func (BranchAnnouncement) Type() Type { return TypeBranchAnnouncement }

func (b *BranchAnnouncement) Encode() []byte {
	buf := appendString(nil, b.ParentTopic)
	buf = appendString(buf, b.NewTopic)
	buf = appendBytes(buf, b.InitialKeyload.Encode())
	return buf
}

func DecodeBranchAnnouncement(data []byte) (*BranchAnnouncement, error) {
	parent, rest, err := readString(data)
	if err != nil {
		return nil, err
	}
	newTopic, rest, err := readString(rest)
	if err != nil {
		return nil, err
	}
	keyloadBytes, rest, err := readBytes(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrMalformedContent
	}
	keyload, err := DecodeKeyload(keyloadBytes)
	if err != nil {
		return nil, err
	}
	return &BranchAnnouncement{ParentTopic: parent, NewTopic: newTopic, InitialKeyload: *keyload}, nil
}

// Sequence is a multi-branch-mode cursor-advance message placed on the
// root branch, pointing readers at the real next message on another
// branch without requiring them to poll every branch directly. Topic and
// ParentTopic are carried alongside the raw address so a reader who has
// never seen Topic before (the branch it names was originated implicitly,
// with no BranchAnnouncement to learn it from) can still bootstrap that
// branch's local chain state from this pointer alone.
type Sequence struct {
	Topic         string
	ParentTopic   string
	TargetChannel [40]byte
	TargetMsg     [12]byte
}

func (Sequence) Type() Type { return TypeSequence }

func (s *Sequence) Encode() []byte {
	buf := appendString(nil, s.Topic)
	buf = appendString(buf, s.ParentTopic)
	buf = append(buf, s.TargetChannel[:]...)
	buf = append(buf, s.TargetMsg[:]...)
	return buf
}

func DecodeSequence(data []byte) (*Sequence, error) {
	topic, rest, err := readString(data)
	if err != nil {
		return nil, err
	}
	parentTopic, rest, err := readString(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) != 40+12 {
		return nil, ErrMalformedContent
	}
	var s Sequence
	s.Topic = topic
	s.ParentTopic = parentTopic
	copy(s.TargetChannel[:], rest[:40])
	copy(s.TargetMsg[:], rest[40:])
	return &s, nil
}
