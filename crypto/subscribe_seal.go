package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"
)

// SealSubscribeToAuthor encrypts a Subscribe message's payload (the
// subscriber's encoded public identifier) to an author's known
// static public key, using the first message of a Noise-IK handshake. IK
// lets the initiator (the subscriber) encrypt payload data in its very
// first message because the responder's static key is known in advance —
// exactly the shape of Subscribe, which is sent to an author whose
// identity is already public from the channel's Announce.
//
// The returned bytes are the complete Noise handshake message; the
// subscriber's ephemeral and static keys are embedded in it and recovered
// by OpenSubscribeFromSubscriber.
func SealSubscribeToAuthor(subscriberStatic [32]byte, authorStaticPub [32]byte, payload []byte) ([]byte, error) {
	cs := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cs,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeIK,
		Initiator:     true,
		StaticKeypair: noise.DHKey{Private: subscriberStatic[:], Public: derivePublicKey(subscriberStatic)},
		PeerStatic:    authorStaticPub[:],
	})
	if err != nil {
		return nil, fmt.Errorf("crypto: building subscribe handshake: %w", err)
	}

	message, _, _, err := hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("crypto: sealing subscribe message: %w", err)
	}
	return message, nil
}

// OpenSubscribeFromSubscriber decrypts a Subscribe message sealed by
// SealSubscribeToAuthor, using the author's own static keypair.
func OpenSubscribeFromSubscriber(authorStatic [32]byte, sealed []byte) ([]byte, error) {
	payload, _, err := OpenSubscribeWithStatic(authorStatic, sealed)
	return payload, err
}

// OpenSubscribeWithStatic is OpenSubscribeFromSubscriber's full form,
// additionally returning the subscriber's static public key (the
// Noise-IK "s" token) recovered from the handshake. The Subscribe flow
// uses this to learn the one-off ephemeral key a subsequent Keyload
// should wrap the branch key to, without a second round trip.
func OpenSubscribeWithStatic(authorStatic [32]byte, sealed []byte) ([]byte, [32]byte, error) {
	var peerStatic [32]byte

	cs := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cs,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeIK,
		Initiator:     false,
		StaticKeypair: noise.DHKey{Private: authorStatic[:], Public: derivePublicKey(authorStatic)},
	})
	if err != nil {
		return nil, peerStatic, fmt.Errorf("crypto: building subscribe handshake: %w", err)
	}

	payload, _, _, err := hs.ReadMessage(nil, sealed)
	if err != nil {
		return nil, peerStatic, ErrAuthenticationFailed
	}
	copy(peerStatic[:], hs.PeerStatic())
	return payload, peerStatic, nil
}

// derivePublicKey derives an X25519 public key from a private scalar.
func derivePublicKey(privateKey [32]byte) []byte {
	pub, err := curve25519.X25519(privateKey[:], curve25519.Basepoint)
	if err != nil {
		return make([]byte, 32)
	}
	return pub
}
