package snapshot

import "crypto/rand"

func randomFill(b []byte) error {
	_, err := rand.Read(b)
	return err
}
