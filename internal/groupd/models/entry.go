package models

// StreamEntry is one appended group message: the broker-assigned,
// lexicographically ordered entry ID and the opaque ciphertext.
// The server never inspects the ciphertext.
type StreamEntry struct {
	ID         string
	Ciphertext string
}
