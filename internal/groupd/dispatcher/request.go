package dispatcher

import "regexp"

// Inbound requests are a single JSON object per packet. One struct covers
// every action; each handler checks its own required fields and ignores the
// rest.
type request struct {
	Action     string `json:"action"`
	Username   string `json:"username"`
	PublicKey  string `json:"publicKey"`
	Signature  string `json:"signature"`
	Ciphertext string `json:"ciphertext"`
	LastSeenID string `json:"lastSeenId"`
}

// reply is the signed envelope of every outbound message. The signature is
// an armored detached PGP signature over the UTF-8 bytes of Content.
type reply struct {
	Action    string `json:"action"`
	Content   string `json:"content"`
	Context   string `json:"context,omitempty"`
	Signature string `json:"signature"`
}

// fetchReply carries the fetched entries as [ciphertext, entryID] pairs in
// ascending entry order. Its signature covers the canonical JSON encoding
// of Messages rather than Content.
type fetchReply struct {
	Action    string      `json:"action"`
	Content   string      `json:"content"`
	Messages  [][2]string `json:"messages"`
	Signature string      `json:"signature"`
}

// The exact reply strings are part of the wire contract; changing them
// breaks existing clients.
const (
	contentPending        = "pending"
	contentSuccess        = "success"
	errMalformed          = "error: malformed"
	errTooLarge           = "error: too large"
	errUnknownAction      = "error: unknown action"
	errInternal           = "error: internal"
	errRegistrationFailed = "error: registration failed"
	errAlreadyRegistered  = "error: user already registered"
	errUnauthorizedAdmin  = "error: unauthorized or bad signature"
	errApproveFailed      = "error: approve failed"
	errNotApproved        = "error: user not registered or not approved"
	errBadSignature       = "error: bad signature"
	errNotConnected       = "error: not connected"
	errMissingCiphertext  = "error: missing ciphertext"
)

const (
	actionRegister     = "register"
	actionApproveGroup = "approveGroup"
	actionConnect      = "connect"
	actionSendGroup    = "sendGroup"
	actionFetchGroup   = "fetchGroup"

	actionError = "errorResponse"
)

// maxRequestSize bounds a single transport packet.
const maxRequestSize = 64 << 10

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

func validUsername(u string) bool {
	return usernameRe.MatchString(u)
}
