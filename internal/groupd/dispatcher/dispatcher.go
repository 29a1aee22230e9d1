// Package dispatcher parses inbound mixnet requests, drives the
// registration/approval/connect state machine against the identity store,
// relays ciphertext through the group stream, and signs every reply with
// the server key.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nymstr/nymstr-groupd/internal/common"
	"github.com/nymstr/nymstr-groupd/internal/groupd/models"
	"github.com/nymstr/nymstr-groupd/internal/groupd/pgp"
	"github.com/nymstr/nymstr-groupd/internal/groupd/repositories/identity"
	"github.com/nymstr/nymstr-groupd/internal/groupd/session"
	"github.com/nymstr/nymstr-groupd/internal/groupd/stream"
	"github.com/nymstr/nymstr-groupd/internal/groupd/transport"
	"github.com/nymstr/nymstr-groupd/internal/logging"
)

type Dispatcher struct {
	users          identity.Repository
	sessions       *session.Table
	broker         stream.Broker
	transport      transport.Transport
	signer         *pgp.Signer
	adminPublicKey string
	requestTimeout time.Duration
	logger         logging.Logger
}

// New wires the dispatcher. adminPublicKey is the armored key of the only
// principal allowed to approve registrations; it must already have parsed
// at startup.
func New(
	users identity.Repository,
	sessions *session.Table,
	broker stream.Broker,
	tr transport.Transport,
	signer *pgp.Signer,
	adminPublicKey string,
	requestTimeout time.Duration,
	logger logging.Logger,
) *Dispatcher {
	return &Dispatcher{
		users:          users,
		sessions:       sessions,
		broker:         broker,
		transport:      tr,
		signer:         signer,
		adminPublicKey: adminPublicKey,
		requestTimeout: requestTimeout,
		logger:         logger.With("module", "dispatcher"),
	}
}

// Handle processes one inbound packet. Requests from distinct sender
// handles are independent; the caller runs Handle on its own goroutine per
// packet.
func (d *Dispatcher) Handle(ctx context.Context, in transport.Inbound) {
	log := d.logger.With("requestID", uuid.NewString(), "sender", in.SenderHandle)

	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, "panic while handling request", "panic", r)
			d.reply(ctx, log, in.SenderHandle, actionError, errInternal)
		}
	}()

	if len(in.Payload) > maxRequestSize {
		log.Warn(ctx, "oversized request rejected", "bytes", len(in.Payload))
		d.reply(ctx, log, in.SenderHandle, actionError, errTooLarge)
		return
	}

	log.Debug(ctx, "incoming raw message", "payload", string(in.Payload))

	var req request
	if err := json.Unmarshal(in.Payload, &req); err != nil || req.Action == "" {
		log.Warn(ctx, "malformed request")
		d.reply(ctx, log, in.SenderHandle, actionError, errMalformed)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	switch req.Action {
	case actionRegister:
		d.handleRegister(ctx, log, in.SenderHandle, &req)
	case actionApproveGroup:
		d.handleApproveGroup(ctx, log, in.SenderHandle, &req)
	case actionConnect:
		d.handleConnect(ctx, log, in.SenderHandle, &req)
	case actionSendGroup:
		d.handleSendGroup(ctx, log, in.SenderHandle, &req)
	case actionFetchGroup:
		d.handleFetchGroup(ctx, log, in.SenderHandle, &req)
	default:
		log.Warn(ctx, "unknown action", "action", req.Action)
		d.reply(ctx, log, in.SenderHandle, actionError, errUnknownAction)
	}
}

// handleRegister stores a pending identity after the client proves control
// of the supplied key by signing the key itself.
func (d *Dispatcher) handleRegister(ctx context.Context, log logging.Logger, handle string, req *request) {
	respond := func(content string) {
		d.reply(ctx, log, handle, actionRegister+"Response", content)
	}

	if !validUsername(req.Username) || req.PublicKey == "" || req.Signature == "" {
		respond(errMalformed)
		return
	}

	if res := pgp.Verify([]byte(req.PublicKey), req.Signature, req.PublicKey); res != pgp.Valid {
		log.Warn(ctx, "register signature rejected", "username", req.Username, "result", res.String())
		respond(errRegistrationFailed)
		return
	}

	err := d.users.InsertPending(ctx, req.Username, req.PublicKey)
	switch {
	case errors.Is(err, common.ErrConflict):
		respond(errAlreadyRegistered)
	case err != nil:
		log.Error(ctx, "insert pending failed", "username", req.Username, "error", err.Error())
		respond(errRegistrationFailed)
	default:
		log.Info(ctx, "user registered pending approval", "username", req.Username)
		respond(contentPending)
	}
}

// handleApproveGroup performs the pending -> approved transition; only a
// signature by the configured admin key authorizes it.
func (d *Dispatcher) handleApproveGroup(ctx context.Context, log logging.Logger, handle string, req *request) {
	respond := func(content string) {
		d.reply(ctx, log, handle, actionApproveGroup+"Response", content)
	}

	if !validUsername(req.Username) || req.Signature == "" {
		respond(errMalformed)
		return
	}

	if res := pgp.Verify([]byte(req.Username), req.Signature, d.adminPublicKey); res != pgp.Valid {
		log.Warn(ctx, "approve rejected", "username", req.Username, "result", res.String())
		respond(errUnauthorizedAdmin)
		return
	}

	err := d.users.MarkApproved(ctx, req.Username)
	switch {
	case errors.Is(err, common.ErrAlreadyApproved):
		// The transition is idempotent at the status level.
		respond(contentSuccess)
	case err != nil:
		log.Error(ctx, "approve failed", "username", req.Username, "error", err.Error())
		respond(errApproveFailed)
	default:
		log.Info(ctx, "user approved", "username", req.Username)
		respond(contentSuccess)
	}
}

// handleConnect authenticates an approved user and binds their sender
// handle for the rest of the session.
func (d *Dispatcher) handleConnect(ctx context.Context, log logging.Logger, handle string, req *request) {
	respond := func(content string) {
		d.reply(ctx, log, handle, actionConnect+"Response", content)
	}

	if !validUsername(req.Username) || req.Signature == "" {
		respond(errMalformed)
		return
	}

	user, err := d.users.Lookup(ctx, req.Username)
	switch {
	case errors.Is(err, common.ErrNotFound):
		respond(errNotApproved)
		return
	case err != nil:
		log.Error(ctx, "lookup failed", "username", req.Username, "error", err.Error())
		respond(errInternal)
		return
	}
	if !user.Approved() {
		respond(errNotApproved)
		return
	}

	if res := pgp.Verify([]byte(req.Username), req.Signature, user.PublicKey); res != pgp.Valid {
		log.Warn(ctx, "connect signature rejected", "username", req.Username, "result", res.String())
		respond(errBadSignature)
		return
	}

	d.sessions.Bind(handle, req.Username)
	log.Info(ctx, "session bound", "username", req.Username)
	respond(contentSuccess)
}

// handleSendGroup appends opaque ciphertext to the group stream. The
// session binding is the only credential checked.
func (d *Dispatcher) handleSendGroup(ctx context.Context, log logging.Logger, handle string, req *request) {
	respond := func(content string) {
		d.reply(ctx, log, handle, actionSendGroup+"Response", content)
	}

	username, ok := d.sessions.Lookup(handle)
	if !ok {
		respond(errNotConnected)
		return
	}

	if req.Ciphertext == "" {
		respond(errMissingCiphertext)
		return
	}

	id, err := d.broker.Append(ctx, req.Ciphertext)
	if err != nil {
		log.Error(ctx, "stream append failed", "username", username, "error", err.Error())
		respond(errInternal)
		return
	}

	log.Info(ctx, "group message appended", "username", username, "entryID", id)
	respond(contentSuccess)
}

// handleFetchGroup returns every entry after the client's cursor. The
// cursor itself is the signed payload, so a fetch cannot be redirected to a
// different resume point in transit.
func (d *Dispatcher) handleFetchGroup(ctx context.Context, log logging.Logger, handle string, req *request) {
	respond := func(content string) {
		d.reply(ctx, log, handle, actionFetchGroup+"Response", content)
	}

	username, ok := d.sessions.Lookup(handle)
	if !ok {
		respond(errNotConnected)
		return
	}

	if req.Signature == "" {
		respond(errMalformed)
		return
	}

	user, err := d.users.Lookup(ctx, username)
	if err != nil {
		log.Error(ctx, "lookup failed", "username", username, "error", err.Error())
		respond(errInternal)
		return
	}

	if res := pgp.Verify([]byte(req.LastSeenID), req.Signature, user.PublicKey); res != pgp.Valid {
		log.Warn(ctx, "fetch signature rejected", "username", username, "result", res.String())
		respond(errBadSignature)
		return
	}

	entries, err := d.broker.ReadAfter(ctx, req.LastSeenID)
	if err != nil {
		log.Error(ctx, "stream read failed", "username", username, "error", err.Error())
		respond(errInternal)
		return
	}

	d.replyMessages(ctx, log, handle, entries)
}

// reply sends a signed envelope whose signature covers the content string.
func (d *Dispatcher) reply(ctx context.Context, log logging.Logger, handle, action, content string) {
	sig, err := d.signer.Sign([]byte(content))
	if err != nil {
		log.Error(ctx, "failed to sign reply", "error", err.Error())
		return
	}

	d.send(ctx, log, handle, &reply{Action: action, Content: content, Signature: sig})
}

// replyMessages sends the fetchGroup result. The signature covers the
// canonical JSON encoding of the messages array, which is also the exact
// byte sequence embedded in the envelope.
func (d *Dispatcher) replyMessages(ctx context.Context, log logging.Logger, handle string, entries []models.StreamEntry) {
	messages := make([][2]string, 0, len(entries))
	for _, e := range entries {
		messages = append(messages, [2]string{e.Ciphertext, e.ID})
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		log.Error(ctx, "failed to encode messages", "error", err.Error())
		d.reply(ctx, log, handle, actionFetchGroup+"Response", errInternal)
		return
	}

	sig, err := d.signer.Sign(payload)
	if err != nil {
		log.Error(ctx, "failed to sign reply", "error", err.Error())
		return
	}

	d.send(ctx, log, handle, &fetchReply{
		Action:    actionFetchGroup + "Response",
		Content:   contentSuccess,
		Messages:  messages,
		Signature: sig,
	})
}

// send marshals and delivers one reply. Best effort: a peer that became
// unreachable gets logged, side effects stay committed.
func (d *Dispatcher) send(ctx context.Context, log logging.Logger, handle string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error(ctx, "failed to encode reply", "error", err.Error())
		return
	}

	if err := d.transport.Send(ctx, handle, data); err != nil {
		log.Warn(ctx, "reply dropped", "error", err.Error())
	}
}
