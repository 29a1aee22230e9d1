package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nymstr/nymstr-groupd/internal/common"
	"github.com/nymstr/nymstr-groupd/internal/logging"
)

// wsMessage is the text-JSON envelope of the local nym-client websocket API.
type wsMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	SenderTag string `json:"senderTag,omitempty"`
	Address   string `json:"address,omitempty"`
}

const (
	typeReceived    = "received"
	typeReply       = "reply"
	typeSelfAddress = "selfAddress"
	typeError       = "error"
)

// NymClient speaks to a locally running nym-client over its websocket API.
// Anonymous senders are addressed by their surb sender tag; replies go back
// through the same tag.
type NymClient struct {
	conn    *websocket.Conn
	logger  logging.Logger
	inbound chan Inbound

	writeMu   sync.Mutex
	closeOnce sync.Once
	address   string
}

// Dial connects to the nym-client at wsURL, resolves the server's mixnet
// address, and starts the read loop.
func Dial(ctx context.Context, wsURL string, logger logging.Logger) (*NymClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", common.ErrTransport, wsURL, err)
	}

	c := &NymClient{
		conn:    conn,
		logger:  logger.With("module", "nym_transport"),
		inbound: make(chan Inbound),
	}

	if err := c.resolveSelfAddress(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.logger.Info(ctx, "connected to mixnet", "address", c.address)

	go c.readLoop(ctx)

	return c, nil
}

// Address is the server's own mixnet address, for operator logs.
func (c *NymClient) Address() string {
	return c.address
}

func (c *NymClient) Receive() <-chan Inbound {
	return c.inbound
}

// Send delivers payload to the anonymous peer behind senderHandle using a
// surb reply.
func (c *NymClient) Send(ctx context.Context, senderHandle string, payload []byte) error {
	if senderHandle == "" {
		return fmt.Errorf("%w: empty sender handle", common.ErrTransport)
	}

	frame, err := json.Marshal(wsMessage{
		Type:      typeReply,
		SenderTag: senderHandle,
		Message:   string(payload),
	})
	if err != nil {
		return fmt.Errorf("%w: marshal reply frame: %v", common.ErrTransport, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: write: %v", common.ErrTransport, err)
	}
	return nil
}

func (c *NymClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// resolveSelfAddress runs the selfAddress round trip before the read loop
// owns the connection.
func (c *NymClient) resolveSelfAddress() error {
	c.writeMu.Lock()
	err := c.conn.WriteJSON(wsMessage{Type: typeSelfAddress})
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: request self address: %v", common.ErrTransport, err)
	}

	var resp wsMessage
	if err := c.conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("%w: read self address: %v", common.ErrTransport, err)
	}
	if resp.Type != typeSelfAddress {
		return fmt.Errorf("%w: unexpected frame %q while resolving self address", common.ErrTransport, resp.Type)
	}
	c.address = resp.Address
	return nil
}

func (c *NymClient) readLoop(ctx context.Context) {
	defer close(c.inbound)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Warn(ctx, "mixnet read loop stopped", "error", err.Error())
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Error(ctx, "undecodable frame from nym-client", "error", err.Error())
			continue
		}

		switch msg.Type {
		case typeReceived:
			if msg.SenderTag == "" {
				c.logger.Warn(ctx, "received message without sender tag, ignoring")
				continue
			}
			c.inbound <- Inbound{
				SenderHandle: msg.SenderTag,
				Payload:      []byte(msg.Message),
				ReceivedAt:   time.Now(),
			}
		case typeError:
			c.logger.Error(ctx, "nym-client error frame", "message", msg.Message)
		default:
			// selfAddress echoes and future frame types.
			c.logger.Debug(ctx, "ignoring frame", "type", msg.Type)
		}
	}
}
