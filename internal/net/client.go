package net

import (
	"bufio"
	"context"
	"net"
	"time"

	"skoll/internal/common"
	"skoll/internal/events"

	"github.com/pkg/errors"
)

var ErrRequestFailed = errors.New("request failed")

// Client speaks the exchange protocol over one connection. It is not safe
// for concurrent use.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	caller  common.Address
	timeout time.Duration

	// OnEvent receives event reports that arrive while waiting for a
	// result, and from Listen.
	OnEvent func(ev events.Event)
}

// Dial connects as caller.
func Dial(ctx context.Context, address string, caller common.Address) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", address)
	}
	return &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		caller:  caller,
		timeout: 10 * time.Second,
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Caller is the address every message is sent as.
func (c *Client) Caller() common.Address {
	return c.caller
}

// Base returns a message header for typeOf from this client.
func (c *Client) Base(typeOf MessageType) BaseMessage {
	return BaseMessage{TypeOf: typeOf, From: c.caller}
}

// Call sends msg and waits for its result. A result carrying an error code
// is returned as an error wrapping ErrRequestFailed, along with the report.
func (c *Client) Call(msg Message) (Report, error) {
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return Report{}, err
	}
	defer c.conn.SetDeadline(time.Time{})

	if err := WriteFrame(c.conn, msg.Serialize()); err != nil {
		return Report{}, errors.Wrap(err, "send")
	}
	for {
		rep, err := c.next()
		if err != nil {
			return Report{}, err
		}
		if rep.MessageType == EventReport {
			c.deliver(rep.Event)
			continue
		}
		if rep.Code != common.CodeOK {
			return rep, errors.Wrapf(ErrRequestFailed, "%s: %s", rep.Code, rep.Err)
		}
		return rep, nil
	}
}

// Listen delivers event reports to OnEvent until the connection fails or
// ctx is done.
func (c *Client) Listen(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.conn.SetReadDeadline(time.Now())
	}()
	for {
		rep, err := c.next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if rep.MessageType == EventReport {
			c.deliver(rep.Event)
		}
	}
}

func (c *Client) next() (Report, error) {
	frame, err := ReadFrame(c.reader)
	if err != nil {
		return Report{}, errors.Wrap(err, "receive")
	}
	return parseReport(frame)
}

func (c *Client) deliver(ev events.Event) {
	if c.OnEvent != nil {
		c.OnEvent(ev)
	}
}
