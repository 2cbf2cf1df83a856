package main

import (
	"fmt"
	"log"
	"net"

	"github.com/horgh/irc"
)

// Client holds state about a single client connection.
type Client struct {
	// Conn is the TCP connection to the client.
	Conn Conn

	// WriteChan is the channel to send to to write to the client.
	WriteChan chan wireMessage

	// A unique id.
	ID uint64

	// Server references the main server the client is connected to. It's
	// helpful to have to avoid passing server all over the place.
	Server *Server

	// Hostname to show in the client's prefix. Reverse DNS when we could
	// get it, the literal address otherwise.
	Hostname string

	Nick     string
	User     string
	RealName string

	// Whether PASS matched.
	Authenticated bool

	// Whether it completed connection registration (PASS, NICK, and USER
	// all seen). Never unset once set.
	Registered bool

	// Channel name (canonicalized) to Channel. A client is in here iff it
	// appears in that channel's member list.
	Channels map[string]*Channel

	// Track if we overflow our send queue. If we do, we'll kill the client.
	SendQueueExceeded bool
}

// NewClient creates a Client
func NewClient(s *Server, id uint64, conn net.Conn) *Client {
	c := &Client{
		Conn: NewConn(conn),
		ID:   id,

		// Buffered channel. We don't want to block sending to the client
		// from the server. The client may be stuck. Make the buffer large
		// enough that it should only max out in case of connection issues.
		WriteChan: make(chan wireMessage, 32768),

		Server:   s,
		Channels: make(map[string]*Channel),
	}

	if c.Conn.IP != nil {
		c.Hostname = c.Conn.IP.String()
	}

	return c
}

func (c *Client) String() string {
	return fmt.Sprintf("%d %s", c.ID, c.Conn.RemoteAddr())
}

// prefix is the source we place on messages originating from this client.
// Format: nickname!username@hostname
func (c *Client) prefix() string {
	prefix := c.Nick
	if len(c.User) > 0 {
		prefix += "!" + c.User
	}
	if len(c.Hostname) > 0 {
		prefix += "@" + c.Hostname
	}
	return prefix
}

// Send a message to the client. We send it to its write channel, which in
// turn leads to writing it to its TCP socket.
//
// This function won't block. If the client's queue is full, we flag it as
// having a full send queue.
//
// Not blocking is important because the server sends the client messages
// this way, and if we block on a problem client, everything would grind to
// a halt.
func (c *Client) maybeQueueMessage(m wireMessage) {
	if c.SendQueueExceeded {
		return
	}

	select {
	case c.WriteChan <- m:
	default:
		c.SendQueueExceeded = true
	}
}

// messageFromServer sends the client a reply originating from the server.
// Replies carry no prefix, and their final parameter always goes out in
// trailing form.
//
// Note: Only the server goroutine should call this (due to channel use).
func (c *Client) messageFromServer(command string, params []string) {
	c.maybeQueueMessage(wireMessage{
		Message:       irc.Message{Command: command, Params: params},
		ForceTrailing: true,
	})
}

// messageFromServerNoTrailing is messageFromServer for the few replies
// whose final parameter is not free text (324, 341, 004).
func (c *Client) messageFromServerNoTrailing(command string, params []string) {
	c.maybeQueueMessage(wireMessage{
		Message: irc.Message{Command: command, Params: params},
	})
}

// messageClient sends a message to another client sourced from this one.
func (c *Client) messageClient(to *Client, command string, params []string) {
	to.maybeQueueMessage(wireMessage{
		Message: irc.Message{
			Prefix:  c.prefix(),
			Command: command,
			Params:  params,
		},
		ForceTrailing: true,
	})
}

// readLoop endlessly reads from the client's TCP connection. It parses
// each line into a message and passes it to the server through the
// server's channel.
func (c *Client) readLoop() {
	defer c.Server.WG.Done()

	for {
		if c.Server.isShuttingDown() {
			break
		}

		line, err := c.Conn.Read()
		if err != nil {
			log.Printf("Client %s: %s", c, err)
			c.Server.newEvent(Event{Type: DeadClientEvent, Client: c})
			break
		}

		message, ok := parseLine(line)
		if !ok {
			// Blank line. Nothing to do.
			continue
		}

		c.Server.newEvent(Event{
			Type:    MessageFromClientEvent,
			Client:  c,
			Message: message,
		})
	}

	log.Printf("Client %s: Reader shutting down.", c)
}

// writeLoop endlessly reads from the client's channel, encodes each
// message, and writes it to the client's TCP connection.
//
// When the channel is closed, or if we have a write error, close the TCP
// connection. I have this here so that we try to deliver messages to the
// client before closing its socket and giving up.
//
// Ensure we also stop if the server is shutting down (indicated by the
// ShutdownChan being closed). If we don't, then there is potential for us
// to leak this goroutine.
func (c *Client) writeLoop() {
	defer c.Server.WG.Done()

Loop:
	for {
		select {
		case message, ok := <-c.WriteChan:
			if !ok {
				break Loop
			}

			err := c.Conn.WriteMessage(message)
			if err != nil {
				log.Printf("Client %s: %s", c, err)
				c.Server.newEvent(Event{Type: DeadClientEvent, Client: c})
				break Loop
			}
		case <-c.Server.ShutdownChan:
			break Loop
		}
	}

	err := c.Conn.Close()
	if err != nil {
		log.Printf("Client %s: Problem closing connection: %s", c, err)
	}

	log.Printf("Client %s: Writer shutting down.", c)
}

// quit means the client is gone, or is going. Tell everyone who can see it,
// take it out of every channel and registry, and queue its goodbye line.
// The writer goroutine drains anything still queued before it closes the
// socket.
//
// Note: Only the server goroutine should call this (due to closing the
// write channel).
func (c *Client) quit(reason string) {
	// May already be cleaning up.
	_, exists := c.Server.Clients[c.ID]
	if !exists {
		return
	}

	quitMessage := wireMessage{
		Message: irc.Message{
			Prefix:  c.prefix(),
			Command: "QUIT",
			Params:  []string{reason},
		},
		ForceTrailing: true,
	}

	for _, channel := range c.channelList() {
		channel.broadcast(quitMessage, c)
		channel.removeMember(c)
	}

	c.messageFromServer("ERROR", []string{
		fmt.Sprintf("Closing link: %s (%s)", c.Hostname, reason),
	})

	close(c.WriteChan)

	if len(c.Nick) > 0 {
		delete(c.Server.Nicks, canonicalizeNick(c.Nick))
	}
	delete(c.Server.Clients, c.ID)

	c.Server.cleanupEmptyChannels()

	log.Printf("Client %s removed.", c)
}

// channelList snapshots the client's channels. Use it when removal will
// mutate the Channels map mid walk.
func (c *Client) channelList() []*Channel {
	channels := make([]*Channel, 0, len(c.Channels))
	for _, channel := range c.Channels {
		channels = append(channels, channel)
	}
	return channels
}
