package main

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"strings"
)

// Conn is a connection to a client.
type Conn struct {
	// conn: The connection if we are actively connected.
	conn net.Conn

	// rw: Read/write handle to the connection
	rw *bufio.ReadWriter

	IP net.IP
}

// NewConn initializes a Conn struct
func NewConn(conn net.Conn) Conn {
	c := Conn{
		conn: conn,
		rw:   bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
	}

	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		c.IP = tcpAddr.IP
	}

	return c
}

// Close closes the underlying connection
func (c Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the remote network address.
func (c Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Read reads a line from the connection.
//
// There is no deadline. We never give up on an idle client; the read ends
// when the client speaks or its connection dies.
func (c Conn) Read() (string, error) {
	line, err := c.rw.ReadString('\n')
	if err != nil {
		return "", err
	}

	log.Printf("Read: %s", strings.TrimRight(line, "\r\n"))

	return line, nil
}

// Write writes a string to the connection
func (c Conn) Write(s string) error {
	sz, err := c.rw.WriteString(s)
	if err != nil {
		return err
	}

	if sz != len(s) {
		return fmt.Errorf("short write")
	}

	err = c.rw.Flush()
	if err != nil {
		return fmt.Errorf("flush error: %s", err)
	}

	log.Printf("Sent: %s", strings.TrimRight(s, "\r\n"))

	return nil
}

// WriteMessage writes an IRC message to the connection.
func (c Conn) WriteMessage(m wireMessage) error {
	return c.Write(encodeMessage(m))
}
