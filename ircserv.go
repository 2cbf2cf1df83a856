/*
 * IRC daemon.
 *
 * A leaf server: clients authenticate with a shared password, register a
 * nick and user, and talk to each other directly or through channels.
 */

package main

import (
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// Server holds the state for a server.
// I put everything global to a server in an instance of struct rather than
// have global variables.
type Server struct {
	Config *Config

	// Client id to Client.
	Clients map[uint64]*Client

	// Canonicalized nickname to Client. Tracks any client that has set a
	// nick, registered or not.
	Nicks map[string]*Client

	// Channel name (canonicalized) to Channel.
	Channels map[string]*Channel

	// The server goroutine hears about everything through this channel.
	ToServerChan chan Event

	// Closing this tells everyone to stop.
	ShutdownChan chan struct{}

	WG sync.WaitGroup

	Listener net.Listener

	resolver *Resolver

	shutdownOnce sync.Once
}

// Event holds a piece of work for the server goroutine.
type Event struct {
	Type    EventType
	Client  *Client
	Message irc.Message
}

// EventType says what kind of event it is.
type EventType int

const (
	// NewClientEvent means a new client connected.
	NewClientEvent EventType = iota
	// DeadClientEvent means a client's connection died.
	DeadClientEvent
	// MessageFromClientEvent means a client sent a message.
	MessageFromClientEvent
)

const resolveTimeout = 5 * time.Second

func main() {
	log.SetFlags(0)

	args := getArgs()
	if args == nil {
		os.Exit(1)
	}

	cfg := newConfig(args.Port, args.Password)
	if len(args.ConfigFile) > 0 {
		if err := cfg.parseFile(args.ConfigFile); err != nil {
			log.Fatalf("Configuration problem: %s", err)
		}
	}

	server := newServer(cfg)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		log.Printf("Received signal, shutting down server...")
		server.stop()
	}()

	if err := server.start(); err != nil {
		log.Fatal(err)
	}

	log.Printf("Server shutdown cleanly.")
}

func newServer(cfg *Config) *Server {
	return &Server{
		Config:       cfg,
		Clients:      make(map[uint64]*Client),
		Nicks:        make(map[string]*Client),
		Channels:     make(map[string]*Channel),
		ToServerChan: make(chan Event, 100),
		ShutdownChan: make(chan struct{}),
		resolver:     newResolver(resolveTimeout),
	}
}

// start starts up the server.
//
// We open the TCP port and then act on events from clients until told to
// stop.
func (s *Server) start() error {
	if err := s.listen(); err != nil {
		return err
	}

	s.run()

	return nil
}

func (s *Server) listen() error {
	ln, err := net.Listen("tcp",
		net.JoinHostPort(s.Config.ListenHost, s.Config.ListenPort))
	if err != nil {
		return errors.Wrap(err, "unable to listen")
	}

	s.Listener = ln

	log.Printf("Server listening on port %s", s.Config.ListenPort)

	return nil
}

// run is the server goroutine. All state mutation happens here, one event
// at a time, so handlers never need locks and commands from a single
// client stay in arrival order.
func (s *Server) run() {
	s.WG.Add(1)
	go s.acceptConnections()

	for {
		select {
		case event := <-s.ToServerChan:
			s.handleEvent(event)

		case <-s.ShutdownChan:
			s.cleanup()
			s.WG.Wait()
			return
		}
	}
}

// stop asks the server to shut down. It is safe to call from any
// goroutine, and more than once.
func (s *Server) stop() {
	s.shutdownOnce.Do(func() {
		close(s.ShutdownChan)
	})
}

func (s *Server) isShuttingDown() bool {
	select {
	case <-s.ShutdownChan:
		return true
	default:
		return false
	}
}

// newEvent tells the server goroutine about something. During shutdown the
// server stops listening, so don't block trying to reach it.
func (s *Server) newEvent(e Event) {
	select {
	case s.ToServerChan <- e:
	case <-s.ShutdownChan:
	}
}

func (s *Server) handleEvent(e Event) {
	switch e.Type {
	case NewClientEvent:
		log.Printf("New client connection: %s", e.Client)
		s.Clients[e.Client.ID] = e.Client

	case DeadClientEvent:
		// It's possible we already forgot about it.
		if _, exists := s.Clients[e.Client.ID]; exists {
			log.Printf("Client %s died.", e.Client)
			e.Client.quit("Client disconnected")
		}

	case MessageFromClientEvent:
		// Possibly from a client that disconnected.
		if _, exists := s.Clients[e.Client.ID]; !exists {
			log.Printf("Ignoring message from disconnected client.")
			return
		}

		log.Printf("Client %s: Message: %s", e.Client, e.Message)
		s.handleMessage(e.Client, e.Message)

		// A broadcast may have overflowed someone's send queue.
		s.dropOverflowedClients()
	}
}

// acceptConnections accepts TCP connections and tells the main server loop
// about each through its channel.
func (s *Server) acceptConnections() {
	defer s.WG.Done()

	id := uint64(0)

	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if s.isShuttingDown() {
				break
			}
			log.Printf("Failed to accept connection: %s", err)
			continue
		}

		s.WG.Add(1)
		go s.introduceClient(id, conn)

		id++
	}

	log.Printf("Accept loop shutting down.")
}

// introduceClient builds the client and hands it to the server goroutine.
// The hostname lookup happens here so a slow resolver never stalls the
// accept loop or the server.
func (s *Server) introduceClient(id uint64, conn net.Conn) {
	defer s.WG.Done()

	client := NewClient(s, id, conn)

	if s.Config.LookupHostnames && client.Conn.IP != nil {
		if hostname := s.resolver.lookupHostname(client.Conn.IP); len(hostname) > 0 {
			client.Hostname = hostname
		}
	}

	s.newEvent(Event{Type: NewClientEvent, Client: client})

	s.WG.Add(1)
	go client.readLoop()

	s.WG.Add(1)
	go client.writeLoop()
}

// lookupChannel finds a channel by name, case insensitively.
func (s *Server) lookupChannel(name string) *Channel {
	return s.Channels[canonicalizeChannel(name)]
}

// lookupNick finds a client by nick, case insensitively.
func (s *Server) lookupNick(nick string) *Client {
	return s.Nicks[canonicalizeNick(nick)]
}

// cleanupEmptyChannels drops every channel with no members left.
func (s *Server) cleanupEmptyChannels() {
	for name, channel := range s.Channels {
		if !channel.isEmpty() {
			continue
		}

		delete(s.Channels, name)
		log.Printf("Channel %s removed.", channel.Name)
	}
}

// dropOverflowedClients disconnects clients whose send queue filled up.
func (s *Server) dropOverflowedClients() {
	var overflowed []*Client
	for _, client := range s.Clients {
		if client.SendQueueExceeded {
			overflowed = append(overflowed, client)
		}
	}

	for _, client := range overflowed {
		client.quit("SendQ exceeded")
	}
}

// cleanup tears down every client and the listener as part of shutdown.
func (s *Server) cleanup() {
	log.Printf("Server shutting down.")

	if err := s.Listener.Close(); err != nil {
		log.Printf("Problem closing listener: %s", err)
	}

	for _, client := range s.Clients {
		close(client.WriteChan)
	}

	s.Clients = make(map[uint64]*Client)
	s.Nicks = make(map[string]*Client)
	s.Channels = make(map[string]*Channel)
}
