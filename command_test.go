package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// The full registration exchange, byte for byte.
func TestRegistration(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)

	sendLine(t, s, alice, "PASS letmein")
	require.Empty(t, drainClient(alice), "PASS alone says nothing")

	sendLine(t, s, alice, "NICK alice")
	require.Empty(t, drainClient(alice), "no reply during registration")

	sendLine(t, s, alice, "USER alice 0 * :Alice A")

	require.Equal(t, []string{
		"001 alice :Welcome to the Internet Relay Network alice!alice@127.0.0.1\r\n",
		"002 alice :Your host is ircserv, running version 1.0\r\n",
		"003 alice :This server was created today\r\n",
		"004 alice ircserv 1.0 o itkol\r\n",
		"375 alice :- ircserv Message of the day - \r\n",
		"372 alice :- Welcome to our little IRC server!\r\n",
		"376 alice :End of MOTD command\r\n",
	}, drainClient(alice))

	require.True(t, alice.Registered)
	require.Equal(t, alice, s.lookupNick("ALICE"))
}

// NICK before PASS is accepted; registration waits for the password.
func TestNickBeforePass(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)

	sendLine(t, s, alice, "NICK alice")
	sendLine(t, s, alice, "USER alice 0 * :Alice A")
	require.False(t, alice.Registered)
	require.Empty(t, drainClient(alice))

	sendLine(t, s, alice, "PASS letmein")
	require.True(t, alice.Registered)

	lines := drainClient(alice)
	require.NotEmpty(t, lines)
	require.Equal(t,
		"001 alice :Welcome to the Internet Relay Network alice!alice@127.0.0.1\r\n",
		lines[0])
}

func TestPassErrors(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)

	sendLine(t, s, alice, "PASS")
	require.Equal(t, []string{"461 PASS :Not enough parameters\r\n"},
		drainClient(alice))

	sendLine(t, s, alice, "PASS wrong")
	require.Equal(t, []string{"464 :Password incorrect\r\n"},
		drainClient(alice))
	require.False(t, alice.Authenticated)

	sendLine(t, s, alice, "PASS letmein")
	require.True(t, alice.Authenticated)

	registerTestClient(t, s, alice, "alice")

	sendLine(t, s, alice, "PASS letmein")
	require.Equal(t, []string{"462 :You may not reregister\r\n"},
		drainClient(alice))

	sendLine(t, s, alice, "USER alice 0 * :Alice A")
	require.Equal(t, []string{"462 :You may not reregister\r\n"},
		drainClient(alice))
}

func TestNickErrors(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)
	registerTestClient(t, s, alice, "alice")

	bob := connectTestClient(s, 1)
	sendLine(t, s, bob, "PASS letmein")

	sendLine(t, s, bob, "NICK")
	require.Equal(t, []string{"431 :No nickname given\r\n"}, drainClient(bob))

	sendLine(t, s, bob, "NICK 1invalid")
	require.Equal(t, []string{"432 1invalid :Erroneous nickname\r\n"},
		drainClient(bob))

	sendLine(t, s, bob, "NICK abcdefghij")
	require.Equal(t, []string{"432 abcdefghij :Erroneous nickname\r\n"},
		drainClient(bob))

	sendLine(t, s, bob, "NICK abcdefghi")
	require.Empty(t, drainClient(bob))

	// Case insensitive collision with a registered client.
	sendLine(t, s, bob, "NICK ALICE")
	require.Equal(t, []string{"433 * ALICE :Nickname is already in use\r\n"},
		drainClient(bob))
}

// Duplicate nickname, second socket.
func TestNickAlreadyInUse(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)
	registerTestClient(t, s, alice, "alice")

	second := connectTestClient(s, 1)
	sendLine(t, s, second, "PASS letmein")
	sendLine(t, s, second, "NICK alice")

	require.Equal(t, []string{"433 * alice :Nickname is already in use\r\n"},
		drainClient(second))
}

func TestNickChangeBroadcast(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)
	bob := connectTestClient(s, 1)

	registerTestClient(t, s, alice, "alice")
	registerTestClient(t, s, bob, "bob")

	sendLine(t, s, alice, "JOIN #room")
	sendLine(t, s, bob, "JOIN #room")
	drainClient(alice)
	drainClient(bob)

	sendLine(t, s, alice, "NICK alice2")

	require.Equal(t, []string{":alice NICK :alice2\r\n"}, drainClient(alice))
	require.Equal(t, []string{":alice NICK :alice2\r\n"}, drainClient(bob))

	require.Nil(t, s.lookupNick("alice"))
	require.Equal(t, alice, s.lookupNick("alice2"))
	require.Equal(t, "alice2", alice.Nick)
}

// Commands other than PASS/NICK/USER/CAP/QUIT/PING need registration.
func TestNotRegistered(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)
	sendLine(t, s, alice, "PASS letmein")

	for _, line := range []string{"JOIN #room", "PRIVMSG bob :hi",
		"MODE #room", "TOPIC #room", "KICK #room bob", "INVITE bob #room",
		"PART #room"} {
		sendLine(t, s, alice, line)
		require.Equal(t, []string{"451 :You have not registered\r\n"},
			drainClient(alice), "line %q", line)
	}

	// Unknown commands are ignored until registered.
	sendLine(t, s, alice, "BOGUS")
	require.Empty(t, drainClient(alice))

	// CAP is quietly accepted.
	sendLine(t, s, alice, "CAP LS 302")
	require.Empty(t, drainClient(alice))
}

func TestUnknownCommand(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)
	registerTestClient(t, s, alice, "alice")

	sendLine(t, s, alice, "bogus one two")
	require.Equal(t, []string{"421 alice BOGUS :Unknown command\r\n"},
		drainClient(alice))
}

// Invite-only join, the whole exchange.
func TestInviteOnlyJoin(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)
	bob := connectTestClient(s, 1)

	registerTestClient(t, s, alice, "alice")
	registerTestClient(t, s, bob, "bob")

	sendLine(t, s, alice, "JOIN #secret")
	require.Equal(t, []string{
		":alice!alice@127.0.0.1 JOIN #secret\r\n",
		"353 alice = #secret :@alice\r\n",
		"366 alice #secret :End of /NAMES list\r\n",
	}, drainClient(alice))

	sendLine(t, s, alice, "MODE #secret +i")
	require.Equal(t, []string{":alice!alice@127.0.0.1 MODE #secret +i\r\n"},
		drainClient(alice))

	sendLine(t, s, bob, "JOIN #secret")
	require.Equal(t, []string{"473 #secret :Cannot join channel (+i)\r\n"},
		drainClient(bob))

	sendLine(t, s, alice, "INVITE bob #secret")
	require.Equal(t, []string{"341 alice bob #secret\r\n"},
		drainClient(alice))
	require.Equal(t, []string{":alice!alice@127.0.0.1 INVITE bob :#secret\r\n"},
		drainClient(bob))

	sendLine(t, s, bob, "JOIN #secret")
	require.Equal(t, []string{":bob!bob@127.0.0.1 JOIN #secret\r\n"},
		drainClient(alice))
	require.Equal(t, []string{
		":bob!bob@127.0.0.1 JOIN #secret\r\n",
		"353 bob = #secret :@alice bob\r\n",
		"366 bob #secret :End of /NAMES list\r\n",
	}, drainClient(bob))
}

func TestInviteErrors(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)
	bob := connectTestClient(s, 1)
	carol := connectTestClient(s, 2)

	registerTestClient(t, s, alice, "alice")
	registerTestClient(t, s, bob, "bob")
	registerTestClient(t, s, carol, "carol")

	sendLine(t, s, alice, "INVITE bob #nowhere")
	require.Equal(t, []string{"403 #nowhere :No such channel\r\n"},
		drainClient(alice))

	sendLine(t, s, alice, "JOIN #room")
	sendLine(t, s, bob, "JOIN #room")
	drainClient(alice)
	drainClient(bob)

	sendLine(t, s, carol, "INVITE bob #room")
	require.Equal(t, []string{"442 #room :You're not on that channel\r\n"},
		drainClient(carol))

	sendLine(t, s, alice, "INVITE ghost #room")
	require.Equal(t, []string{"401 ghost :No such nick/channel\r\n"},
		drainClient(alice))

	sendLine(t, s, alice, "INVITE bob #room")
	require.Equal(t, []string{"443 bob #room :is already on channel\r\n"},
		drainClient(alice))

	// On a channel that is not invite-only, any member may invite.
	sendLine(t, s, bob, "INVITE carol #room")
	require.Equal(t, []string{"341 bob carol #room\r\n"}, drainClient(bob))
	require.Equal(t, []string{":bob!bob@127.0.0.1 INVITE carol :#room\r\n"},
		drainClient(carol))

	// Once it is, inviting takes operator status.
	sendLine(t, s, alice, "MODE #room +i")
	drainClient(alice)
	drainClient(bob)

	sendLine(t, s, bob, "INVITE carol #room")
	require.Equal(t, []string{"482 #room :You're not channel operator\r\n"},
		drainClient(bob))
}

// Channel message: everyone but the sender hears it.
func TestChannelMessage(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)
	bob := connectTestClient(s, 1)

	registerTestClient(t, s, alice, "alice")
	registerTestClient(t, s, bob, "bob")

	sendLine(t, s, alice, "JOIN #room")
	sendLine(t, s, bob, "JOIN #room")
	drainClient(alice)
	drainClient(bob)

	sendLine(t, s, alice, "PRIVMSG #room :hi")

	require.Equal(t, []string{":alice!alice@127.0.0.1 PRIVMSG #room :hi\r\n"},
		drainClient(bob))
	require.Empty(t, drainClient(alice), "no echo to the sender")
}

func TestPrivateMessage(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)
	bob := connectTestClient(s, 1)

	registerTestClient(t, s, alice, "alice")
	registerTestClient(t, s, bob, "bob")

	sendLine(t, s, alice, "PRIVMSG")
	require.Equal(t, []string{"411 :No recipient given (PRIVMSG)\r\n"},
		drainClient(alice))

	sendLine(t, s, alice, "PRIVMSG bob")
	require.Equal(t, []string{"412 :No text to send\r\n"}, drainClient(alice))

	sendLine(t, s, alice, "PRIVMSG ghost :anyone?")
	require.Equal(t, []string{"401 ghost :No such nick/channel\r\n"},
		drainClient(alice))

	sendLine(t, s, alice, "PRIVMSG BOB :psst")
	require.Equal(t, []string{":alice!alice@127.0.0.1 PRIVMSG bob :psst\r\n"},
		drainClient(bob))
	require.Empty(t, drainClient(alice))

	sendLine(t, s, alice, "PRIVMSG #nowhere :hello")
	require.Equal(t, []string{"403 #nowhere :No such channel\r\n"},
		drainClient(alice))

	sendLine(t, s, bob, "JOIN #room")
	drainClient(bob)

	sendLine(t, s, alice, "PRIVMSG #room :hello")
	require.Equal(t, []string{"404 #room :Cannot send to channel\r\n"},
		drainClient(alice))
}

func TestPartAndKick(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)
	bob := connectTestClient(s, 1)

	registerTestClient(t, s, alice, "alice")
	registerTestClient(t, s, bob, "bob")

	sendLine(t, s, alice, "PART #nowhere")
	require.Equal(t, []string{"403 #nowhere :No such channel\r\n"},
		drainClient(alice))

	sendLine(t, s, alice, "JOIN #room")
	sendLine(t, s, bob, "JOIN #room")
	drainClient(alice)
	drainClient(bob)

	sendLine(t, s, alice, "KICK #room ghost")
	require.Equal(t, []string{"441 ghost #room :They aren't on that channel\r\n"},
		drainClient(alice))

	// Kicking takes operator status; bob has none.
	sendLine(t, s, bob, "KICK #room alice")
	require.Equal(t, []string{"482 #room :You're not channel operator\r\n"},
		drainClient(bob))

	sendLine(t, s, alice, "KICK #room bob :mind your manners")
	kickLine := ":alice!alice@127.0.0.1 KICK #room bob :mind your manners\r\n"
	require.Equal(t, []string{kickLine}, drainClient(alice))
	require.Equal(t, []string{kickLine}, drainClient(bob))

	channel := s.lookupChannel("#room")
	require.False(t, channel.isMember(bob))

	sendLine(t, s, bob, "PART #room")
	require.Equal(t, []string{"442 #room :You're not on that channel\r\n"},
		drainClient(bob))

	// Default part reason is the leaver's nick.
	sendLine(t, s, alice, "PART #room")
	require.Equal(t, []string{":alice!alice@127.0.0.1 PART #room :alice\r\n"},
		drainClient(alice))

	require.Nil(t, s.lookupChannel("#room"))
}

func TestTopic(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)
	bob := connectTestClient(s, 1)

	registerTestClient(t, s, alice, "alice")
	registerTestClient(t, s, bob, "bob")

	sendLine(t, s, alice, "JOIN #room")
	sendLine(t, s, bob, "JOIN #room")
	drainClient(alice)
	drainClient(bob)

	sendLine(t, s, alice, "TOPIC #room")
	require.Equal(t, []string{"331 alice #room :No topic is set\r\n"},
		drainClient(alice))

	// Topic changes are operator only while the channel is +t, which is
	// the default.
	sendLine(t, s, bob, "TOPIC #room :bob was here")
	require.Equal(t, []string{"482 #room :You're not channel operator\r\n"},
		drainClient(bob))

	sendLine(t, s, alice, "TOPIC #room :general chatter")
	topicLine := ":alice!alice@127.0.0.1 TOPIC #room :general chatter\r\n"
	require.Equal(t, []string{topicLine}, drainClient(alice))
	require.Equal(t, []string{topicLine}, drainClient(bob))

	channel := s.lookupChannel("#room")
	require.Equal(t, "general chatter", channel.Topic)
	require.Equal(t, "alice", channel.TopicSetBy)

	sendLine(t, s, bob, "TOPIC #room")
	require.Equal(t, []string{"332 bob #room :general chatter\r\n"},
		drainClient(bob))

	// With -t anyone on the channel may set it.
	sendLine(t, s, alice, "MODE #room -t")
	drainClient(alice)
	drainClient(bob)

	sendLine(t, s, bob, "TOPIC #room :bob was here")
	require.Equal(t,
		[]string{":bob!bob@127.0.0.1 TOPIC #room :bob was here\r\n"},
		drainClient(alice))

	// A joiner sees the topic.
	carol := connectTestClient(s, 2)
	registerTestClient(t, s, carol, "carol")
	sendLine(t, s, carol, "JOIN #room")
	lines := drainClient(carol)
	require.Contains(t, lines, "332 carol #room :bob was here\r\n")
}

func TestJoinKeyAndLimit(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)
	bob := connectTestClient(s, 1)
	carol := connectTestClient(s, 2)

	registerTestClient(t, s, alice, "alice")
	registerTestClient(t, s, bob, "bob")
	registerTestClient(t, s, carol, "carol")

	sendLine(t, s, alice, "JOIN #vault")
	sendLine(t, s, alice, "MODE #vault +k hunter2")
	drainClient(alice)

	sendLine(t, s, bob, "JOIN #vault")
	require.Equal(t, []string{"475 #vault :Cannot join channel (+k)\r\n"},
		drainClient(bob))

	sendLine(t, s, bob, "JOIN #vault wrong")
	require.Equal(t, []string{"475 #vault :Cannot join channel (+k)\r\n"},
		drainClient(bob))

	sendLine(t, s, bob, "JOIN #vault hunter2")
	lines := drainClient(bob)
	require.Contains(t, lines, ":bob!bob@127.0.0.1 JOIN #vault\r\n")

	sendLine(t, s, alice, "MODE #vault +l 2")
	drainClient(alice)
	drainClient(bob)

	sendLine(t, s, carol, "JOIN #vault hunter2")
	require.Equal(t, []string{"471 #vault :Cannot join channel (+l)\r\n"},
		drainClient(carol))
}

func TestJoinMultipleChannels(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)
	bob := connectTestClient(s, 1)

	registerTestClient(t, s, alice, "alice")
	registerTestClient(t, s, bob, "bob")

	sendLine(t, s, alice, "JOIN #a,#b")
	sendLine(t, s, alice, "MODE #a +k akey")
	drainClient(alice)

	// Key i applies to channel i.
	sendLine(t, s, bob, "JOIN #a,#b akey")
	lines := drainClient(bob)
	require.Contains(t, lines, ":bob!bob@127.0.0.1 JOIN #a\r\n")
	require.Contains(t, lines, ":bob!bob@127.0.0.1 JOIN #b\r\n")

	sendLine(t, s, alice, "JOIN bad")
	require.Equal(t, []string{"403 bad :No such channel\r\n"},
		drainClient(alice))
}

// Quit cascade: channel peers hear QUIT, the client gets its goodbye, and
// everything is cleaned out of the registries.
func TestQuitCascade(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)
	bob := connectTestClient(s, 1)

	registerTestClient(t, s, alice, "alice")
	registerTestClient(t, s, bob, "bob")

	sendLine(t, s, alice, "JOIN #room")
	sendLine(t, s, bob, "JOIN #room")
	drainClient(alice)
	drainClient(bob)

	sendLine(t, s, alice, "QUIT :bye")

	require.Equal(t, []string{":alice!alice@127.0.0.1 QUIT :bye\r\n"},
		drainClient(bob))

	require.Equal(t, []string{"ERROR :Closing link: 127.0.0.1 (bye)\r\n"},
		drainClient(alice))

	require.Nil(t, s.lookupNick("alice"))
	require.NotContains(t, s.Clients, alice.ID)

	channel := s.lookupChannel("#room")
	require.NotNil(t, channel, "bob still holds the channel open")
	require.False(t, channel.isMember(alice))

	sendLine(t, s, bob, "QUIT")
	require.Equal(t, []string{"ERROR :Closing link: 127.0.0.1 (Client Quit)\r\n"},
		drainClient(bob))

	require.Nil(t, s.lookupChannel("#room"), "empty channel reclaimed")
	require.Empty(t, s.Clients)
	require.Empty(t, s.Nicks)
}

func TestPing(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)

	// PING works before registration.
	sendLine(t, s, alice, "PING abc")
	require.Equal(t, []string{"PONG ircserv :abc\r\n"}, drainClient(alice))

	sendLine(t, s, alice, "PING")
	require.Equal(t, []string{"409 :No origin specified\r\n"},
		drainClient(alice))

	registerTestClient(t, s, alice, "alice")

	sendLine(t, s, alice, "PING :irc.example.org")
	require.Equal(t, []string{"PONG ircserv :irc.example.org\r\n"},
		drainClient(alice))
}

func TestDeadClientCleanup(t *testing.T) {
	s := newTestServer()

	alice := connectTestClient(s, 0)
	bob := connectTestClient(s, 1)

	registerTestClient(t, s, alice, "alice")
	registerTestClient(t, s, bob, "bob")

	sendLine(t, s, alice, "JOIN #room")
	sendLine(t, s, bob, "JOIN #room")
	drainClient(alice)
	drainClient(bob)

	s.handleEvent(Event{Type: DeadClientEvent, Client: alice})

	require.Equal(t,
		[]string{":alice!alice@127.0.0.1 QUIT :Client disconnected\r\n"},
		drainClient(bob))
	require.NotContains(t, s.Clients, alice.ID)

	// A second death event for the same client is harmless.
	s.handleEvent(Event{Type: DeadClientEvent, Client: alice})
}
