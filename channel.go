package main

import "strconv"

// Channel holds everything to do with a channel.
type Channel struct {
	// Name with the casing it was first registered with. Lookups go through
	// the server's registry, which keys on the canonicalized form.
	Name string

	// Members in join order. Names replies and broadcasts walk this order.
	// If we have zero members, we should not exist.
	Members []*Client

	// Current topic. May be blank.
	Topic string

	// Nick of whoever set the topic.
	TopicSetBy string

	// Key clients must supply to join. Blank means no key.
	Key string

	InviteOnly      bool
	TopicRestricted bool

	// Maximum member count. Zero means unlimited.
	UserLimit int

	// Client id to membership. Operators are always members. Invites are
	// cleared when the invited client joins or leaves our attention.
	Operators map[uint64]struct{}
	Invites   map[uint64]struct{}
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:            name,
		TopicRestricted: true,
		Operators:       make(map[uint64]struct{}),
		Invites:         make(map[uint64]struct{}),
	}
}

func (ch *Channel) isMember(c *Client) bool {
	_, exists := c.Channels[canonicalizeChannel(ch.Name)]
	return exists
}

// addMember adds the client to the channel. Adding a client twice is a
// no-op. Joining consumes any invite the client had.
func (ch *Channel) addMember(c *Client) {
	if ch.isMember(c) {
		return
	}

	ch.Members = append(ch.Members, c)
	c.Channels[canonicalizeChannel(ch.Name)] = ch

	delete(ch.Invites, c.ID)
}

// removeMember takes the client out of the channel, including its operator
// status and any pending invite.
func (ch *Channel) removeMember(c *Client) {
	for i, member := range ch.Members {
		if member != c {
			continue
		}

		ch.Members = append(ch.Members[:i], ch.Members[i+1:]...)
		delete(c.Channels, canonicalizeChannel(ch.Name))
		break
	}

	delete(ch.Operators, c.ID)
	delete(ch.Invites, c.ID)
}

func (ch *Channel) isEmpty() bool {
	return len(ch.Members) == 0
}

func (ch *Channel) grantOperator(c *Client) {
	if ch.isMember(c) {
		ch.Operators[c.ID] = struct{}{}
	}
}

func (ch *Channel) revokeOperator(c *Client) {
	delete(ch.Operators, c.ID)
}

func (ch *Channel) isOperator(c *Client) bool {
	_, exists := ch.Operators[c.ID]
	return exists
}

func (ch *Channel) invite(c *Client) {
	ch.Invites[c.ID] = struct{}{}
}

func (ch *Channel) isInvited(c *Client) bool {
	_, exists := ch.Invites[c.ID]
	return exists
}

func (ch *Channel) hasKey() bool {
	return len(ch.Key) > 0
}

func (ch *Channel) hasUserLimit() bool {
	return ch.UserLimit > 0
}

// broadcast queues the message on every member, optionally skipping one
// (typically the sender).
func (ch *Channel) broadcast(m wireMessage, exclude *Client) {
	for _, member := range ch.Members {
		if member == exclude {
			continue
		}

		member.maybeQueueMessage(m)
	}
}

// modeParams renders the channel's modes for a mode query. The key's value
// stays hidden; the user limit does not.
func (ch *Channel) modeParams() []string {
	modes := "+"

	if ch.InviteOnly {
		modes += "i"
	}
	if ch.TopicRestricted {
		modes += "t"
	}
	if ch.hasKey() {
		modes += "k"
	}

	params := []string{}
	if ch.hasUserLimit() {
		modes += "l"
		params = append(params, strconv.Itoa(ch.UserLimit))
	}

	return append([]string{modes}, params...)
}

// namesList renders the channel's members in join order, operators
// prefixed with @.
func (ch *Channel) namesList() string {
	names := ""

	for i, member := range ch.Members {
		if i > 0 {
			names += " "
		}
		if ch.isOperator(member) {
			names += "@"
		}
		names += member.Nick
	}

	return names
}
