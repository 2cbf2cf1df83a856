package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/horgh/irc"
)

// commandHandler runs a single command from a client.
type commandHandler func(*Client, irc.Message)

// commands is the dispatch table. The dispatcher upper cases the command
// word before looking it up.
var commands = map[string]commandHandler{
	"PASS":    (*Client).passCommand,
	"NICK":    (*Client).nickCommand,
	"USER":    (*Client).userCommand,
	"CAP":     (*Client).capCommand,
	"JOIN":    (*Client).joinCommand,
	"PART":    (*Client).partCommand,
	"PRIVMSG": (*Client).privmsgCommand,
	"TOPIC":   (*Client).topicCommand,
	"KICK":    (*Client).kickCommand,
	"INVITE":  (*Client).inviteCommand,
	"MODE":    (*Client).modeCommand,
	"QUIT":    (*Client).quitCommand,
	"PING":    (*Client).pingCommand,
}

// preRegCommands may be used before completing registration.
var preRegCommands = map[string]struct{}{
	"PASS": {},
	"NICK": {},
	"USER": {},
	"CAP":  {},
	"QUIT": {},
	"PING": {},
}

// handleMessage takes action based on a client's message.
//
// Note: Only the server goroutine should call this.
func (s *Server) handleMessage(c *Client, m irc.Message) {
	handler, exists := commands[m.Command]
	if !exists {
		// Unknown commands from clients that never registered stay silent.
		if c.Registered {
			// 421 ERR_UNKNOWNCOMMAND
			c.messageFromServer("421", []string{c.Nick, m.Command,
				"Unknown command"})
		}
		return
	}

	if !c.Registered {
		if _, ok := preRegCommands[m.Command]; !ok {
			// 451 ERR_NOTREGISTERED
			c.messageFromServer("451", []string{"You have not registered"})
			return
		}
	}

	handler(c, m)
}

func (c *Client) passCommand(m irc.Message) {
	if c.Registered {
		// 462 ERR_ALREADYREGISTRED
		c.messageFromServer("462", []string{"You may not reregister"})
		return
	}

	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"PASS", "Not enough parameters"})
		return
	}

	if m.Params[0] != c.Server.Config.Password {
		// 464 ERR_PASSWDMISMATCH
		c.messageFromServer("464", []string{"Password incorrect"})
		return
	}

	c.Authenticated = true

	c.maybeCompleteRegistration()
}

// The NICK command can happen both at connection registration time and
// after. There are different rules.
func (c *Client) nickCommand(m irc.Message) {
	if len(m.Params) == 0 {
		// 431 ERR_NONICKNAMEGIVEN
		c.messageFromServer("431", []string{"No nickname given"})
		return
	}
	nick := m.Params[0]

	if !isValidNick(c.Server.Config.MaxNickLength, nick) {
		// 432 ERR_ERRONEUSNICKNAME
		c.messageFromServer("432", []string{nick, "Erroneous nickname"})
		return
	}

	nickCanon := canonicalizeNick(nick)

	// Nick must be caselessly unique. Changing only the case of your own
	// nick is fine.
	other, exists := c.Server.Nicks[nickCanon]
	if exists && other != c {
		// 433 ERR_NICKNAMEINUSE
		c.messageFromServer("433", []string{"*", nick,
			"Nickname is already in use"})
		return
	}

	oldNick := c.Nick

	// Free the old nick (if there is one) and flag the new one as taken by
	// this client.
	if len(oldNick) > 0 {
		delete(c.Server.Nicks, canonicalizeNick(oldNick))
	}
	c.Server.Nicks[nickCanon] = c
	c.Nick = nick

	// During registration there is no reply. Once registered, the client
	// and everyone sharing a channel with it hear about the change, sourced
	// from the old nick.
	if c.Registered {
		from := oldNick
		if len(from) == 0 {
			from = nick
		}

		nickMessage := wireMessage{
			Message: irc.Message{
				Prefix:  from,
				Command: "NICK",
				Params:  []string{nick},
			},
			ForceTrailing: true,
		}

		c.maybeQueueMessage(nickMessage)
		for _, channel := range c.Channels {
			channel.broadcast(nickMessage, c)
		}
	}

	c.maybeCompleteRegistration()
}

func (c *Client) userCommand(m irc.Message) {
	if c.Registered {
		// 462 ERR_ALREADYREGISTRED
		c.messageFromServer("462", []string{"You may not reregister"})
		return
	}

	// 4 parameters: <user> <mode> <unused> <realname>
	if len(m.Params) < 4 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"USER", "Not enough parameters"})
		return
	}

	c.User = m.Params[0]
	c.RealName = m.Params[3]

	c.maybeCompleteRegistration()
}

// Non-RFC command that appears to be widely supported. Just ignore it.
func (c *Client) capCommand(m irc.Message) {}

// maybeCompleteRegistration promotes the client to registered once the
// password, nick, and user info have all arrived, in whatever order.
func (c *Client) maybeCompleteRegistration() {
	if c.Registered || !c.Authenticated || len(c.Nick) == 0 ||
		len(c.User) == 0 {
		return
	}

	c.Registered = true

	config := c.Server.Config

	// 001 RPL_WELCOME
	c.messageFromServer("001", []string{c.Nick,
		"Welcome to the Internet Relay Network " + c.prefix()})

	// 002 RPL_YOURHOST
	c.messageFromServer("002", []string{c.Nick,
		fmt.Sprintf("Your host is %s, running version %s", config.ServerName,
			config.Version)})

	// 003 RPL_CREATED
	c.messageFromServer("003", []string{c.Nick,
		"This server was created " + config.CreatedDate})

	// 004 RPL_MYINFO
	// <servername> <version> <available user modes> <available channel modes>
	c.messageFromServerNoTrailing("004", []string{c.Nick, config.ServerName,
		config.Version, "o", "itkol"})

	c.motd()
}

func (c *Client) motd() {
	config := c.Server.Config

	// 375 RPL_MOTDSTART
	c.messageFromServer("375", []string{c.Nick,
		fmt.Sprintf("- %s Message of the day - ", config.ServerName)})

	// 372 RPL_MOTD
	c.messageFromServer("372", []string{c.Nick, "- " + config.MOTD})

	// 376 RPL_ENDOFMOTD
	c.messageFromServer("376", []string{c.Nick, "End of MOTD command"})
}

func (c *Client) joinCommand(m irc.Message) {
	// Parameters: <channel> *( "," <channel> ) [ <key> *( "," <key> ) ]
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"JOIN", "Not enough parameters"})
		return
	}

	names := strings.Split(m.Params[0], ",")

	var keys []string
	if len(m.Params) > 1 {
		keys = strings.Split(m.Params[1], ",")
	}

	for i, name := range names {
		if len(name) == 0 {
			continue
		}

		key := ""
		if i < len(keys) {
			key = keys[i]
		}

		c.join(name, key)
	}
}

// join tries to put the client in one channel, creating it if needed.
func (c *Client) join(name, key string) {
	if !isValidChannel(name) {
		// 403 ERR_NOSUCHCHANNEL. Used to indicate channel name is invalid.
		c.messageFromServer("403", []string{name, "No such channel"})
		return
	}

	nameCanon := canonicalizeChannel(name)

	channel, exists := c.Server.Channels[nameCanon]
	if !exists {
		// The creator becomes the first member and the sole operator.
		channel = newChannel(name)
		c.Server.Channels[nameCanon] = channel

		channel.addMember(c)
		channel.grantOperator(c)
	} else {
		// Joining a channel we're already in is a no-op.
		if channel.isMember(c) {
			return
		}

		if channel.InviteOnly && !channel.isInvited(c) {
			// 473 ERR_INVITEONLYCHAN
			c.messageFromServer("473", []string{name,
				"Cannot join channel (+i)"})
			return
		}

		if channel.hasUserLimit() && len(channel.Members) >= channel.UserLimit {
			// 471 ERR_CHANNELISFULL
			c.messageFromServer("471", []string{name,
				"Cannot join channel (+l)"})
			return
		}

		if channel.hasKey() && key != channel.Key {
			// 475 ERR_BADCHANNELKEY
			c.messageFromServer("475", []string{name,
				"Cannot join channel (+k)"})
			return
		}

		channel.addMember(c)
	}

	// Tell every member, the joiner included.
	channel.broadcast(wireMessage{
		Message: irc.Message{
			Prefix:  c.prefix(),
			Command: "JOIN",
			Params:  []string{channel.Name},
		},
	}, nil)

	// 332 RPL_TOPIC. Only when one is set.
	if len(channel.Topic) > 0 {
		c.messageFromServer("332", []string{c.Nick, channel.Name,
			channel.Topic})
	}

	// 353 RPL_NAMREPLY and 366 RPL_ENDOFNAMES
	c.messageFromServer("353", []string{c.Nick, "=", channel.Name,
		channel.namesList()})
	c.messageFromServer("366", []string{c.Nick, channel.Name,
		"End of /NAMES list"})
}

func (c *Client) partCommand(m irc.Message) {
	// Parameters: <channel> *( "," <channel> ) [ <Part Message> ]
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"PART", "Not enough parameters"})
		return
	}

	reason := c.Nick
	if len(m.Params) >= 2 {
		reason = m.Params[1]
	}

	for _, name := range strings.Split(m.Params[0], ",") {
		if len(name) == 0 {
			continue
		}
		c.part(name, reason)
	}

	c.Server.cleanupEmptyChannels()
}

// part tries to remove the client from the channel.
func (c *Client) part(name, reason string) {
	channel := c.Server.lookupChannel(name)
	if channel == nil {
		// 403 ERR_NOSUCHCHANNEL
		c.messageFromServer("403", []string{name, "No such channel"})
		return
	}

	if !channel.isMember(c) {
		// 442 ERR_NOTONCHANNEL
		c.messageFromServer("442", []string{name,
			"You're not on that channel"})
		return
	}

	// Tell everyone, the leaver included, then remove.
	channel.broadcast(wireMessage{
		Message: irc.Message{
			Prefix:  c.prefix(),
			Command: "PART",
			Params:  []string{channel.Name, reason},
		},
		ForceTrailing: true,
	}, nil)

	channel.removeMember(c)
}

func (c *Client) privmsgCommand(m irc.Message) {
	// Parameters: <msgtarget> <text to be sent>
	if len(m.Params) == 0 {
		// 411 ERR_NORECIPIENT
		c.messageFromServer("411", []string{"No recipient given (PRIVMSG)"})
		return
	}

	if len(m.Params) == 1 {
		// 412 ERR_NOTEXTTOSEND
		c.messageFromServer("412", []string{"No text to send"})
		return
	}

	target := m.Params[0]
	text := m.Params[1]

	// The message may be too long once we add the prefix and encode it.
	// Strip trailing characters until it's short enough.
	messageLen := len(":") + len(c.prefix()) + len(" PRIVMSG ") + len(target) +
		len(" :") + len(text) + len("\r\n")
	if messageLen > irc.MaxLineLength {
		trimCount := messageLen - irc.MaxLineLength
		if trimCount > len(text) {
			trimCount = len(text)
		}
		text = text[:len(text)-trimCount]
	}

	if target[0] == '#' || target[0] == '&' {
		channel := c.Server.lookupChannel(target)
		if channel == nil {
			// 403 ERR_NOSUCHCHANNEL
			c.messageFromServer("403", []string{target, "No such channel"})
			return
		}

		if !channel.isMember(c) {
			// 404 ERR_CANNOTSENDTOCHAN
			c.messageFromServer("404", []string{target,
				"Cannot send to channel"})
			return
		}

		// Everyone but the sender hears it.
		channel.broadcast(wireMessage{
			Message: irc.Message{
				Prefix:  c.prefix(),
				Command: "PRIVMSG",
				Params:  []string{channel.Name, text},
			},
			ForceTrailing: true,
		}, c)
		return
	}

	// We're messaging a nick directly.
	targetClient := c.Server.lookupNick(target)
	if targetClient == nil {
		// 401 ERR_NOSUCHNICK
		c.messageFromServer("401", []string{target, "No such nick/channel"})
		return
	}

	c.messageClient(targetClient, "PRIVMSG", []string{targetClient.Nick, text})
}

func (c *Client) topicCommand(m irc.Message) {
	// Parameters: <channel> [ <topic> ]
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"TOPIC", "Not enough parameters"})
		return
	}

	name := m.Params[0]

	channel := c.Server.lookupChannel(name)
	if channel == nil {
		// 403 ERR_NOSUCHCHANNEL
		c.messageFromServer("403", []string{name, "No such channel"})
		return
	}

	if !channel.isMember(c) {
		// 442 ERR_NOTONCHANNEL
		c.messageFromServer("442", []string{name,
			"You're not on that channel"})
		return
	}

	// With no new topic, report the current one.
	if len(m.Params) == 1 {
		if len(channel.Topic) == 0 {
			// 331 RPL_NOTOPIC
			c.messageFromServer("331", []string{c.Nick, channel.Name,
				"No topic is set"})
			return
		}

		// 332 RPL_TOPIC
		c.messageFromServer("332", []string{c.Nick, channel.Name,
			channel.Topic})
		return
	}

	if channel.TopicRestricted && !channel.isOperator(c) {
		// 482 ERR_CHANOPRIVSNEEDED
		c.messageFromServer("482", []string{name,
			"You're not channel operator"})
		return
	}

	channel.Topic = m.Params[1]
	channel.TopicSetBy = c.Nick

	channel.broadcast(wireMessage{
		Message: irc.Message{
			Prefix:  c.prefix(),
			Command: "TOPIC",
			Params:  []string{channel.Name, channel.Topic},
		},
		ForceTrailing: true,
	}, nil)
}

func (c *Client) kickCommand(m irc.Message) {
	// Parameters: <channel> <user> [ <comment> ]
	if len(m.Params) < 2 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"KICK", "Not enough parameters"})
		return
	}

	name := m.Params[0]
	targetNick := m.Params[1]

	reason := c.Nick
	if len(m.Params) >= 3 {
		reason = m.Params[2]
	}

	channel := c.Server.lookupChannel(name)
	if channel == nil {
		// 403 ERR_NOSUCHCHANNEL
		c.messageFromServer("403", []string{name, "No such channel"})
		return
	}

	if !channel.isMember(c) {
		// 442 ERR_NOTONCHANNEL
		c.messageFromServer("442", []string{name,
			"You're not on that channel"})
		return
	}

	if !channel.isOperator(c) {
		// 482 ERR_CHANOPRIVSNEEDED
		c.messageFromServer("482", []string{name,
			"You're not channel operator"})
		return
	}

	targetClient := c.Server.lookupNick(targetNick)
	if targetClient == nil || !channel.isMember(targetClient) {
		// 441 ERR_USERNOTINCHANNEL
		c.messageFromServer("441", []string{targetNick, name,
			"They aren't on that channel"})
		return
	}

	channel.broadcast(wireMessage{
		Message: irc.Message{
			Prefix:  c.prefix(),
			Command: "KICK",
			Params:  []string{channel.Name, targetClient.Nick, reason},
		},
		ForceTrailing: true,
	}, nil)

	channel.removeMember(targetClient)

	c.Server.cleanupEmptyChannels()
}

func (c *Client) inviteCommand(m irc.Message) {
	// Parameters: <nickname> <channel>
	if len(m.Params) < 2 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"INVITE", "Not enough parameters"})
		return
	}

	targetNick := m.Params[0]
	name := m.Params[1]

	channel := c.Server.lookupChannel(name)
	if channel == nil {
		// 403 ERR_NOSUCHCHANNEL
		c.messageFromServer("403", []string{name, "No such channel"})
		return
	}

	if !channel.isMember(c) {
		// 442 ERR_NOTONCHANNEL
		c.messageFromServer("442", []string{name,
			"You're not on that channel"})
		return
	}

	// Anyone on the channel may invite unless it's invite only. Then it
	// takes an operator.
	if channel.InviteOnly && !channel.isOperator(c) {
		// 482 ERR_CHANOPRIVSNEEDED
		c.messageFromServer("482", []string{name,
			"You're not channel operator"})
		return
	}

	targetClient := c.Server.lookupNick(targetNick)
	if targetClient == nil {
		// 401 ERR_NOSUCHNICK
		c.messageFromServer("401", []string{targetNick,
			"No such nick/channel"})
		return
	}

	if channel.isMember(targetClient) {
		// 443 ERR_USERONCHANNEL
		c.messageFromServer("443", []string{targetNick, name,
			"is already on channel"})
		return
	}

	channel.invite(targetClient)

	// 341 RPL_INVITING
	c.messageFromServerNoTrailing("341", []string{c.Nick, targetClient.Nick,
		channel.Name})

	targetClient.maybeQueueMessage(wireMessage{
		Message: irc.Message{
			Prefix:  c.prefix(),
			Command: "INVITE",
			Params:  []string{targetClient.Nick, channel.Name},
		},
		ForceTrailing: true,
	})
}

func (c *Client) modeCommand(m irc.Message) {
	// Parameters: <target> [ <modestring> [ <mode params>... ] ]
	if len(m.Params) == 0 {
		// 461 ERR_NEEDMOREPARAMS
		c.messageFromServer("461", []string{"MODE", "Not enough parameters"})
		return
	}

	target := m.Params[0]

	if target[0] != '#' && target[0] != '&' {
		// User modes are not supported.
		// 502 ERR_USERSDONTMATCH
		c.messageFromServer("502", []string{
			"Cannot change mode for other users"})
		return
	}

	channel := c.Server.lookupChannel(target)
	if channel == nil {
		// 403 ERR_NOSUCHCHANNEL
		c.messageFromServer("403", []string{target, "No such channel"})
		return
	}

	// Without a mode string, report the channel's modes. The key's value
	// stays hidden.
	if len(m.Params) == 1 {
		// 324 RPL_CHANNELMODEIS
		c.messageFromServerNoTrailing("324",
			append([]string{c.Nick, channel.Name}, channel.modeParams()...))
		return
	}

	if !channel.isMember(c) {
		// 442 ERR_NOTONCHANNEL
		c.messageFromServer("442", []string{target,
			"You're not on that channel"})
		return
	}

	if !channel.isOperator(c) {
		// 482 ERR_CHANOPRIVSNEEDED
		c.messageFromServer("482", []string{target,
			"You're not channel operator"})
		return
	}

	c.applyChannelModes(channel, m.Params[1], m.Params[2:])
}

// applyChannelModes walks a mode string left to right, applying what it
// can, then echoes only the modes that actually applied to the channel.
// The echo carries a single + or - per run of same direction changes, with
// the consumed parameters after, in order.
func (c *Client) applyChannelModes(channel *Channel, modes string,
	params []string) {
	adding := true
	paramIndex := 0

	applied := ""
	var appliedParams []string
	lastSign := byte(0)

	record := func(letter byte, param string) {
		sign := byte('+')
		if !adding {
			sign = '-'
		}
		if sign != lastSign {
			applied += string(sign)
			lastSign = sign
		}
		applied += string(letter)
		if len(param) > 0 {
			appliedParams = append(appliedParams, param)
		}
	}

	for i := 0; i < len(modes); i++ {
		switch mode := modes[i]; mode {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'i':
			channel.InviteOnly = adding
			record('i', "")
		case 't':
			channel.TopicRestricted = adding
			record('t', "")
		case 'k':
			if !adding {
				channel.Key = ""
				record('k', "")
				continue
			}
			if paramIndex >= len(params) {
				continue
			}
			channel.Key = params[paramIndex]
			record('k', params[paramIndex])
			paramIndex++
		case 'o':
			// A nick parameter is consumed whether we're granting or
			// revoking, and whether or not it resolves.
			if paramIndex >= len(params) {
				continue
			}
			nick := params[paramIndex]
			paramIndex++

			targetClient := c.Server.lookupNick(nick)
			if targetClient == nil || !channel.isMember(targetClient) {
				continue
			}

			if adding {
				channel.grantOperator(targetClient)
			} else {
				channel.revokeOperator(targetClient)
			}
			record('o', nick)
		case 'l':
			if !adding {
				channel.UserLimit = 0
				record('l', "")
				continue
			}
			if paramIndex >= len(params) {
				continue
			}
			raw := params[paramIndex]
			paramIndex++

			limit, err := strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				continue
			}
			channel.UserLimit = limit
			record('l', raw)
		default:
			// 472 ERR_UNKNOWNMODE
			c.messageFromServer("472", []string{string(mode),
				"is unknown mode char to me"})
		}
	}

	if len(applied) == 0 {
		return
	}

	channel.broadcast(wireMessage{
		Message: irc.Message{
			Prefix:  c.prefix(),
			Command: "MODE",
			Params:  append([]string{channel.Name, applied}, appliedParams...),
		},
	}, nil)
}

func (c *Client) quitCommand(m irc.Message) {
	reason := "Client Quit"
	if len(m.Params) > 0 {
		reason = m.Params[0]
	}

	c.quit(reason)
}

func (c *Client) pingCommand(m irc.Message) {
	// Parameters: <token>
	if len(m.Params) == 0 {
		// 409 ERR_NOORIGIN
		c.messageFromServer("409", []string{"No origin specified"})
		return
	}

	c.messageFromServer("PONG", []string{c.Server.Config.ServerName,
		m.Params[0]})
}
