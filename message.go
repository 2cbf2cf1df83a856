package main

import (
	"strings"

	"github.com/horgh/irc"
)

// wireMessage pairs a message with how its final parameter encodes.
type wireMessage struct {
	irc.Message

	// ForceTrailing sends the final parameter with a leading ':' even when
	// it contains no space. Free text reply parameters always go out this
	// way so they look the same no matter the text.
	ForceTrailing bool
}

// parseLine turns one line from a client into a message.
//
// The line ends at the first LF. A CR immediately before the LF is
// stripped. Tokens are separated by runs of ASCII whitespace. Once we have
// at least one token, a token beginning with ':' starts the trailing
// parameter: the ':' is dropped and the rest of the line, spaces included,
// becomes the final parameter. A ':' on the very first token means nothing
// special. The command is folded to upper case.
//
// The second return value is false if the line held no tokens.
func parseLine(line string) (irc.Message, bool) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	var tokens []string

	rest := line
	for {
		rest = strings.TrimLeft(rest, " \t")
		if len(rest) == 0 {
			break
		}

		if rest[0] == ':' && len(tokens) > 0 {
			tokens = append(tokens, rest[1:])
			break
		}

		idx := strings.IndexAny(rest, " \t")
		if idx == -1 {
			tokens = append(tokens, rest)
			break
		}

		tokens = append(tokens, rest[:idx])
		rest = rest[idx:]
	}

	if len(tokens) == 0 {
		return irc.Message{}, false
	}

	return irc.Message{
		Command: strings.ToUpper(tokens[0]),
		Params:  tokens[1:],
	}, true
}

// encodeMessage encodes a message into a raw protocol line ending in CRLF.
//
// A parameter gets a ':' prefix when it contains a space, begins with ':',
// is empty, or is the final parameter of a message with ForceTrailing set.
// Lines longer than the protocol maximum are truncated to fit.
func encodeMessage(m wireMessage) string {
	s := ""

	if len(m.Prefix) > 0 {
		s += ":" + m.Prefix + " "
	}

	s += m.Command

	for i, param := range m.Params {
		last := i+1 == len(m.Params)

		if strings.IndexByte(param, ' ') != -1 ||
			(len(param) > 0 && param[0] == ':') ||
			len(param) == 0 ||
			(last && m.ForceTrailing) {
			param = ":" + param
		}

		s += " " + param
	}

	if len(s)+2 > irc.MaxLineLength {
		s = s[:irc.MaxLineLength-2]
	}

	return s + "\r\n"
}
