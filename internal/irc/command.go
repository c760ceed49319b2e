package irc

import "strings"

// Kind identifies a parsed command.
type Kind int

const (
	Unrecognized Kind = iota
	Nick
	User
	Privmsg
)

func (k Kind) String() string {
	switch k {
	case Nick:
		return "NICK"
	case User:
		return "USER"
	case Privmsg:
		return "PRIVMSG"
	default:
		return "unrecognized"
	}
}

// Command is one parsed input line.  Only the fields of its Kind are
// set.
type Command struct {
	Kind Kind

	Nick   string // Nick
	User   string // User
	Target string // Privmsg; parsed but not used for routing
	Body   string // Privmsg
}

const (
	nickPrefix    = "NICK "
	userPrefix    = "USER "
	privmsgPrefix = "PRIVMSG "
	bodyMarker    = " :"
)

// Parse interprets one line with its terminator already removed.
// Prefixes are case-sensitive.  Anything it cannot use, including a
// USER line with fewer than two words or a PRIVMSG without " :", is
// Unrecognized.  Parse never fails.
func Parse(line string) Command {
	switch {
	case strings.HasPrefix(line, nickPrefix):
		return Command{
			Kind: Nick,
			Nick: strings.TrimSpace(line[len(nickPrefix):]),
		}

	case strings.HasPrefix(line, userPrefix):
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return Command{Kind: Unrecognized}
		}
		return Command{Kind: User, User: fields[1]}

	case strings.HasPrefix(line, privmsgPrefix):
		i := strings.Index(line, bodyMarker)
		if i < 0 {
			return Command{Kind: Unrecognized}
		}
		target := ""
		if i > len(privmsgPrefix) {
			target = strings.TrimSpace(line[len(privmsgPrefix):i])
		}
		return Command{
			Kind:   Privmsg,
			Target: target,
			Body:   line[i+len(bodyMarker):],
		}
	}
	return Command{Kind: Unrecognized}
}
