package irc

import "minircd/util"

// Dispatcher applies parsed commands to the client that sent them.
type Dispatcher struct {
	Registry *Registry
	Logger   *util.Logger
}

// Dispatch parses line and applies it on behalf of c.  It returns the
// parsed command and, for PRIVMSG, the per-recipient write failures of
// the broadcast.  Unrecognized lines are dropped without a reply.
func (d *Dispatcher) Dispatch(c *Client, line string) (Command, []error) {
	cmd := Parse(line)
	return cmd, d.Apply(c, cmd)
}

// Apply executes cmd for c.
func (d *Dispatcher) Apply(c *Client, cmd Command) []error {
	switch cmd.Kind {
	case Nick:
		c.SetNick(cmd.Nick)
		d.Logger.Debug("%s: nick set to %q", c.ID, cmd.Nick)

	case User:
		c.SetUser(cmd.User)
		d.Logger.Debug("%s: user set to %q", c.ID, cmd.User)

	case Privmsg:
		// The stated target is ignored: every registered client,
		// including the sender, receives the message.
		sender := c.DisplayName()
		delivered, failures := d.Registry.Broadcast(sender, cmd.Body)
		d.Logger.Debug("%s: relayed to %d of %d client(s)",
			c.ID, delivered, delivered+len(failures))
		return failures

	default:
		d.Logger.Debug("%s: ignoring unrecognized line", c.ID)
	}
	return nil
}
