package server

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/CiaranWoodward/roomhub/protocol"
)

// CommandFunc handles one room command. args is the body text after the
// command name. Returning done ends the member's session; a returned error
// is sent back to the member as an ERROR frame.
type CommandFunc func(r *Room, m *member, args string) (done bool, err error)

func defaultCommands() map[string]CommandFunc {
	return map[string]CommandFunc{
		protocol.CmdUsers:   handleUsers,
		protocol.CmdCurrent: handleCurrent,
		protocol.CmdLeave:   handleLeave,
		protocol.CmdWhisper: handleWhisper,
	}
}

// Dispatch a command frame body. Unknown commands are logged and dropped.
func (r *Room) handleCommand(m *member, body string) (done bool) {
	name, args := cutField(body)
	handler, ok := r.commands[name]
	if !ok {
		log.Printf("Room '%s': ignoring unknown command %q from %s", r.Name(), name, m.name)
		return false
	}

	done, err := handler(r, m, args)
	if err != nil {
		if serr := m.send(protocol.HeaderError, err.Error()); serr != nil && !protocol.IsExpectedCloseError(serr) {
			log.Printf("Room '%s': failed to send error to %s: %v", r.Name(), m.name, serr)
		}
	}
	return done
}

// Handle /users
func handleUsers(r *Room, m *member, _ string) (bool, error) {
	return false, m.send(protocol.HeaderUsers, strings.Join(r.ActiveUsers(), ", "))
}

// Handle /current
func handleCurrent(r *Room, m *member, _ string) (bool, error) {
	return false, m.send(protocol.HeaderCurrent, r.Name())
}

// Handle /leave. The departure itself is handled when the loop exits.
func handleLeave(r *Room, m *member, _ string) (bool, error) {
	if err := m.send(protocol.HeaderLeave, "Leaving chat room..."); err != nil {
		log.Printf("Room '%s': failed to confirm leave for %s: %v", r.Name(), m.name, err)
	}
	return true, nil
}

// Handle /whisper <user> <message>
func handleWhisper(r *Room, m *member, args string) (bool, error) {
	target, message := cutField(args)
	if target == "" || message == "" {
		return false, errors.New("Usage: /whisper <username> <message>")
	}

	tm, ok := r.users.GetMember(target)
	if !ok {
		return false, fmt.Errorf("User '%s' not found", target)
	}

	body := target + "|" + message
	if err := tm.send(protocol.HeaderWhisper, body); err != nil {
		log.Printf("Room '%s': whisper from %s to %s failed: %v", r.Name(), m.name, target, err)
		return false, fmt.Errorf("User '%s' is unreachable", target)
	}
	log.Printf("Room '%s': whisper %s -> %s", r.Name(), m.name, target)
	return false, m.send(protocol.HeaderWhispered, body)
}

// cutField splits off the first whitespace separated token.
// The remainder keeps its inner spacing.
func cutField(s string) (field, rest string) {
	s = strings.TrimLeft(s, " \t\r\n")
	i := strings.IndexAny(s, " \t\r\n")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
