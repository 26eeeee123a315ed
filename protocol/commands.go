package protocol

import "strings"

// Tracker commands
const (
	CmdCreate   = "/create"
	CmdServers  = "/servers"
	CmdJoin     = "/join"
	CmdRegister = "/register"
	CmdExit     = "/exit"
	CmdCommands = "/commands"
)

// Room commands
const (
	CmdUsers   = "/users"
	CmdCurrent = "/current"
	CmdLeave   = "/leave"
	CmdWhisper = "/whisper"
)

// CommandText is the reference sent to every tracker connection
const CommandText = `	--- eIRC Commands ---

	/commands: List all eIRC commands.
	/servers: List active rooms.
	/create <room> <admin_user> <private:0|1> [passkey]: Create and join a new room.
	/join <room> [passkey]: Join a room (passkey required for private rooms).
	/register <room> <address> <admin_user> <private:0|1> [passkey]: Register a remote room.
	/exit: Exit the tracker.

	--- Room Commands ---

	/current: Print the current room.
	/users: List users in the room.
	/whisper <user> <message>: Send a direct message to a user.
	/leave: Leave the room and return to the tracker.
`

// SplitCommand tokenizes a command body by whitespace
func SplitCommand(body string) (command string, args []string) {
	tokens := strings.Fields(body)
	if len(tokens) == 0 {
		return "", nil
	}
	return tokens[0], tokens[1:]
}

// ParsePrivate interprets the is_private command argument
func ParsePrivate(s string) bool {
	return s == "1" || strings.EqualFold(s, "true")
}
