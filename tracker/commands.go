package tracker

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/CiaranWoodward/roomhub/protocol"
	"github.com/CiaranWoodward/roomhub/server"
)

// CommandFunc handles one tracker command. args are the whitespace separated
// tokens after the command name. Returning done closes the connection; a
// returned error is sent back as an ERROR frame.
type CommandFunc func(d *Daemon, p *peer, args []string) (done bool, err error)

var (
	errCreateUsage   = errors.New("Usage: /create <name> <admin_user> <private:0|1> [passkey]")
	errJoinUsage     = errors.New("Usage: /join <name> [passkey]")
	errRegisterUsage = errors.New("Usage: /register <name> <address> <admin_user> <private:0|1> [passkey]")
	errNeedPasskey   = errors.New("Private rooms need a passkey")
)

func defaultCommands() map[string]CommandFunc {
	return map[string]CommandFunc{
		protocol.CmdCreate:   handleCreate,
		protocol.CmdServers:  handleServers,
		protocol.CmdJoin:     handleJoin,
		protocol.CmdRegister: handleRegister,
		protocol.CmdExit:     handleExit,
		protocol.CmdCommands: handleCommands,
	}
}

func (d *Daemon) handleCommand(p *peer, body string) (done bool) {
	name, args := protocol.SplitCommand(body)
	log.Printf("Tracker: command %s %v from %s", name, args, p.remote)

	handler, ok := d.commands[name]
	if !ok {
		handler = handleUnknown
	}

	done, err := handler(d, p, args)
	if err != nil {
		if serr := p.send(protocol.HeaderError, err.Error()); serr != nil && !protocol.IsExpectedCloseError(serr) {
			log.Printf("Tracker: failed to send error to %s: %v", p.remote, serr)
		}
	}
	return done
}

// Shared by /create and /register: privacy flag plus the passkey it requires
func parsePrivacy(args []string, at int) (private bool, passkey string, err error) {
	private = protocol.ParsePrivate(args[at])
	if !private {
		return false, "", nil
	}
	if len(args) <= at+1 {
		return false, "", errNeedPasskey
	}
	return true, args[at+1], nil
}

// Handle /create <name> <admin_user> <private> [passkey]
func handleCreate(d *Daemon, p *peer, args []string) (bool, error) {
	if len(args) < 3 {
		return false, errCreateUsage
	}
	name, adminUser := args[0], args[1]
	private, passkey, err := parsePrivacy(args, 2)
	if err != nil {
		return false, fmt.Errorf("%w: /create %s %s 1 <passkey>", err, name, adminUser)
	}
	if d.rooms.HasMember(name) {
		return false, fmt.Errorf("Server name '%s' is already taken. Choose a different name.", name)
	}

	port := d.ports.Allocate()
	room := server.NewRoom(server.Config{
		Host:             d.cfg.Host,
		Port:             port,
		MaxConnections:   d.cfg.MaxConnections,
		MaxMessageLength: d.cfg.MaxMessageLength,
		Name:             name,
		AdminUser:        adminUser,
		AdminAddress:     p.remote,
		Private:          private,
		Passkey:          passkey,
	})
	if err := room.Start(); err != nil {
		log.Printf("Tracker: %v", err)
		return false, fmt.Errorf("Could not start room '%s' on port %d", name, port)
	}

	entry := Room{
		Name:         name,
		Address:      net.JoinHostPort(d.advertise, strconv.Itoa(port)),
		AdminUser:    adminUser,
		AdminAddress: p.remote,
		Private:      private,
		Passkey:      passkey,
	}
	if !d.RegisterRoom(entry) {
		room.Close()
		return false, fmt.Errorf("Server name '%s' is already taken. Choose a different name.", name)
	}
	if !d.addSpawned(room) {
		room.Close()
		return true, errors.New("Tracker is shutting down")
	}

	log.Printf("Tracker: created room %s for %s", entry, adminUser)
	return false, p.send(protocol.HeaderCreated, fmt.Sprintf("%s %s %d", name, d.advertise, port))
}

// Handle /servers
func handleServers(d *Daemon, p *peer, _ []string) (bool, error) {
	rooms := d.Rooms()
	lines := make([]string, len(rooms))
	for i, room := range rooms {
		lines[i] = room.String()
	}
	return false, p.send(protocol.HeaderActiveServers, strings.Join(lines, "\n"))
}

// Handle /join <name> [passkey]
func handleJoin(d *Daemon, p *peer, args []string) (bool, error) {
	if len(args) < 1 {
		return false, errJoinUsage
	}
	name := args[0]
	room, ok := d.LookupRoom(name)
	if !ok {
		return false, errors.New("Server not found")
	}
	if room.Private {
		if len(args) < 2 {
			return false, fmt.Errorf("Server '%s' is private. Please provide a passkey: /join %s <passkey>", name, name)
		}
		if !room.CheckPasskey(args[1]) {
			return false, errors.New("Incorrect passkey")
		}
	}
	return false, p.send(protocol.HeaderJoin, room.Address)
}

// Handle /register <name> <address> <admin_user> <private> [passkey]
func handleRegister(d *Daemon, p *peer, args []string) (bool, error) {
	if len(args) < 4 {
		return false, errRegisterUsage
	}
	private, passkey, err := parsePrivacy(args, 3)
	if err != nil {
		return false, fmt.Errorf("%w: /register %s %s %s 1 <passkey>", err, args[0], args[1], args[2])
	}
	entry := Room{
		Name:         args[0],
		Address:      args[1],
		AdminUser:    args[2],
		AdminAddress: p.remote,
		Private:      private,
		Passkey:      passkey,
	}
	if _, _, err := net.SplitHostPort(entry.Address); err != nil {
		return false, fmt.Errorf("Invalid address '%s', expected <host>:<port>", entry.Address)
	}
	if !d.RegisterRoom(entry) {
		return false, errors.New("Server already registered")
	}

	log.Printf("Tracker: registered room %s", entry)
	fields := []string{entry.Name, entry.Address, entry.AdminUser, entry.AdminAddress, strconv.FormatBool(entry.Private)}
	if entry.Passkey != "" {
		fields = append(fields, entry.Passkey)
	}
	return false, p.send(protocol.HeaderRegistered, strings.Join(fields, " "))
}

// Handle /exit
func handleExit(d *Daemon, p *peer, _ []string) (bool, error) {
	if err := p.send(protocol.HeaderExit, "Closing connection..."); err != nil {
		log.Printf("Tracker: failed to confirm exit for %s: %v", p.remote, err)
	}
	return true, nil
}

// Handle /commands
func handleCommands(d *Daemon, p *peer, _ []string) (bool, error) {
	return false, p.send(protocol.HeaderUsage, protocol.CommandText)
}

func handleUnknown(d *Daemon, p *peer, _ []string) (bool, error) {
	return false, errors.New("Unknown command")
}
