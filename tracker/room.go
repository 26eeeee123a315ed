package tracker

import (
	"fmt"
	"sort"
)

// Room is a tracker directory entry: where a room lives and who may join it
type Room struct {
	Name         string
	Address      string
	AdminUser    string
	AdminAddress string
	Private      bool
	Passkey      string
}

// CheckPasskey always passes for public rooms
func (r Room) CheckPasskey(key string) bool {
	if !r.Private {
		return true
	}
	return key == r.Passkey
}

func (r Room) String() string {
	return fmt.Sprintf("%s @ %s", r.Name, r.Address)
}

// RegisterRoom adds a room to the directory. Returns false if the name is taken.
func (d *Daemon) RegisterRoom(room Room) bool {
	return d.rooms.AddMemberIfAbsent(room.Name, room)
}

// LookupRoom finds a registered room by name
func (d *Daemon) LookupRoom(name string) (Room, bool) {
	return d.rooms.GetMember(name)
}

// Rooms returns every registered room, sorted by name
func (d *Daemon) Rooms() []Room {
	snapshot := d.rooms.ListMembers()
	rooms := make([]Room, 0, len(snapshot))
	for _, room := range snapshot {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms
}
