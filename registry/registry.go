/*
Package registry implements the thread-safe admin/member directory shared by
the tracker (members are rooms) and by each room server (members are users).
*/
package registry

import (
	"log"
	"sort"
	"sync"
)

// Registry holds admins (username -> address) and members (name -> M).
// Every operation runs under one mutex; lists are returned as copies.
type Registry[M any] struct {
	mu        sync.Mutex
	name      string
	address   string
	isPrivate bool
	passkey   string
	admins    map[string]string
	members   map[string]M
}

// New creates a registry and seeds the creator as its first admin
func New[M any](name, address, creatorUser, creatorAddress string, isPrivate bool, passkey string) *Registry[M] {
	r := &Registry[M]{
		name:      name,
		address:   address,
		isPrivate: isPrivate,
		passkey:   passkey,
		admins:    make(map[string]string),
		members:   make(map[string]M),
	}
	r.AddAdmin(creatorUser, creatorAddress)
	return r
}

// Grant admin privileges to a user
func (r *Registry[M]) AddAdmin(user, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[user] = addr
	log.Printf("Added admin %s@%s to registry '%s'", user, addr, r.name)
}

// Revoke admin privileges from a user
func (r *Registry[M]) RemoveAdmin(user string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.admins[user]; ok {
		delete(r.admins, user)
		log.Printf("Removed admin %s from registry '%s'", user, r.name)
	}
}

func (r *Registry[M]) ListAdmins() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.admins))
	for k, v := range r.admins {
		out[k] = v
	}
	return out
}

// AddMember registers a member, silently replacing any existing entry of the same name
func (r *Registry[M]) AddMember(name string, m M) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[name] = m
	log.Printf("Added member %s to registry '%s'", name, r.name)
}

// AddMemberIfAbsent registers a member only if the name is free
func (r *Registry[M]) AddMemberIfAbsent(name string, m M) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.members[name]; exists {
		return false
	}
	r.members[name] = m
	log.Printf("Added member %s to registry '%s'", name, r.name)
	return true
}

func (r *Registry[M]) RemoveMember(name string) bool {
	return r.RemoveMemberIf(name, nil)
}

// RemoveMemberIf removes the member only if match accepts the current entry.
// A nil match always accepts.
func (r *Registry[M]) RemoveMemberIf(name string, match func(M) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[name]
	if !ok || (match != nil && !match(m)) {
		return false
	}
	delete(r.members, name)
	log.Printf("Removed member %s from registry '%s'", name, r.name)
	return true
}

func (r *Registry[M]) ListMembers() map[string]M {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]M, len(r.members))
	for k, v := range r.members {
		out[k] = v
	}
	return out
}

func (r *Registry[M]) GetMember(name string) (M, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[name]
	return m, ok
}

func (r *Registry[M]) HasMember(name string) bool {
	_, ok := r.GetMember(name)
	return ok
}

func (r *Registry[M]) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// MemberNames returns the member names in sorted order
func (r *Registry[M]) MemberNames() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.members))
	for name := range r.members {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)
	return names
}

func (r *Registry[M]) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

func (r *Registry[M]) SetName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = name
}

func (r *Registry[M]) Address() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.address
}

func (r *Registry[M]) SetAddress(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.address = address
}

func (r *Registry[M]) IsPrivate() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isPrivate
}

// CheckPasskey always passes for public registries
func (r *Registry[M]) CheckPasskey(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.isPrivate || key == r.passkey
}
