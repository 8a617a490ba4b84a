package broadcast

import "sync"

type set map[string]struct{}

// Registry tracks which client handles are joined to which channels.
// The forward index (channel → handles) and the reverse index (handle → channels)
// are always updated together under one lock.
type Registry struct {
	mu       sync.Mutex
	members  map[string]set
	channels map[string]set
}

func NewRegistry() *Registry {
	return &Registry{
		members:  make(map[string]set),
		channels: make(map[string]set),
	}
}

// Join adds handle to the channel. Joining twice is the same as joining once.
func (r *Registry) Join(channelID, handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	add(r.members, channelID, handle)
	add(r.channels, handle, channelID)
}

// Leave removes handle from the channel and reports whether this removal
// left the channel without members.
func (r *Registry) Leave(channelID, handle string) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !remove(r.members, channelID, handle) {
		return false
	}
	remove(r.channels, handle, channelID)
	return len(r.members[channelID]) == 0
}

// DisconnectAll removes handle from every channel it joined and returns the
// channels that became empty as a result.
func (r *Registry) DisconnectAll(handle string) (emptied []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for channelID := range r.channels[handle] {
		remove(r.members, channelID, handle)
		if len(r.members[channelID]) == 0 {
			emptied = append(emptied, channelID)
		}
	}
	delete(r.channels, handle)
	return emptied
}

func (r *Registry) MemberCount(channelID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members[channelID])
}

// ClientCount returns the number of distinct handles joined to any channel.
func (r *Registry) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// ChannelCount returns the number of channels with at least one member.
func (r *Registry) ChannelCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func add(index map[string]set, key, value string) {
	s, ok := index[key]
	if !ok {
		s = make(set)
		index[key] = s
	}
	s[value] = struct{}{}
}

func remove(index map[string]set, key, value string) bool {
	s, ok := index[key]
	if !ok {
		return false
	}
	if _, ok := s[value]; !ok {
		return false
	}
	delete(s, value)
	if len(s) == 0 {
		delete(index, key)
	}
	return true
}
