package client

import "sort"

// PresenceEntry is one user currently viewing the document.
type PresenceEntry struct {
	UserID      string
	DisplayName string
	Cursor      int
	HasCursor   bool
}

// Presence tracks which users are viewing a document and their last-known
// cursor positions. Entries are ephemeral; nothing here is persisted.
//
// Presence is not safe for concurrent use on its own: the controller's lock
// guards it, the same way the replica is guarded.
type Presence struct {
	self    string
	entries map[string]*PresenceEntry
	// names caches userId -> display name independently of membership, so a
	// user who joined before their name was known still gets labeled once a
	// cursor update or EXISTING_USERNAMES backfill arrives.
	names map[string]string
}

// NewPresence creates a tracker whose local user entry is always present.
func NewPresence(selfID, selfName string) *Presence {
	p := &Presence{
		self:    selfID,
		entries: make(map[string]*PresenceEntry),
		names:   make(map[string]string),
	}
	p.names[selfID] = selfName
	p.entries[selfID] = &PresenceEntry{UserID: selfID, DisplayName: selfName}
	return p
}

// Join adds a user. An empty username keeps whatever the name cache has.
func (p *Presence) Join(userID, username string) {
	if username != "" {
		p.names[userID] = username
	}
	if _, ok := p.entries[userID]; !ok {
		p.entries[userID] = &PresenceEntry{UserID: userID, DisplayName: p.names[userID]}
	} else if username != "" {
		p.entries[userID].DisplayName = username
	}
}

// Leave removes a user and their cursor. The local user cannot leave.
func (p *Presence) Leave(userID string) {
	if userID == p.self {
		return
	}
	delete(p.entries, userID)
}

// Replace swaps membership wholesale, keeping the local user and any cached
// names.
func (p *Presence) Replace(userIDs []string) {
	entries := make(map[string]*PresenceEntry, len(userIDs)+1)
	for _, id := range userIDs {
		if prev, ok := p.entries[id]; ok {
			entries[id] = prev
		} else {
			entries[id] = &PresenceEntry{UserID: id, DisplayName: p.names[id]}
		}
	}
	if _, ok := entries[p.self]; !ok {
		if prev, exists := p.entries[p.self]; exists {
			entries[p.self] = prev
		} else {
			entries[p.self] = &PresenceEntry{UserID: p.self, DisplayName: p.names[p.self]}
		}
	}
	p.entries = entries
}

// SetCursor records a remote user's cursor position, adding them if this is
// the first we hear of them. Cursor reports about the local user are ignored:
// the client never applies its own echoed position.
func (p *Presence) SetCursor(userID, username string, position int) {
	if userID == p.self {
		return
	}
	p.Join(userID, username)
	e := p.entries[userID]
	e.Cursor = position
	e.HasCursor = true
}

// BackfillNames merges a userId -> name map into the cache and relabels any
// present entries.
func (p *Presence) BackfillNames(usernames map[string]string) {
	for id, name := range usernames {
		// Never let a backfill rename the local user.
		if name == "" || id == p.self {
			continue
		}
		p.names[id] = name
		if e, ok := p.entries[id]; ok {
			e.DisplayName = name
		}
	}
}

// NameOf returns the best-known display name for a user, or the userId when
// no name has arrived yet.
func (p *Presence) NameOf(userID string) string {
	if name, ok := p.names[userID]; ok && name != "" {
		return name
	}
	return userID
}

// Users returns a stable snapshot of all present users, local user included.
func (p *Presence) Users() []PresenceEntry {
	out := make([]PresenceEntry, 0, len(p.entries))
	for _, e := range p.entries {
		entry := *e
		if entry.DisplayName == "" {
			entry.DisplayName = p.NameOf(entry.UserID)
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Contains reports whether a user is present.
func (p *Presence) Contains(userID string) bool {
	_, ok := p.entries[userID]
	return ok
}
