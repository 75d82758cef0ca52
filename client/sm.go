package gqlwsclient

import (
	gqlwsmessage "github.com/onichandame/gql-client/message"
)

type subState int

const (
	// start not sent on the current connection
	pending subState = iota
	// start sent
	active
	// stop sent, waiting for complete
	stopped
)

type registration struct {
	id      string
	request gqlwsmessage.Request
	sink    *sink
	state   subState
}

// subMan is the registration table. It is owned by the session loop and never
// touched from any other goroutine. order keeps subscribe order for replay.
type subMan struct {
	subs  map[string]*registration
	order []string
}

func newSubMan() *subMan {
	var sm subMan
	sm.subs = make(map[string]*registration)
	return &sm
}

func (sm *subMan) has(id string) bool {
	_, ok := sm.subs[id]
	return ok
}

func (sm *subMan) add(reg *registration) {
	sm.subs[reg.id] = reg
	sm.order = append(sm.order, reg.id)
}

func (sm *subMan) get(id string) *registration {
	return sm.subs[id]
}

func (sm *subMan) del(id string) {
	if _, ok := sm.subs[id]; !ok {
		return
	}
	delete(sm.subs, id)
	for i, v := range sm.order {
		if v == id {
			sm.order = append(sm.order[:i], sm.order[i+1:]...)
			break
		}
	}
}

func (sm *subMan) len() int { return len(sm.subs) }

// ordered returns the registrations in subscribe order
func (sm *subMan) ordered() []*registration {
	regs := make([]*registration, 0, len(sm.order))
	for _, id := range sm.order {
		regs = append(regs, sm.subs[id])
	}
	return regs
}

// reset prepares the table for a new connection: registrations waiting for a
// stop acknowledgement are forgotten, every other one goes back to pending.
func (sm *subMan) reset() {
	for _, reg := range sm.ordered() {
		if reg.state == stopped {
			sm.del(reg.id)
		} else {
			reg.state = pending
		}
	}
}

// clear empties the table and returns what it held, in order
func (sm *subMan) clear() []*registration {
	regs := sm.ordered()
	sm.subs = make(map[string]*registration)
	sm.order = nil
	return regs
}
