package gqlwsserver

import "sync"

type subMan struct {
	subs map[string]chan interface{}
	lock sync.RWMutex
}

func newSubMan() *subMan {
	var sm subMan
	sm.subs = make(map[string]chan interface{})
	return &sm
}

// add returns the stop signal of the new subscription, or nil when the id is taken
func (sm *subMan) add(id string) chan interface{} {
	sm.lock.Lock()
	defer sm.lock.Unlock()
	if _, ok := sm.subs[id]; ok {
		return nil
	}
	sm.subs[id] = make(chan interface{})
	return sm.subs[id]
}

func (sm *subMan) del(id string) {
	sm.lock.Lock()
	defer sm.lock.Unlock()
	sub := sm.subs[id]
	if sub != nil {
		close(sub)
		delete(sm.subs, id)
	}
}

func (sm *subMan) clear() {
	sm.lock.Lock()
	defer sm.lock.Unlock()
	for id, sub := range sm.subs {
		close(sub)
		delete(sm.subs, id)
	}
}
