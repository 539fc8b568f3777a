package advertising

import (
	"fmt"

	"github.com/rigado/btcore"
)

// Registry is the Advertising Set Registry (C5): map from advertiser id
// to record, allocation and accounting (§4.5).
type Registry struct {
	apiType      btcore.ApiType
	start        int
	maxInstances int
	sets         map[btcore.AdvertiserID]*Advertiser
}

// NewRegistry builds a registry for the given API type and controller-
// reported instance count. Vendor (AndroidVendor) handles are 1-based;
// Extended and Legacy are 0-based (§4.5).
func NewRegistry(apiType btcore.ApiType, maxInstances int) *Registry {
	start := 0
	if apiType == btcore.ApiAndroidVendor {
		start = 1
	}
	return &Registry{
		apiType:      apiType,
		start:        start,
		maxInstances: maxInstances,
		sets:         make(map[btcore.AdvertiserID]*Advertiser),
	}
}

// Allocate returns the smallest unused id in [start, start+maxInstances),
// or ErrTooManyAdvertisers if none is free (§4.5).
func (r *Registry) Allocate() (*Advertiser, error) {
	for i := 0; i < r.maxInstances; i++ {
		id := btcore.AdvertiserID(r.start + i)
		if existing, ok := r.sets[id]; ok && existing.inUse {
			continue
		}
		a := &Advertiser{id: id, inUse: true}
		r.sets[id] = a
		return a, nil
	}
	return nil, ErrTooManyAdvertisers
}

// Get returns the advertiser for id, or nil if it is not in use.
func (r *Registry) Get(id btcore.AdvertiserID) *Advertiser {
	a, ok := r.sets[id]
	if !ok || !a.inUse {
		return nil
	}
	return a
}

// Reset destroys the record for id (§4.5 "destroys the record"); the
// caller is responsible for cancelling its rotation alarm beforehand and
// for unregistering from the address policy module afterwards once no
// sets remain, since those hold resources the registry doesn't own.
func (r *Registry) Reset(id btcore.AdvertiserID) {
	if a, ok := r.sets[id]; ok {
		a.reset()
		a.inUse = false
	}
}

// InUseCount reports how many advertisers are currently allocated, used
// to decide whether the address policy module should be unregistered
// from (§4.5 "if no sets remain").
func (r *Registry) InUseCount() int {
	n := 0
	for _, a := range r.sets {
		if a.inUse {
			n++
		}
	}
	return n
}

// All returns every in-use advertiser, for pause/resume/rotation fan-out.
func (r *Registry) All() []*Advertiser {
	out := make([]*Advertiser, 0, len(r.sets))
	for _, a := range r.sets {
		if a.inUse {
			out = append(out, a)
		}
	}
	return out
}

// ErrTooManyAdvertisers is returned by Allocate when no id is free.
var ErrTooManyAdvertisers = fmt.Errorf("advertising: too many advertisers")
