package engine

// PromiseCapability is a pending promise handed out by an op together with
// its resolve/reject functions. The capability is rooted until it is
// settled or released; settling counts as the release. Settling must happen
// on the engine thread — background tasks carry the capability across the
// task bus as an opaque token only.
type PromiseCapability struct {
	realm   *Realm
	promise Value
	resolve func(reason interface{}) error
	reject  func(reason interface{}) error
	settled bool
}

// NewPromise allocates a pending promise in the realm.
func (r *Realm) NewPromise() *PromiseCapability {
	p, resolve, reject := r.vm.NewPromise()
	return &PromiseCapability{
		realm:   r,
		promise: r.vm.ToValue(p),
		resolve: resolve,
		reject:  reject,
	}
}

// Value returns the promise object for handing to script.
func (pc *PromiseCapability) Value() Value { return pc.promise }

// Realm returns the realm the promise belongs to.
func (pc *PromiseCapability) Realm() *Realm { return pc.realm }

// Resolve settles the promise with v. goja runs the queued reaction jobs
// (microtasks) before returning. Settling twice is a fatal bug.
func (pc *PromiseCapability) Resolve(v any) {
	pc.take()
	if err := pc.resolve(v); err != nil {
		panic(err)
	}
}

// Reject settles the promise with reason v.
func (pc *PromiseCapability) Reject(v any) {
	pc.take()
	if err := pc.reject(v); err != nil {
		panic(err)
	}
}

// Release drops the capability without settling, leaving the promise
// forever pending. Used when cancellation makes the outcome unobservable.
func (pc *PromiseCapability) Release() {
	pc.take()
}

// Settled reports whether the capability has been consumed.
func (pc *PromiseCapability) Settled() bool { return pc.settled }

func (pc *PromiseCapability) take() {
	if pc.settled {
		panic("engine: promise capability settled twice")
	}
	pc.settled = true
}
