// Package webplatform drives a browser-like scripting host from Go.
//
// Native code never holds host objects. It holds small integer handles into
// a host-side table (WEBPLATFORM.rs_refs) and issues foreign calls through
// the bridge package that name a handle plus encoded arguments. The host
// calls back into Go through a single trampoline that resolves an owned
// closure by address and hands it an Event.
//
// A typical program:
//
//	rt, _ := bridge.New(ctx, nil)
//	host, _ := gojahost.New(rt, gojahost.Options{HTML: page})
//	s, _ := webplatform.Init(ctx, rt, host)
//
//	btn, ok, _ := s.Query("button")
//	if ok {
//		btn.On("click", func(e webplatform.Event) { ... })
//	}
//	s.Spin()
//
// # Handles
//
// The host table only grows: every query or creation call appends a slot,
// even for an object that already has one. Two Nodes can therefore refer to
// the same host object under different handles; use [Node.SameAs] to compare
// the objects themselves. Handles are never reclaimed and are not checked
// for staleness. Operating on a Node whose object the host has removed does
// whatever the host does with it.
//
// # Callbacks
//
// Registered closures are owned by the Session and live as long as it does.
// There is no way to unregister a listener. Closures run synchronously
// inside the host call that delivered the event and may themselves issue
// foreign calls and register further listeners.
package webplatform
