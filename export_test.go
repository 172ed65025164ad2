package webplatform

import "github.com/6over3/webplatform/bridge"

// NodeForTest builds a Node for a handle the host may never have issued.
func NodeForTest(s *Session, h bridge.Handle) Node { return s.node(h) }
