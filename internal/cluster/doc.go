// Package cluster holds the wire types shared by the coordinator and the
// preview-server instances that register with it, together with the small
// client side of the discovery protocol.
//
// # Overview
//
// One coordinator listens on a well-known loopback port (DefaultPort). Every
// preview-server instance, one per editor workspace, talks to it in three
// steps:
//
//	instance                         coordinator
//	   │  POST /ports                     │
//	   │─────────────────────────────────▶│  snapshot of (name, url)
//	   │◀─────────────────────────────────│
//	   │  FreePort: base+1, base+2, ...   │
//	   │  bind the chosen port            │
//	   │  POST /register {name, port}     │
//	   │─────────────────────────────────▶│  probe url/ping, add, publish
//
// # Port selection
//
// FreePort skips every candidate that a loopback registry entry already
// advertises and every candidate the local OS refuses to bind. The result is
// advisory. Two instances racing through the same snapshot can pick the same
// port; the instance whose bind fails moves on to the next port (see
// internal/preview.Supervisor).
//
// # Wire formats
//
//	RegisterRequest  {"name": "site", "server": "http://127.0.0.1", "port": 4001}
//	PortEntry        ["site", "http://127.0.0.1:4001/"]
//	ChangeEvent      {"added": true, "name": "site", "url": "http://127.0.0.1:4001/"}
//
// PostJSON is the only HTTP helper. It uses one client with a five second
// timeout and treats any status >= 300 as an error.
package cluster
