// Package preview runs the per-workspace preview servers.
//
// A preview server serves one workspace's files over HTTP, answers the
// coordinator's /ping probe and pushes the workspace's reload signal to
// connected browsers over a websocket. The Server interface keeps the
// serving engine replaceable; StaticServer is the built-in one.
//
// Each workspace gets a Supervisor. The supervisor owns the port: it binds,
// announces the bound port to the coordinator, serves, and on a bind
// conflict or a failed serve moves to the next port and tries again until
// its context is cancelled.
//
//	Supervisor.Run
//	  ├─ bind 127.0.0.1:port ──fail──▶ port+1, wait, retry
//	  ├─ announce (background, retried)
//	  └─ Server.Serve(ctx, ln, ws) ──error──▶ port+1, wait, retry
package preview
