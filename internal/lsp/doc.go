// Package lsp is the editor side of the live server: a language server that
// speaks JSON-RPC over a single stream (stdio in production).
//
// The server does no language work. It uses the protocol to learn the
// editor's workspace folders, to follow document open/change/save/close
// notifications, and to offer code actions that open previews in a browser.
//
// Session lifecycle:
//
//	initialize   ─▶ one workspace per folder, each assigned a free port
//	initialized  ─▶ one preview Supervisor per workspace starts serving
//	didOpen/...  ─▶ workspace.Engine (cache + reload signal)
//	shutdown     ─▶ every supervisor is cancelled and awaited
//	exit         ─▶ connection closed
//
// Handlers run on the connection's read loop, so notifications for one
// document are applied in the order the editor sent them.
package lsp
