// Package cli provides the interactive momentkeeper client.
//
// It wires configuration, the local database, the HTTP client, the sync
// engine and the application services, then runs a REPL. A background
// watcher tracks connectivity and sweeps pending moments when the server
// becomes reachable.
//
// Typical session:
//
//	mk (online)> register
//	mk (online)> add Went for a walk
//	mk (online)> list
//	mk (online)> fav 3f2a
//	mk (online)> more
//
// Moments are addressed by their clientId or any unique prefix of it.
package cli
