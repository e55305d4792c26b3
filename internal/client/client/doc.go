// Package client contains the remote side of the momentkeeper client.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract for the moment service (see the Client
//     interface): registration, liveness, moment create/enrich/lookup/
//     update/archive/restore/purge and the two paginated listings.
//  2. A JSON-over-HTTP implementation (see HTTPClient) that attaches the
//     application and user tokens and decodes the error envelope into
//     *APIError values.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) for the
//     client SQLite database.
//
// # Error Handling
//
// Transport failures wrap ErrUnavailable. Non-2xx responses are returned
// as *APIError; a 401 also matches ErrUnauthorized with errors.Is.
//
// HTTPClient is safe for concurrent use. All operations honor context
// cancellation.
package client
