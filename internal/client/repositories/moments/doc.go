// Package moments provides the client-side persistence layer for moments.
//
// # Overview
//
// Store is the durable keyed storage contract (CRUD plus filtered queries).
// SQLiteStore implements it over a dbx.DBTX, so the same code runs on a
// *sql.DB or inside a *sql.Tx.
//
// Repository sits on top of a Store and is the only writer the rest of the
// client uses. It serializes read-modify-write per clientId, runs each
// write in a transaction, and publishes a Change after every committed
// mutation.
//
// Typical Usage
//
//	repo := moments.NewRepository(db, log)
//	_ = repo.Create(ctx, &m)
//	m, _ = repo.Update(ctx, m.ClientID, func(m *models.Moment) error {
//	    m.IsFavorite = true
//	    return nil
//	})
//	ch, cancel := repo.Subscribe(16)
//	defer cancel()
package moments
