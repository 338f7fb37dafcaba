// Package inventory persists what the bridge knows about its things.
//
// Four tables back it (see migrations/):
//
//	things             bridges and devices with their last status
//	thing_properties   runtime properties (firmwareVersion, serialPort)
//	channel_state      last value published per channel
//	discovery_results  devices found by scans, awaiting configuration
//
// The openwebnet service writes here from its status, state and discovery
// callbacks; the HTTP API reads it to answer queries after a restart,
// before the gateways have reported. Nothing here is authoritative device
// state.
//
// # Usage
//
//	db, _ := database.Open(cfg.Database)
//	_ = db.Migrate(ctx, migrations.FS)
//	repo := inventory.NewSQLiteRepository(db.DB)
//	things, err := repo.ListThings(ctx)
package inventory
