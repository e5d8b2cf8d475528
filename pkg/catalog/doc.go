// Package catalog maintains the ports table: the part of the MacPorts port
// catalog that the statistics API consults to tell an unknown port apart from
// a port nobody has installed recently.
//
// The catalog is loaded from a portindex JSON document, either once by the
// import command or continuously by a Watcher that reloads the file when it
// changes:
//
//	store := catalog.NewStore(db, catalog.Options{Logger: logger})
//	if _, err := store.LoadFile(ctx, "portindex.json"); err != nil {
//		return err
//	}
//	go catalog.NewWatcher(store, "portindex.json", 0, logger).Run(ctx)
package catalog
