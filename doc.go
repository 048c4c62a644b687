// Package schedoscope is a library for driving materialized-view
// transformations against pluggable execution backends (Hive-style
// query engines, filesystem operations, Redis-backed writers) with
// automatic per-backend retry pacing.
//
// Schedoscope is a library, not a service. Import it, register a
// driver.Registry, and dispatch transformations as ordinary Go calls.
//
// # Quick Start
//
//	registry := driver.NewRegistry()
//	registry.Register("filesystem", func() (driver.Driver, error) {
//	    return driver.NewFilesystem(nil), nil
//	})
//
//	d, err := schedoscope.New(
//	    schedoscope.WithDriverRegistry(registry),
//	    schedoscope.WithRunStore(memorystore.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := d.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer d.Stop(context.Background())
//
//	reply, err := d.Dispatch(ctx, transform.NewFilesystemTransformation(nil))
//
// # Architecture
//
// Every Worker owns exactly one Driver and runs its own single-threaded
// event loop; a Pool owns a fixed group of Workers for one
// transformation type and load-balances by smallest mailbox; the
// Dispatcher owns every Pool, routes commands to the right one, and
// runs the backoff-paced restart loop that reactivates a Worker after
// it reboots.
package schedoscope
