// Package app wires snippetide together.
//
// A Booter builds an Application once: it creates the application
// directories, starts the event bus, loads plugins and connects the run
// controller that hands run.requested events to the Runner. Unboot tears
// everything down and wipes the temporary directory.
//
//	booter := app.NewBooter()
//	application, err := booter.Boot(app.BootOptions{Config: cfg})
//	if err != nil {
//	    return err
//	}
//	defer booter.Unboot()
//
// Collaborators (bus, plugin manager, logger) may be injected through
// BootOptions; anything left nil is built from the configuration.
package app
