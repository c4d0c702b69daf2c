// Package marionette probes the browser's Marionette automation endpoint.
//
// A browser started with -marionette listens on a local TCP port (2828
// unless the profile says otherwise). The external test harness connects
// to that port, so a harness started before the listener is up fails to
// connect. The Probe lets the test command wait for the listener first.
//
// Probing is opt-in. By default the test command starts the harness right
// after spawning the browser and leaves the harness to cope with the race.
package marionette
