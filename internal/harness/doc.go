// Package harness runs the external add-on test harness.
//
// The harness is a separate program, runtests.py next to the shield
// executable by default, that drives the browser over Marionette and
// exercises the add-on's tests directory. Runner starts it, waits for it to
// finish and hands back everything it wrote to stdout and stderr.
package harness
