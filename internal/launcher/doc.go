// Package launcher locates and spawns the browser.
//
// Launch resolves the executable (an explicit path is used as given,
// otherwise a per-platform list of well-known locations is probed), starts
// it against a profile directory, and returns a Process as soon as the OS
// process exists. It does not wait for the browser to finish initializing.
//
// The Process relays the browser's lifecycle: an unexpected exit is sent
// on Errors, and Done is closed once the process has been reaped. The
// launcher never restarts a browser.
package launcher
