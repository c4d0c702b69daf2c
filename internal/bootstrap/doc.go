// Package bootstrap is the lifecycle shim of a bootstrapped study add-on.
//
// The extension host calls the shim on install, startup, shutdown and
// uninstall. The shim itself holds no study logic: on startup it loads the
// study runtime and hands it the static StudyConfig, on shutdown it waits
// for the runtime to shut down and then releases it.
//
// Transitions are computed by the pure function Next, which returns the
// effects a trigger causes. Stub applies those effects against a Loader
// and the Runtime it provides.
package bootstrap
