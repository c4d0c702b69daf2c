package bootstrap

import "fmt"

// Reason tells the shim why a lifecycle call happened. Values match the
// host's bootstrap reason constants.
type Reason int

const (
	// AppStartup means the browser is starting up.
	AppStartup Reason = 1
	// AppShutdown means the browser is shutting down.
	AppShutdown Reason = 2
	// AddonEnable means the user enabled the add-on.
	AddonEnable Reason = 3
	// AddonDisable means the user disabled the add-on.
	AddonDisable Reason = 4
	// AddonInstall means the add-on is being installed.
	AddonInstall Reason = 5
	// AddonUninstall means the add-on is being removed.
	AddonUninstall Reason = 6
	// AddonUpgrade means a newer version is replacing this one.
	AddonUpgrade Reason = 7
	// AddonDowngrade means an older version is replacing this one.
	AddonDowngrade Reason = 8
)

var reasonNames = map[Reason]string{
	AppStartup:     "APP_STARTUP",
	AppShutdown:    "APP_SHUTDOWN",
	AddonEnable:    "ADDON_ENABLE",
	AddonDisable:   "ADDON_DISABLE",
	AddonInstall:   "ADDON_INSTALL",
	AddonUninstall: "ADDON_UNINSTALL",
	AddonUpgrade:   "ADDON_UPGRADE",
	AddonDowngrade: "ADDON_DOWNGRADE",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}
