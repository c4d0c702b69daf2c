package profile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/shinji-kodama/shield/internal/addon"
	"github.com/shinji-kodama/shield/internal/model"
)

// dirPrefix names every profile directory shield creates.
const dirPrefix = "shield-profile-"

// Configurator creates profiles on a filesystem.
type Configurator struct {
	fs      afero.Fs
	baseDir string
	newID   func() string
	logger  logrus.FieldLogger
}

// NewConfigurator returns a Configurator that creates profiles under
// baseDir on fs. An empty baseDir means the OS temporary directory.
func NewConfigurator(fs afero.Fs, baseDir string, logger logrus.FieldLogger) *Configurator {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Configurator{
		fs:      fs,
		baseDir: baseDir,
		newID:   uuid.NewString,
		logger:  logger,
	}
}

// Profile is a configured profile directory. It is owned by one launch.
type Profile struct {
	fs    afero.Fs
	dir   string
	addon *addon.Manifest
	path  string
	prefs Preferences
}

// Path returns the profile directory.
func (p *Profile) Path() string {
	return p.dir
}

// Addon returns the manifest of the installed extension.
func (p *Profile) Addon() *addon.Manifest {
	return p.addon
}

// InstalledPath returns where the extension was copied inside the profile.
func (p *Profile) InstalledPath() string {
	return p.path
}

// Preferences returns a copy of the preferences written to the profile.
func (p *Profile) Preferences() Preferences {
	return p.prefs.Clone()
}

// Remove deletes the profile directory.
func (p *Profile) Remove() error {
	return p.fs.RemoveAll(p.dir)
}

// Configure creates a new profile with the extension at addonPath
// installed and prefs written to user.js.
//
// It returns only after the extension has been copied and user.js has been
// synced. Any failure is a CONFIGURATION_ERROR and leaves nothing behind.
func (c *Configurator) Configure(ctx context.Context, addonPath string, prefs Preferences) (_ *Profile, rerr error) {
	if err := c.ctxErr(ctx); err != nil {
		return nil, err
	}
	if err := prefs.Validate(); err != nil {
		return nil, model.ConfigurationError("invalid profile preferences", err)
	}

	manifest, err := addon.Load(c.fs, addonPath)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(c.baseDir, dirPrefix+c.newID())
	if err := c.fs.MkdirAll(dir, 0o700); err != nil {
		return nil, model.ConfigurationError(fmt.Sprintf("failed to create profile directory %s", dir), err)
	}
	defer func() {
		if rerr != nil {
			_ = c.fs.RemoveAll(dir)
		}
	}()

	log := c.logger.WithFields(logrus.Fields{"profile": dir, "addon": manifest.ID})
	log.Debug("Created profile directory")

	installed, err := addon.Install(c.fs, manifest, filepath.Join(dir, "extensions"))
	if err != nil {
		return nil, model.ConfigurationError(fmt.Sprintf("failed to install addon %s", manifest.ID), err)
	}
	log.WithField("installed", installed).Debug("Installed extension")

	if err := c.ctxErr(ctx); err != nil {
		return nil, err
	}

	if err := writePreferences(c.fs, filepath.Join(dir, UserPrefsFile), prefs); err != nil {
		return nil, model.ConfigurationError("failed to write profile preferences", err)
	}
	log.WithField("prefs", prefs.Names()).Debug("Wrote preferences")

	return &Profile{
		fs:    c.fs,
		dir:   dir,
		addon: manifest,
		path:  installed,
		prefs: prefs.Clone(),
	}, nil
}

func (c *Configurator) ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return model.ConfigurationError("profile configuration cancelled", err)
	}
	return nil
}

// writePreferences replaces path with prefs and syncs it.
func writePreferences(fs afero.Fs, path string, prefs Preferences) error {
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := prefs.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadPreferences parses the user.js of the profile directory dir.
func ReadPreferences(fs afero.Fs, dir string) (Preferences, error) {
	f, err := fs.Open(filepath.Join(dir, UserPrefsFile))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParsePreferences(f)
}
