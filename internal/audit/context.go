package audit

import (
	"runtime"

	"github.com/secureclaw/secureclaw/internal/config"
	"github.com/secureclaw/secureclaw/internal/fsys"
)

// Context binds an audit to one state directory. It is built once and not
// modified while checks run.
type Context struct {
	StateDir string
	Config   *config.OpenClaw

	// ConfigErr is set when openclaw.json exists but could not be loaded.
	// Config is empty in that case.
	ConfigErr error

	Platform string
	FS       fsys.FS
}

// ContextOption configures NewContext.
type ContextOption func(*contextOptions)

type contextOptions struct {
	fs     fsys.FS
	config *config.OpenClaw
}

// WithFS sets the filesystem capability set. Defaults to the local disk.
func WithFS(f fsys.FS) ContextOption {
	return func(o *contextOptions) { o.fs = f }
}

// WithConfig supplies an already loaded configuration instead of reading
// openclaw.json.
func WithConfig(cfg *config.OpenClaw) ContextOption {
	return func(o *contextOptions) { o.config = cfg }
}

// NewContext builds a Context for stateDir. A missing or broken openclaw.json
// never fails: the config is empty and ConfigErr records any load failure.
func NewContext(stateDir string, opts ...ContextOption) *Context {
	o := contextOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.fs == nil {
		o.fs = fsys.OS()
	}

	actx := &Context{
		StateDir: stateDir,
		Platform: runtime.GOOS + "-" + runtime.GOARCH,
		FS:       o.fs,
	}
	if o.config != nil {
		actx.Config = o.config
		return actx
	}
	actx.Config, actx.ConfigErr = config.LoadOpenClaw(o.fs, stateDir)
	return actx
}
