// Package prefs is the session preferences collaborator: per-session
// settings persisted behind one interface with a local file-backed and a
// database-backed implementation.
package prefs

// Preferences is what a session persists across visits.
type Preferences struct {
	Theme          string            `json:"theme"`
	QualityLevel   int               `json:"quality_level"`
	DefaultTargets map[string]string `json:"default_targets,omitempty"` // category -> extension
}

// DefaultPreferences is what a new session starts from.
func DefaultPreferences() Preferences {
	return Preferences{Theme: "system", QualityLevel: 80}
}

// Patch shallow-merges into stored preferences; nil fields are untouched.
type Patch struct {
	Theme          *string           `json:"theme,omitempty"`
	QualityLevel   *int              `json:"quality_level,omitempty"`
	DefaultTargets map[string]string `json:"default_targets,omitempty"`
}

func (p Patch) apply(base Preferences) Preferences {
	if p.Theme != nil {
		base.Theme = *p.Theme
	}
	if p.QualityLevel != nil {
		base.QualityLevel = *p.QualityLevel
	}
	if p.DefaultTargets != nil {
		if base.DefaultTargets == nil {
			base.DefaultTargets = map[string]string{}
		}
		for k, v := range p.DefaultTargets {
			base.DefaultTargets[k] = v
		}
	}
	return base
}

// Store persists per-session preferences. Get on an unknown session returns
// the defaults. Subscribe registers a callback fired after every Update for
// that session; the returned function unsubscribes.
type Store interface {
	Get(sessionID string) (Preferences, error)
	Update(sessionID string, patch Patch) error
	Subscribe(sessionID string, fn func(Preferences)) (unsubscribe func())
}
