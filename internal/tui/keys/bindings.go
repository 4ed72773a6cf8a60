package keys

import "github.com/gdamore/tcell/v2"

// Action represents a keybinding action.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
	Visible     bool
}

func (a *Action) match(k tcell.Key, r rune) bool {
	if a.Key != tcell.KeyRune {
		return k == a.Key
	}
	return k == tcell.KeyRune && r == a.Rune
}

// Registry holds keybindings by scope in registration order.
type Registry struct {
	global []*Action
	views  map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{views: make(map[string][]*Action)}
}

// AddGlobal registers a keybinding active on every page.
func (r *Registry) AddGlobal(action *Action) {
	r.global = append(r.global, action)
}

// AddView registers a keybinding for one page.
func (r *Registry) AddView(view string, action *Action) {
	r.views[view] = append(r.views[view], action)
}

// Hints returns visible descriptions for a page, page bindings first.
func (r *Registry) Hints(view string) []string {
	var hints []string
	for _, a := range r.views[view] {
		if a.Visible {
			hints = append(hints, a.Description)
		}
	}
	for _, a := range r.global {
		if a.Visible {
			hints = append(hints, a.Description)
		}
	}
	return hints
}

// HandleEvent dispatches a key event to the first matching action. Page
// bindings shadow global ones. Returns true if a handler ran.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	return r.handle(view, ev.Key(), ev.Rune())
}

func (r *Registry) handle(view string, k tcell.Key, ch rune) bool {
	for _, a := range r.views[view] {
		if a.match(k, ch) {
			a.Handler()
			return true
		}
	}
	for _, a := range r.global {
		if a.match(k, ch) {
			a.Handler()
			return true
		}
	}
	return false
}
