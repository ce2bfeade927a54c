package bot

import (
	"context"
	"sort"
	"strings"
)

// HandlerFunc handles one update
type HandlerFunc func(c *Context) error

// Middleware wraps a handler
type Middleware func(next HandlerFunc) HandlerFunc

type action struct {
	prefix  string
	handler HandlerFunc
}

// Router dispatches updates to command, action and text handlers
type Router struct {
	middleware []Middleware
	commands   map[string]HandlerFunc
	actions    []action
	text       HandlerFunc
	fallback   HandlerFunc
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{commands: make(map[string]HandlerFunc)}
}

// Use appends middleware; the first added runs outermost
func (r *Router) Use(mw ...Middleware) {
	r.middleware = append(r.middleware, mw...)
}

// Command registers a handler for /name
func (r *Router) Command(name string, h HandlerFunc) {
	r.commands[strings.ToLower(strings.TrimPrefix(name, "/"))] = h
}

// Action registers a handler for callback data starting with prefix
func (r *Router) Action(prefix string, h HandlerFunc) {
	r.actions = append(r.actions, action{prefix: prefix, handler: h})
	sort.SliceStable(r.actions, func(i, j int) bool {
		return len(r.actions[i].prefix) > len(r.actions[j].prefix)
	})
}

// OnText registers the handler for plain text
func (r *Router) OnText(h HandlerFunc) {
	r.text = h
}

// OnUnknown registers the handler for unknown commands and actions
func (r *Router) OnUnknown(h HandlerFunc) {
	r.fallback = h
}

// HasCommand reports whether /name is registered
func (r *Router) HasCommand(name string) bool {
	_, ok := r.commands[strings.ToLower(name)]
	return ok
}

// Dispatch runs one update through the middleware chain
func (r *Router) Dispatch(ctx context.Context, upd *Update, sender Sender) error {
	return r.Handle(NewContext(ctx, upd, sender))
}

// Handle runs an already-built context through the middleware chain
func (r *Router) Handle(c *Context) error {
	h := r.route
	for i := len(r.middleware) - 1; i >= 0; i-- {
		h = r.middleware[i](h)
	}
	return h(c)
}

// Kind classifies an update for metrics and logs
func (r *Router) Kind(upd *Update) string {
	switch {
	case upd.IsCallback():
		return "action"
	case strings.HasPrefix(strings.TrimSpace(upd.Text), "/"):
		return "command"
	default:
		return "text"
	}
}

func (r *Router) route(c *Context) error {
	upd := c.Update
	if upd.IsCallback() {
		for _, a := range r.actions {
			if strings.HasPrefix(upd.CallbackData, a.prefix) {
				c.args = strings.Split(strings.TrimPrefix(upd.CallbackData, a.prefix), ":")
				return a.handler(c)
			}
		}
		return r.unknown(c)
	}

	if name, args, ok := upd.Command(); ok {
		if h, found := r.commands[name]; found {
			c.args = args
			return h(c)
		}
		return r.unknown(c)
	}

	if r.text != nil {
		return r.text(c)
	}
	return nil
}

func (r *Router) unknown(c *Context) error {
	if r.fallback != nil {
		return r.fallback(c)
	}
	return nil
}
