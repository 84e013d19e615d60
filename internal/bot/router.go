package bot

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/mood-bot/internal/bot/handlers"
)

// Router picks a handler for each update and runs it through the middleware chain. Text that is
// not a known command goes to the default handler; a callback without a matching prefix is
// acknowledged and dropped.
type Router struct {
	mu         sync.RWMutex
	commands   map[string]handlers.Handler
	callbacks  map[string]handlers.CallbackHandler
	prefixes   []string // longest first
	fallback   handlers.Handler
	middleware []handlers.Middleware
	log        *slog.Logger
}

func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		commands:  make(map[string]handlers.Handler),
		callbacks: make(map[string]handlers.CallbackHandler),
		log:       log,
	}
}

// RegisterCommand binds cmd, e.g. "/start". Matching ignores case and a trailing @botname.
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(cmd)] = h
}

// RegisterCallback binds callback data starting with prefix. The longest matching prefix wins.
func (r *Router) RegisterCallback(prefix string, h handlers.CallbackHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.callbacks[prefix]; !ok {
		r.prefixes = append(r.prefixes, prefix)
		sort.SliceStable(r.prefixes, func(i, j int) bool { return len(r.prefixes[i]) > len(r.prefixes[j]) })
	}
	r.callbacks[prefix] = h
}

// Use appends mw; the first one registered runs outermost.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
}

func (r *Router) SetDefault(h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}

	h, chain := r.resolve(c)
	if h == nil {
		if cb := c.Callback(); cb != nil {
			r.log.Info("callback without handler", slog.String("data", cb.Data))
			return c.Respond()
		}
		return nil
	}

	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h(c)
}

func (r *Router) resolve(c telebot.Context) (handlers.Handler, []handlers.Middleware) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := append([]handlers.Middleware(nil), r.middleware...)

	if cb := c.Callback(); cb != nil {
		for _, prefix := range r.prefixes {
			if strings.HasPrefix(cb.Data, prefix) {
				return handlers.Handler(r.callbacks[prefix]), chain
			}
		}
		return nil, chain
	}

	if h, ok := r.commands[commandOf(c.Text())]; ok {
		return h, chain
	}
	return r.fallback, chain
}

// commandOf extracts "/cmd" from "/cmd@botname args"; plain text yields "".
func commandOf(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}

	cmd := fields[0]
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}
