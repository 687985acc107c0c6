package earlyboot

import (
	"errors"
	"net/http"
	"sync/atomic"
)

// ErrAlreadyRegistered is returned when a second hook is registered on a Point.
var ErrAlreadyRegistered = errors.New("early boot hook already registered")

// Hook runs before the site handler. It either serves the response or calls next.
type Hook interface {
	ServeEarly(w http.ResponseWriter, r *http.Request, next http.Handler)
}

// HookFunc adapts a function to Hook.
type HookFunc func(w http.ResponseWriter, r *http.Request, next http.Handler)

func (f HookFunc) ServeEarly(w http.ResponseWriter, r *http.Request, next http.Handler) {
	f(w, r, next)
}

type hookBox struct{ hook Hook }

// Point is the site's single pre-dispatch extension point.
// A hook may be registered once, before or after the server starts.
type Point struct {
	hook atomic.Pointer[hookBox]
}

func NewPoint() *Point {
	return &Point{}
}

// Register installs h. Only the first call succeeds.
func (p *Point) Register(h Hook) error {
	if h == nil {
		return errors.New("nil hook")
	}
	if !p.hook.CompareAndSwap(nil, &hookBox{hook: h}) {
		return ErrAlreadyRegistered
	}
	return nil
}

// Registered reports whether a hook is installed.
func (p *Point) Registered() bool {
	return p.hook.Load() != nil
}

// Wrap runs the registered hook, if any, in front of next.
func (p *Point) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if box := p.hook.Load(); box != nil {
			box.hook.ServeEarly(w, r, next)
			return
		}
		next.ServeHTTP(w, r)
	})
}
