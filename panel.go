package peerwatch

import (
	"fmt"
	"log/slog"
	"sync"
)

// PanelKey identifies one navigation panel of the console page.
type PanelKey string

const (
	PanelHome        PanelKey = "nav-1"
	PanelDevices     PanelKey = "nav-2"
	PanelUsers       PanelKey = "nav-3"
	PanelAddressBook PanelKey = "nav-4"
)

var panelTitles = map[PanelKey]string{
	PanelHome:        "Home",
	PanelDevices:     "Devices",
	PanelUsers:       "Users",
	PanelAddressBook: "Address Book",
}

// Valid reports whether k is one of the known panels.
func (k PanelKey) Valid() bool {
	_, ok := panelTitles[k]
	return ok
}

// Title returns the panel's display title, or the raw key for unknown panels.
func (k PanelKey) Title() string {
	if title, ok := panelTitles[k]; ok {
		return title
	}
	return string(k)
}

// ParsePanelKey validates s as a [PanelKey].
func ParsePanelKey(s string) (PanelKey, error) {
	k := PanelKey(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown panel %q", s)
	}
	return k, nil
}

type panelSubscriber struct {
	id uint64
	fn func(PanelKey)
}

// Navigator tracks the active panel and notifies subscribers on every
// activation, including re-activation of the panel already shown.
//
// Subscribers run synchronously, in subscription order, on the goroutine
// that called [Navigator.Activate]. Activations are serialized, so every
// subscriber observes them in the same order. A subscriber must not call
// Activate. Panics in subscribers are recovered and logged.
type Navigator struct {
	dispatchMu sync.Mutex

	mu     sync.Mutex
	active PanelKey
	subs   []panelSubscriber
	nextID uint64

	logger *slog.Logger
}

// NewNavigator creates a [Navigator] with initial as the remembered panel.
// No subscriber is notified until the first [Navigator.Activate].
func NewNavigator(initial PanelKey, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{
		active: initial,
		logger: logger,
	}
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is idempotent.
func (n *Navigator) Subscribe(fn func(PanelKey)) (unsubscribe func()) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, panelSubscriber{id: id, fn: fn})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i, sub := range n.subs {
				if sub.id == id {
					n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Activate makes key the active panel and notifies every subscriber.
func (n *Navigator) Activate(key PanelKey) {
	n.dispatchMu.Lock()
	defer n.dispatchMu.Unlock()

	n.mu.Lock()
	n.active = key
	subs := make([]panelSubscriber, len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	n.logger.Debug("panel activated", "panel", string(key))

	for _, sub := range subs {
		n.notify(sub.fn, key)
	}
}

// Active returns the last activated panel.
func (n *Navigator) Active() PanelKey {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

func (n *Navigator) notify(fn func(PanelKey), key PanelKey) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("panel subscriber panicked",
				"panic", r,
				"panel", string(key),
			)
		}
	}()
	fn(key)
}
