package peerwatch

import (
	"sync"
	"testing"
)

func TestPanelKey(t *testing.T) {
	tests := []struct {
		key   PanelKey
		valid bool
		title string
	}{
		{PanelHome, true, "Home"},
		{PanelDevices, true, "Devices"},
		{PanelUsers, true, "Users"},
		{PanelAddressBook, true, "Address Book"},
		{"nav-5", false, "nav-5"},
		{"", false, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			if got := tt.key.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
			if got := tt.key.Title(); got != tt.title {
				t.Errorf("Title() = %q, want %q", got, tt.title)
			}
		})
	}
}

func TestParsePanelKey(t *testing.T) {
	if k, err := ParsePanelKey("nav-2"); err != nil || k != PanelDevices {
		t.Errorf("ParsePanelKey(nav-2) = %v, %v, want %v", k, err, PanelDevices)
	}
	if _, err := ParsePanelKey("devices"); err == nil {
		t.Error("ParsePanelKey(devices) expected error, got nil")
	}
}

func TestNavigator_ActivateNotifiesInOrder(t *testing.T) {
	nav := NewNavigator(PanelHome, testLogger())

	if nav.Active() != PanelHome {
		t.Errorf("Active() = %v, want %v", nav.Active(), PanelHome)
	}

	var got []string
	nav.Subscribe(func(k PanelKey) { got = append(got, "first:"+string(k)) })
	nav.Subscribe(func(k PanelKey) { got = append(got, "second:"+string(k)) })

	nav.Activate(PanelDevices)
	nav.Activate(PanelDevices)

	want := []string{"first:nav-2", "second:nav-2", "first:nav-2", "second:nav-2"}
	if len(got) != len(want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notifications[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if nav.Active() != PanelDevices {
		t.Errorf("Active() = %v, want %v", nav.Active(), PanelDevices)
	}
}

func TestNavigator_Unsubscribe(t *testing.T) {
	nav := NewNavigator(PanelHome, testLogger())

	var calls int
	unsubscribe := nav.Subscribe(func(PanelKey) { calls++ })
	nav.Activate(PanelUsers)

	unsubscribe()
	unsubscribe() // idempotent
	nav.Activate(PanelDevices)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestNavigator_SubscriberPanic(t *testing.T) {
	nav := NewNavigator(PanelHome, testLogger())

	var reached bool
	nav.Subscribe(func(PanelKey) { panic("boom") })
	nav.Subscribe(func(PanelKey) { reached = true })

	nav.Activate(PanelDevices)

	if !reached {
		t.Error("subscriber after a panicking one should still be notified")
	}
}

func TestNavigator_ConcurrentActivate(t *testing.T) {
	nav := NewNavigator(PanelHome, testLogger())

	var mu sync.Mutex
	var last PanelKey
	nav.Subscribe(func(k PanelKey) {
		mu.Lock()
		last = k
		mu.Unlock()
	})

	var wg sync.WaitGroup
	keys := []PanelKey{PanelHome, PanelDevices, PanelUsers, PanelAddressBook}
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(k PanelKey) {
			defer wg.Done()
			nav.Activate(k)
		}(keys[i%len(keys)])
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if last != nav.Active() {
		t.Errorf("last notified = %v, Active() = %v, want equal", last, nav.Active())
	}
}
