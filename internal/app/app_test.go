package app

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
)

type nopConn struct{}

func (nopConn) TrySend(protocol.Message) error { return nil }
func (nopConn) Close()                         {}

func TestRoomManagerCreateOnce(t *testing.T) {
	m := NewRoomManager()

	room, created, res := m.Create("abcd", "a", "fp", nopConn{})
	require.True(t, created)
	assert.Equal(t, 1, res.SendTo)

	again, created, _ := m.Create("abcd", "b", "fp-b", nopConn{})
	assert.False(t, created)
	assert.Same(t, room, again)
	assert.Equal(t, 1, room.MemberCount())
}

func TestRoomManagerConcurrentCreate(t *testing.T) {
	m := NewRoomManager()

	var wg sync.WaitGroup
	var mu sync.Mutex
	creations := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, created, _ := m.Create("race", domain.MemberID(fmt.Sprintf("m%d", i)), "", nopConn{})
			if created {
				mu.Lock()
				creations++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, creations)
	assert.Equal(t, 1, m.Len())
}

func TestRoomManagerDeleteOnlyMatchingRoom(t *testing.T) {
	m := NewRoomManager()
	old, _, _ := m.Create("abcd", "a", "", nopConn{})
	_, empty, _ := old.Remove("a")
	require.True(t, empty)

	_, ok := m.Get("abcd")
	assert.False(t, ok, "closed room must not be joinable")

	fresh, created, _ := m.Create("abcd", "b", "", nopConn{})
	require.True(t, created)
	assert.NotSame(t, old, fresh)

	m.Delete("abcd", old)
	got, ok := m.Get("abcd")
	require.True(t, ok)
	assert.Same(t, fresh, got)

	m.Delete("abcd", fresh)
	assert.Equal(t, 0, m.Len())
}

func TestRoomManagerList(t *testing.T) {
	m := NewRoomManager()
	base := time.Unix(1700000000, 0)
	m.now = func() time.Time { return base }
	m.Create("room-b", "b", "", nopConn{})
	m.now = func() time.Time { return base.Add(-time.Minute) }
	m.Create("room-a", "a", "", nopConn{})

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, domain.RoomID("room-a"), list[0].RoomID)
	assert.Equal(t, domain.RoomID("room-b"), list[1].RoomID)
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	canceled := false
	r.Bind("a", nopConn{}, "cookie-fp", func() { canceled = true })

	assert.Equal(t, domain.Fingerprint("cookie-fp"), r.Fingerprint("a"))
	r.SetFingerprint("a", "")
	assert.Equal(t, domain.Fingerprint("cookie-fp"), r.Fingerprint("a"))
	r.SetFingerprint("a", "fp_1")
	assert.Equal(t, domain.Fingerprint("fp_1"), r.Fingerprint("a"))

	_, ok := r.RoomOf("a")
	assert.False(t, ok)
	require.True(t, r.UpdateRoom("a", "abcd"))
	room, ok := r.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("abcd"), room)

	r.RemoveRoom("a", "other")
	_, ok = r.RoomOf("a")
	assert.True(t, ok, "removing a different room keeps the association")
	r.RemoveRoom("a", "abcd")
	_, ok = r.RoomOf("a")
	assert.False(t, ok)

	assert.True(t, r.Cancel("a"))
	assert.True(t, canceled)

	r.Unbind("a")
	_, ok = r.Conn("a")
	assert.False(t, ok)
	assert.Empty(t, r.Fingerprint("a"))
	assert.False(t, r.UpdateRoom("a", "abcd"))
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRoomRateLimiter(2, 10*time.Second)
	now := time.Unix(1700000000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys are independent")

	now = now.Add(11 * time.Second)
	assert.True(t, rl.Allow("a"))

	rl.Forget("b")
	assert.True(t, rl.Allow("b"))
}

func TestSimplePolicyKicks(t *testing.T) {
	assert.Equal(t, KickMember, SimplePolicy{}.OnBackPressure("abcd", "a"))
}
