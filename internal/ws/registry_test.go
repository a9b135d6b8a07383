package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"CommuneChat/server/internal/models"
)

func bareClient(id string) *Client {
	return NewClient(id, &models.User{ID: 1, Username: "u"}, nil)
}

func TestRegistryJoinLeave(t *testing.T) {
	r := NewRoomRegistry()
	c := bareClient("c1")

	assert.False(t, r.IsJoined(c, 1))

	r.Join(c, 1)
	r.Join(c, 2)
	assert.True(t, r.IsJoined(c, 1))
	assert.True(t, r.IsJoined(c, 2))
	assert.Equal(t, 1, r.Subscribers(1))

	r.Leave(c, 1)
	assert.False(t, r.IsJoined(c, 1))
	assert.True(t, r.IsJoined(c, 2))
	assert.Equal(t, 0, r.Subscribers(1))
}

func TestRegistryJoinIsIdempotent(t *testing.T) {
	r := NewRoomRegistry()
	c := bareClient("c1")

	r.Join(c, 5)
	r.Join(c, 5)

	assert.Equal(t, 1, r.Subscribers(5))
}

func TestRegistryLeaveAll(t *testing.T) {
	r := NewRoomRegistry()
	c1 := bareClient("c1")
	c2 := bareClient("c2")

	r.Join(c1, 1)
	r.Join(c1, 2)
	r.Join(c2, 1)

	r.LeaveAll(c1)

	assert.False(t, r.IsJoined(c1, 1))
	assert.False(t, r.IsJoined(c1, 2))
	assert.True(t, r.IsJoined(c2, 1))
	assert.Equal(t, 1, r.Subscribers(1))
	assert.Equal(t, 0, r.Subscribers(2))
}

func TestRegistryLeaveWithoutJoinIsNoop(t *testing.T) {
	r := NewRoomRegistry()
	c := bareClient("c1")

	// Leaving a room never requires a prior subscription.
	r.Leave(c, 99)
	assert.Equal(t, 0, r.Subscribers(99))
}

func TestRegistrySameUserTwoConnections(t *testing.T) {
	r := NewRoomRegistry()
	user := &models.User{ID: 3, Username: "two-tabs"}
	first := NewClient("conn-a", user, nil)
	second := NewClient("conn-b", user, nil)

	r.Join(first, 1)
	r.Join(second, 1)
	assert.Equal(t, 2, r.Subscribers(1))

	// Sessions are independent: dropping one leaves the other joined.
	r.LeaveAll(first)
	assert.Equal(t, 1, r.Subscribers(1))
	assert.True(t, r.IsJoined(second, 1))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRoomRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := bareClient("c")
			r.Join(c, n%4)
			r.IsJoined(c, n%4)
			r.LeaveAll(c)
		}(i)
	}
	wg.Wait()

	for room := 0; room < 4; room++ {
		assert.Equal(t, 0, r.Subscribers(room))
	}
}
