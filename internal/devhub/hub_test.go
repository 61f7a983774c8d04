package devhub

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(client *Client, timeout time.Duration) ([]byte, bool) {
	select {
	case data, ok := <-client.send:
		return data, ok
	case <-time.After(timeout):
		return nil, false
	}
}

func pending(client *Client) int {
	return len(client.send)
}

func TestHubClientManagement(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	c1 := NewClient(hub, nil, Identity{UserID: "u1"})
	c2 := NewClient(hub, nil, Identity{UserID: "u2"})
	hub.Register(c1)
	hub.Register(c2)
	require.Equal(t, 2, hub.ClientCount())
	assert.Equal(t, 1, hub.GroupSize(UserGroup("u1")))

	assert.Equal(t, 1, hub.Broadcast([]byte("hello"), c1))
	data, ok := receive(c2, 100*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "hello", string(data))
	assert.Zero(t, pending(c1), "the sender is excluded")

	hub.Unregister(c1)
	assert.Equal(t, 1, hub.ClientCount())
	assert.Zero(t, hub.GroupSize(UserGroup("u1")))
	assert.True(t, c1.IsClosed())

	// Sending to a closed client is a no-op
	c1.Send([]byte("late"))
}

func TestHubGroups(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	c1 := NewClient(hub, nil, Identity{UserID: "u1"})
	c2 := NewClient(hub, nil, Identity{UserID: "u2"})
	hub.Register(c1)
	hub.Register(c2)

	hub.Join(c1, TaskGroup("T1"))
	hub.Join(c1, TaskGroup("T1"))
	hub.Join(c2, TaskGroup("T1"))
	assert.Equal(t, 2, hub.GroupSize(TaskGroup("T1")))
	assert.Equal(t, TaskGroup("T1"), EntityGroup("task", "T1"))

	assert.Equal(t, 2, hub.SendToGroup(TaskGroup("T1"), []byte("x"), nil))
	assert.Equal(t, 0, hub.SendToGroup(TaskGroup("T2"), []byte("x"), nil))

	hub.Leave(c2, TaskGroup("T1"))
	hub.Leave(c2, TaskGroup("T1"))
	assert.Equal(t, 1, hub.GroupSize(TaskGroup("T1")))
}

func TestSlowClientIsClosed(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	c := NewClient(hub, nil, Identity{UserID: "u1"})
	hub.Register(c)

	for i := 0; i < cap(c.send)+1; i++ {
		c.Send([]byte("x"))
	}
	assert.True(t, c.IsClosed())
}

func TestGroupDeliveryProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("group sends reach exactly the members other than the sender", prop.ForAll(
		func(membership []bool, sender int) bool {
			hub := NewHub()
			defer hub.Close()

			clients := make([]*Client, len(membership))
			members := 0
			for i, member := range membership {
				clients[i] = NewClient(hub, nil, Identity{UserID: fmt.Sprintf("u%d", i)})
				hub.Register(clients[i])
				if member {
					hub.Join(clients[i], ProjectGroup("P1"))
					members++
				}
			}

			var except *Client
			if len(clients) > 0 {
				except = clients[sender%len(clients)]
				if membership[sender%len(clients)] {
					members--
				}
			}

			if hub.SendToGroup(ProjectGroup("P1"), []byte("evt"), except) != members {
				return false
			}
			for i, c := range clients {
				want := 0
				if membership[i] && c != except {
					want = 1
				}
				if pending(c) != want {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(8, gen.Bool()),
		gen.IntRange(0, 7),
	))

	properties.TestingRun(t)
}
