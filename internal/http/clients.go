package http

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gastos/internal/cache"
	"gastos/internal/gateway"
	applog "gastos/internal/log"
	"gastos/internal/remote"
	"gastos/internal/viewstate"
)

// client is everything one signed-in caller owns: its session gateway and
// the two view-states driven through it.
type client struct {
	id       string
	gw       *gateway.Sessions
	session  *viewstate.Session
	expenses *viewstate.Expenses
}

func newClient(svc remote.Service, loc *time.Location, now time.Time) *client {
	sessions := gateway.NewSessions(svc, svc)
	expenses := gateway.NewExpenses(sessions, svc, loc)
	return &client{
		id:       uuid.NewString(),
		gw:       sessions,
		session:  viewstate.NewSession(sessions),
		expenses: viewstate.NewExpenses(expenses, now.In(loc)),
	}
}

// close tears the view down and signs the gateway out. It goes to the
// gateway directly so a command still in flight cannot keep the session open.
func (c *client) close() {
	c.expenses.Close()
	c.gw.SignOut()
}

// registry holds the signed-in clients. Entries slide on every request and
// are signed out when they expire, fall out of the LRU or are removed.
type registry struct {
	clients *cache.LRUCache[*client]
}

func newRegistry(maxSessions int, ttl time.Duration) *registry {
	clients := cache.NewLRUCache[*client](maxSessions, ttl)
	clients.OnEvict(func(key string, c *client, reason cache.EvictReason) {
		slog.Info("Client session closed",
			applog.FieldComponent, applog.ComponentHTTP,
			applog.FieldSessionID, key,
			"reason", reason.String())
		c.close()
	})
	return &registry{clients: clients}
}

func (r *registry) add(c *client) { r.clients.Set(c.id, c) }

func (r *registry) get(id string) (*client, bool) { return r.clients.Get(id) }

func (r *registry) remove(id string) { r.clients.Delete(id) }

func (r *registry) size() int { return r.clients.Size() }

// closeAll signs every client out.
func (r *registry) closeAll() { r.clients.Purge() }
