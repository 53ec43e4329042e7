package agent

import (
	"os/user"
	"strconv"
	"sync"
)

// Resolver maps numeric IDs to account names.
type Resolver interface {
	UserName(uid int) (string, error)
	GroupName(gid int) (string, error)
}

// SystemResolver resolves IDs through the host account databases and
// remembers successful lookups.
type SystemResolver struct {
	mu     sync.RWMutex
	users  map[int]string
	groups map[int]string
}

func NewSystemResolver() *SystemResolver {
	return &SystemResolver{
		users:  make(map[int]string),
		groups: make(map[int]string),
	}
}

func (r *SystemResolver) UserName(uid int) (string, error) {
	return r.cached(r.users, uid, func(id string) (string, error) {
		u, err := user.LookupId(id)
		if err != nil {
			return "", err
		}
		return u.Username, nil
	})
}

func (r *SystemResolver) GroupName(gid int) (string, error) {
	return r.cached(r.groups, gid, func(id string) (string, error) {
		g, err := user.LookupGroupId(id)
		if err != nil {
			return "", err
		}
		return g.Name, nil
	})
}

func (r *SystemResolver) cached(m map[int]string, id int, lookup func(string) (string, error)) (string, error) {
	r.mu.RLock()
	name, ok := m[id]
	r.mu.RUnlock()
	if ok {
		return name, nil
	}

	name, err := lookup(strconv.Itoa(id))
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	m[id] = name
	r.mu.Unlock()
	return name, nil
}
