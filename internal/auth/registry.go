package auth

import (
	"context"
	"strings"
	"sync"
)

// Seed 描述一条预置身份。
type Seed struct {
	ID          string
	Roles       []string
	Permissions []string
}

// CustodianSeeds 返回默认的两条特权身份。只有它们可以解封主权地址簿。
func CustodianSeeds() []Seed {
	return []Seed{
		{
			ID:          "SergioValle",
			Roles:       []string{"agent-king"},
			Permissions: []string{PermReadSovereignAddresses, PermTriggerAudit},
		},
		{
			ID:          "Automaton",
			Roles:       []string{"ceo"},
			Permissions: []string{PermReadSovereignAddresses, PermTriggerAudit},
		},
	}
}

// StaticRegistry 以内存方式保存身份表，同时实现 Resolver 与 Authorizer。
type StaticRegistry struct {
	mu       sync.RWMutex
	subjects map[string]*Subject
}

// NewStaticRegistry 创建身份注册表并应用种子数据。
func NewStaticRegistry(seeds ...Seed) *StaticRegistry {
	r := &StaticRegistry{subjects: make(map[string]*Subject, len(seeds))}
	for _, seed := range seeds {
		r.Apply(seed)
	}
	return r
}

// Apply 写入或覆盖一条身份。
func (r *StaticRegistry) Apply(seed Seed) {
	id := strings.TrimSpace(seed.ID)
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects[id] = &Subject{
		ID:          id,
		Roles:       append([]string(nil), seed.Roles...),
		Permissions: append([]string(nil), seed.Permissions...),
	}
}

// Resolve 实现 Resolver。未知身份返回 ErrUnknownSubject。
func (r *StaticRegistry) Resolve(_ context.Context, callerID string) (*Subject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subject, ok := r.subjects[strings.TrimSpace(callerID)]
	if !ok {
		return nil, ErrUnknownSubject
	}
	return subject.Clone(), nil
}

// Authorize 实现 Authorizer。鉴权失败返回 ErrPermissionDenied。
func (r *StaticRegistry) Authorize(_ context.Context, subject *Subject, permission string) error {
	if subject == nil {
		return ErrUnknownSubject
	}
	if !subject.HasPermission(permission) {
		return ErrPermissionDenied
	}
	return nil
}
