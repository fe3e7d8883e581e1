package rbac

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/taller-erp/taller/internal/audit"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockState struct {
	permissions map[int64]Permission
	roles       map[int64]Role
	rolePerms   map[int64]map[int64]time.Time
	users       map[int64]User
	overrides   map[int64]map[int64]UserPermission
}

func (s mockState) clone() mockState {
	c := mockState{
		permissions: make(map[int64]Permission, len(s.permissions)),
		roles:       make(map[int64]Role, len(s.roles)),
		rolePerms:   make(map[int64]map[int64]time.Time, len(s.rolePerms)),
		users:       make(map[int64]User, len(s.users)),
		overrides:   make(map[int64]map[int64]UserPermission, len(s.overrides)),
	}
	for k, v := range s.permissions {
		c.permissions[k] = v
	}
	for k, v := range s.roles {
		c.roles[k] = v
	}
	for k, links := range s.rolePerms {
		m := make(map[int64]time.Time, len(links))
		for pk, pv := range links {
			m[pk] = pv
		}
		c.rolePerms[k] = m
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, rows := range s.overrides {
		m := make(map[int64]UserPermission, len(rows))
		for pk, pv := range rows {
			m[pk] = pv
		}
		c.overrides[k] = m
	}
	return c
}

type mockRepository struct {
	mu    sync.Mutex
	state mockState
	inTx  bool

	nextPermID int64
	nextRoleID int64

	// Error injection
	txError              error
	listPermissionsError error
	overridesUnavailable bool
	failAttach           error

	// Call counters
	txCalls            int
	listPermissionCall int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		state: mockState{
			permissions: make(map[int64]Permission),
			roles:       make(map[int64]Role),
			rolePerms:   make(map[int64]map[int64]time.Time),
			users:       make(map[int64]User),
			overrides:   make(map[int64]map[int64]UserPermission),
		},
		nextPermID: 1,
		nextRoleID: 1,
	}
}

// WithTx snapshots state and restores it when fn fails.
func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if m.inTx {
		return fn(ctx, m)
	}
	if m.txError != nil {
		return m.txError
	}
	m.txCalls++
	snapshot := m.state.clone()
	m.inTx = true
	err := fn(ctx, m)
	m.inTx = false
	if err != nil {
		m.state = snapshot
	}
	return err
}

// ----------------------------------------------------------------------------
// seeding helpers
// ----------------------------------------------------------------------------

func (m *mockRepository) addPermission(code, module string, active bool) Permission {
	p := Permission{ID: m.nextPermID, Code: code, Name: code, Module: module, Active: active}
	m.nextPermID++
	m.state.permissions[p.ID] = p
	return p
}

func (m *mockRepository) addRole(name string, active bool, codes ...string) Role {
	now := time.Now()
	r := Role{ID: m.nextRoleID, Name: name, Active: active, CreatedAt: now, UpdatedAt: now}
	m.nextRoleID++
	m.state.roles[r.ID] = r
	links := make(map[int64]time.Time)
	for _, code := range codes {
		links[m.permissionByCode(code).ID] = now
	}
	m.state.rolePerms[r.ID] = links
	return r
}

func (m *mockRepository) addUser(id int64, roleID *int64, active bool) User {
	u := User{ID: id, RoleID: roleID, Active: active}
	m.state.users[id] = u
	return u
}

func (m *mockRepository) addOverride(userID int64, code string, granted bool, origin Origin) {
	p := m.permissionByCode(code)
	rows := m.state.overrides[userID]
	if rows == nil {
		rows = make(map[int64]UserPermission)
		m.state.overrides[userID] = rows
	}
	rows[p.ID] = UserPermission{UserID: userID, PermissionID: p.ID, Code: code, Granted: granted, Origin: origin}
}

func (m *mockRepository) permissionByCode(code string) Permission {
	for _, p := range m.state.permissions {
		if p.Code == code {
			return p
		}
	}
	panic("unknown permission in test setup: " + code)
}

func (m *mockRepository) roleLinkCount(roleID int64) int {
	return len(m.state.rolePerms[roleID])
}

// ----------------------------------------------------------------------------
// Repository implementation
// ----------------------------------------------------------------------------

func (m *mockRepository) ListPermissions(ctx context.Context, includeInactive bool) ([]Permission, error) {
	m.mu.Lock()
	m.listPermissionCall++
	m.mu.Unlock()
	if m.listPermissionsError != nil {
		return nil, m.listPermissionsError
	}
	var out []Permission
	for _, p := range m.state.permissions {
		if includeInactive || p.Active {
			out = append(out, p)
		}
	}
	sortByModuleCode(out, func(p Permission) (string, string) { return p.Module, p.Code })
	return out, nil
}

func (m *mockRepository) FindPermissionsByCodes(ctx context.Context, codes []string) ([]Permission, error) {
	want := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		want[c] = struct{}{}
	}
	var out []Permission
	for _, p := range m.state.permissions {
		if _, ok := want[p.Code]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepository) UpsertPermission(ctx context.Context, p Permission) (Permission, error) {
	for id, existing := range m.state.permissions {
		if existing.Code == p.Code {
			p.ID = id
			p.Active = existing.Active
			m.state.permissions[id] = p
			return p, nil
		}
	}
	p.ID = m.nextPermID
	m.nextPermID++
	p.Active = true
	m.state.permissions[p.ID] = p
	return p, nil
}

func (m *mockRepository) SetPermissionActive(ctx context.Context, code string, active bool) (Permission, error) {
	for id, p := range m.state.permissions {
		if p.Code == code {
			p.Active = active
			m.state.permissions[id] = p
			return p, nil
		}
	}
	return Permission{}, &PermissionNotFoundError{Code: code}
}

func (m *mockRepository) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(m.state.roles))
	for _, r := range m.state.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	r, ok := m.state.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return r, nil
}

func (m *mockRepository) CreateRole(ctx context.Context, name string, description *string) (Role, error) {
	for _, r := range m.state.roles {
		if r.Name == name {
			return Role{}, ErrRoleNameTaken
		}
	}
	now := time.Now()
	r := Role{ID: m.nextRoleID, Name: name, Description: description, Active: true, CreatedAt: now, UpdatedAt: now}
	m.nextRoleID++
	m.state.roles[r.ID] = r
	return r, nil
}

func (m *mockRepository) UpdateRole(ctx context.Context, id int64, name string, description *string) (Role, error) {
	r, ok := m.state.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	for _, other := range m.state.roles {
		if other.ID != id && other.Name == name {
			return Role{}, ErrRoleNameTaken
		}
	}
	r.Name = name
	r.Description = description
	r.UpdatedAt = time.Now()
	m.state.roles[id] = r
	return r, nil
}

func (m *mockRepository) SetRoleActive(ctx context.Context, id int64, active bool) (Role, error) {
	r, ok := m.state.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	r.Active = active
	m.state.roles[id] = r
	return r, nil
}

func (m *mockRepository) CountActiveUsersWithRole(ctx context.Context, roleID int64) (int, error) {
	n := 0
	for _, u := range m.state.users {
		if u.Active && u.RoleID != nil && *u.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

func (m *mockRepository) ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	var out []Permission
	for pid := range m.state.rolePerms[roleID] {
		out = append(out, m.state.permissions[pid])
	}
	sortByModuleCode(out, func(p Permission) (string, string) { return p.Module, p.Code })
	return out, nil
}

func (m *mockRepository) AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) ([]RolePermission, error) {
	links := m.state.rolePerms[roleID]
	if links == nil {
		links = make(map[int64]time.Time)
		m.state.rolePerms[roleID] = links
	}
	var out []RolePermission
	for _, pid := range permissionIDs {
		if _, ok := links[pid]; !ok {
			links[pid] = time.Now()
		}
		if m.failAttach != nil {
			return nil, m.failAttach
		}
		out = append(out, RolePermission{RoleID: roleID, PermissionID: pid, Code: m.state.permissions[pid].Code, CreatedAt: links[pid]})
	}
	return out, nil
}

func (m *mockRepository) DetachPermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	links := m.state.rolePerms[roleID]
	if _, ok := links[permissionID]; !ok {
		return false, nil
	}
	delete(links, permissionID)
	return true, nil
}

func (m *mockRepository) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := m.state.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *mockRepository) ListUserOverrides(ctx context.Context, userID int64) ([]UserPermission, error) {
	if m.overridesUnavailable {
		return nil, ErrOverridesUnavailable
	}
	var out []UserPermission
	for _, o := range m.state.overrides[userID] {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *mockRepository) UpsertUserOverride(ctx context.Context, o UserPermission) (UserPermission, error) {
	rows := m.state.overrides[o.UserID]
	if rows == nil {
		rows = make(map[int64]UserPermission)
		m.state.overrides[o.UserID] = rows
	}
	o.UpdatedAt = time.Now()
	rows[o.PermissionID] = o
	return o, nil
}

func (m *mockRepository) DeleteUserOverride(ctx context.Context, userID, permissionID int64) (bool, error) {
	rows := m.state.overrides[userID]
	if _, ok := rows[permissionID]; !ok {
		return false, nil
	}
	delete(rows, permissionID)
	return true, nil
}

func (m *mockRepository) DeleteUserOverridesExcept(ctx context.Context, userID int64, keep []Origin) (int, error) {
	if m.overridesUnavailable {
		return 0, ErrOverridesUnavailable
	}
	kept := make(map[Origin]struct{}, len(keep))
	for _, o := range keep {
		kept[o] = struct{}{}
	}
	removed := 0
	for pid, o := range m.state.overrides[userID] {
		if _, ok := kept[o.Origin]; ok {
			continue
		}
		delete(m.state.overrides[userID], pid)
		removed++
	}
	return removed, nil
}

var _ Repository = (*mockRepository)(nil)

// ============================================================================
// MOCK COLLABORATORS
// ============================================================================

type recordingAudit struct {
	events []audit.Event
}

func (r *recordingAudit) LogEvent(ctx context.Context, ev audit.Event) {
	r.events = append(r.events, ev)
}

func (r *recordingAudit) actions() []string {
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Action
	}
	return out
}

type recordingDecisions struct {
	outcomes map[string]int
}

func (r *recordingDecisions) ObserveGuardDecision(code, outcome string) {
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	r.outcomes[outcome]++
}

type recordingNotifier struct {
	changes []OverrideChange
	err     error
}

func (r *recordingNotifier) NotifyOverrideChange(ctx context.Context, change OverrideChange) error {
	r.changes = append(r.changes, change)
	return r.err
}

type stubSession struct {
	id int64
}

func (s stubSession) UserID() (int64, bool) { return s.id, s.id > 0 }

func int64Ptr(v int64) *int64 { return &v }
