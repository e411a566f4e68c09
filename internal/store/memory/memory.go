// Package memory provides an in-memory store.Store used by unit tests and
// local development. It mirrors the Postgres implementation's semantics,
// including the session cap and case-folded uniqueness.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/store"
)

// Store is the in-memory implementation of store.Store.
type Store struct {
	mu sync.Mutex

	users        map[int64]*models.User
	roles        map[int64]*models.Role
	permissions  map[int64]*models.Permission
	sessions     map[string]*models.Session
	userRoles    map[int64][]int64 // userID -> roleIDs
	rolePerms    map[int64][]int64 // roleID -> permissionIDs
	pwdHistory   map[int64][]*models.PasswordHistoryEntry
	auditEvents  []*models.AuditEvent
	signals      map[int64]*models.Signal
	signalHist   []*models.SignalHistoryEntry
	sigCats      map[int64]*models.SignalCategory
	anaCats      map[int64]*models.AnalysisCategory
	systemConfig map[string]string

	nextUserID    int64
	nextRoleID    int64
	nextPermID    int64
	nextHistoryID int64
	nextAuditID   int64
	nextSigHistID int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:        make(map[int64]*models.User),
		roles:        make(map[int64]*models.Role),
		permissions:  make(map[int64]*models.Permission),
		sessions:     make(map[string]*models.Session),
		userRoles:    make(map[int64][]int64),
		rolePerms:    make(map[int64][]int64),
		pwdHistory:   make(map[int64][]*models.PasswordHistoryEntry),
		signals:      make(map[int64]*models.Signal),
		sigCats:      make(map[int64]*models.SignalCategory),
		anaCats:      make(map[int64]*models.AnalysisCategory),
		systemConfig: make(map[string]string),
	}
}

func (s *Store) Users() store.UserStore                     { return (*userStore)(s) }
func (s *Store) Roles() store.RoleStore                     { return (*roleStore)(s) }
func (s *Store) Permissions() store.PermissionStore         { return (*permissionStore)(s) }
func (s *Store) Sessions() store.SessionStore               { return (*sessionStore)(s) }
func (s *Store) PasswordHistory() store.PasswordHistoryStore { return (*passwordHistoryStore)(s) }
func (s *Store) Audit() store.AuditStore                    { return (*auditStore)(s) }
func (s *Store) Signals() store.SignalStore                 { return (*signalStore)(s) }
func (s *Store) SignalHistory() store.SignalHistoryStore    { return (*signalHistoryStore)(s) }
func (s *Store) Categories() store.CategoryStore            { return (*categoryStore)(s) }
func (s *Store) SystemConfig() store.SystemConfigStore      { return (*systemConfigStore)(s) }

// AddSignal seeds a signal row directly. Test helper.
func (s *Store) AddSignal(sig *models.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sig
	s.signals[sig.ID] = &cp
}

// AddSignalCategory seeds a signal category. Test helper.
func (s *Store) AddSignalCategory(c *models.SignalCategory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.sigCats[c.ID] = &cp
}

// AddAnalysisCategory seeds an analysis category. Test helper.
func (s *Store) AddAnalysisCategory(c *models.AnalysisCategory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.anaCats[c.ID] = &cp
}

// AuditEvents returns a snapshot of all appended audit events. Test helper.
func (s *Store) AuditEvents() []*models.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.AuditEvent, len(s.auditEvents))
	copy(out, s.auditEvents)
	return out
}

// ---- users ----

type userStore Store

func copyUser(u *models.User) *models.User {
	cp := *u
	return &cp
}

func (s *userStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return store.ErrAlreadyExists
		}
		if u.Email != nil && existing.Email != nil && strings.EqualFold(*existing.Email, *u.Email) {
			return store.ErrAlreadyExists
		}
	}
	s.nextUserID++
	u.ID = s.nextUserID
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = copyUser(u)
	return nil
}

func (s *userStore) ByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *userStore) ByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return copyUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *userStore) ByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email != nil && strings.EqualFold(*u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *userStore) ByResetToken(_ context.Context, tok string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ResetToken != nil && *u.ResetToken == tok {
			return copyUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *userStore) Update(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range s.users {
		if existing.ID == u.ID {
			continue
		}
		if strings.EqualFold(existing.Username, u.Username) {
			return store.ErrAlreadyExists
		}
		if u.Email != nil && existing.Email != nil && strings.EqualFold(*existing.Email, *u.Email) {
			return store.ErrAlreadyExists
		}
	}
	u.UpdatedAt = time.Now()
	s.users[u.ID] = copyUser(u)
	return nil
}

func (s *userStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	delete(s.userRoles, id)
	// Audit rows keep their nullable actor reference.
	for _, e := range s.auditEvents {
		if e.ActorID != nil && *e.ActorID == id {
			e.ActorID = nil
		}
	}
	return nil
}

func (s *userStore) List(_ context.Context, limit, offset int) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*models.User, 0)
	for i, id := range ids {
		if i < offset {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, copyUser(s.users[id]))
	}
	return out, nil
}

func (s *userStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

func (s *userStore) CountActiveSuperusers(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if u.Active && u.Superuser {
			n++
		}
	}
	return n, nil
}

func (s *userStore) ClearExpiredResetTokens(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.ResetToken != nil && u.ResetTokenExpires != nil && u.ResetTokenExpires.Before(cutoff) {
			u.ResetToken = nil
			u.ResetTokenExpires = nil
			n++
		}
	}
	return n, nil
}

// ---- roles ----

type roleStore Store

func copyRole(r *models.Role) *models.Role {
	cp := *r
	return &cp
}

func (s *roleStore) Create(_ context.Context, r *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if strings.EqualFold(existing.Name, r.Name) {
			return store.ErrAlreadyExists
		}
	}
	s.nextRoleID++
	r.ID = s.nextRoleID
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.roles[r.ID] = copyRole(r)
	return nil
}

func (s *roleStore) ByID(_ context.Context, id int64) (*models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyRole(r), nil
}

func (s *roleStore) ByName(_ context.Context, name string) (*models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if strings.EqualFold(r.Name, name) {
			return copyRole(r), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *roleStore) Update(_ context.Context, r *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range s.roles {
		if existing.ID != r.ID && strings.EqualFold(existing.Name, r.Name) {
			return store.ErrAlreadyExists
		}
	}
	r.UpdatedAt = time.Now()
	s.roles[r.ID] = copyRole(r)
	return nil
}

func (s *roleStore) SoftDelete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Active = false
	r.UpdatedAt = time.Now()
	return nil
}

func (s *roleStore) List(_ context.Context, activeOnly bool) ([]*models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.roles))
	for id := range s.roles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*models.Role, 0, len(ids))
	for _, id := range ids {
		r := s.roles[id]
		if activeOnly && !r.Active {
			continue
		}
		out = append(out, copyRole(r))
	}
	return out, nil
}

func (s *roleStore) SetPermissions(_ context.Context, roleID int64, permissionIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return store.ErrNotFound
	}
	s.rolePerms[roleID] = append([]int64(nil), permissionIDs...)
	return nil
}

func (s *roleStore) PermissionCodesForRole(_ context.Context, roleID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permCodesForRoleLocked(roleID), nil
}

func (s *roleStore) permCodesForRoleLocked(roleID int64) []string {
	codes := make([]string, 0)
	for _, pid := range s.rolePerms[roleID] {
		if p, ok := s.permissions[pid]; ok {
			codes = append(codes, p.Code)
		}
	}
	sort.Strings(codes)
	return codes
}

func (s *roleStore) ReplaceUserRoles(_ context.Context, userID int64, roleIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userRoles[userID] = append([]int64(nil), roleIDs...)
	return nil
}

func (s *roleStore) RolesForUser(_ context.Context, userID int64) ([]*models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Role, 0)
	for _, rid := range s.userRoles[userID] {
		if r, ok := s.roles[rid]; ok && r.Active {
			out = append(out, copyRole(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *roleStore) PermissionCodesForUser(_ context.Context, userID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for _, rid := range s.userRoles[userID] {
		r, ok := s.roles[rid]
		if !ok || !r.Active {
			continue
		}
		for _, code := range s.permCodesForRoleLocked(rid) {
			seen[code] = struct{}{}
		}
	}
	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// ---- permissions ----

type permissionStore Store

func (s *permissionStore) Ensure(_ context.Context, perms []models.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byCode := make(map[string]struct{}, len(s.permissions))
	for _, p := range s.permissions {
		byCode[p.Code] = struct{}{}
	}
	for _, p := range perms {
		if _, ok := byCode[p.Code]; ok {
			continue
		}
		s.nextPermID++
		cp := p
		cp.ID = s.nextPermID
		cp.CreatedAt = time.Now()
		s.permissions[cp.ID] = &cp
		byCode[cp.Code] = struct{}{}
	}
	return nil
}

func (s *permissionStore) List(_ context.Context) ([]*models.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *permissionStore) ByCodes(_ context.Context, codes []string) ([]*models.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Permission, 0, len(codes))
	for _, code := range codes {
		found := false
		for _, p := range s.permissions {
			if p.Code == code {
				cp := *p
				out = append(out, &cp)
				found = true
				break
			}
		}
		if !found {
			return nil, store.ErrNotFound
		}
	}
	return out, nil
}

// ---- sessions ----

type sessionStore Store

func copySession(sess *models.Session) *models.Session {
	cp := *sess
	return &cp
}

func (s *sessionStore) Create(_ context.Context, sess *models.Session, cap int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()

	if cap > 0 {
		active := make([]*models.Session, 0)
		for _, existing := range s.sessions {
			if existing.UserID == sess.UserID && existing.Active(now) {
				active = append(active, existing)
			}
		}
		if len(active) >= cap {
			sort.Slice(active, func(i, j int) bool {
				return active[i].CreatedAt.Before(active[j].CreatedAt)
			})
			oldest := active[0]
			reason := models.InvalidationSessionCap
			oldest.Valid = false
			oldest.InvalidatedAt = &now
			oldest.InvalidationReason = &reason
		}
	}

	sess.CreatedAt = now
	sess.LastAccessAt = now
	s.sessions[sess.ID] = copySession(sess)
	return nil
}

func (s *sessionStore) ByAccessToken(_ context.Context, token string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.AccessToken == token {
			return copySession(sess), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *sessionStore) ByRefreshToken(_ context.Context, token string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.RefreshToken == token {
			return copySession(sess), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *sessionStore) ListActive(_ context.Context, userID int64) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	out := make([]*models.Session, 0)
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Active(now) {
			out = append(out, copySession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *sessionStore) CountActive(ctx context.Context, userID int64) (int, error) {
	list, err := s.ListActive(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func (s *sessionStore) Invalidate(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	if !sess.Valid {
		return nil
	}
	now := time.Now()
	sess.Valid = false
	sess.InvalidatedAt = &now
	sess.InvalidationReason = &reason
	return nil
}

func (s *sessionStore) InvalidateUser(_ context.Context, userID int64, exceptID, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var n int64
	for _, sess := range s.sessions {
		if sess.UserID != userID || !sess.Valid || sess.ID == exceptID {
			continue
		}
		r := reason
		sess.Valid = false
		sess.InvalidatedAt = &now
		sess.InvalidationReason = &r
		n++
	}
	return n, nil
}

func (s *sessionStore) Rotate(_ context.Context, id, access, refresh string, accessExp, refreshExp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	if !sess.Valid {
		return store.ErrConflict
	}
	sess.AccessToken = access
	sess.RefreshToken = refresh
	sess.AccessExpiresAt = accessExp
	sess.RefreshExpiresAt = refreshExp
	sess.LastAccessAt = time.Now()
	return nil
}

func (s *sessionStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	sess.LastAccessAt = at
	return nil
}

func (s *sessionStore) MarkExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sess := range s.sessions {
		if sess.Valid && sess.AccessExpiresAt.Before(now) {
			reason := models.InvalidationAutoExpired
			sess.Valid = false
			sess.InvalidatedAt = &now
			sess.InvalidationReason = &reason
			n++
		}
	}
	return n, nil
}

func (s *sessionStore) DeleteInvalidBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if !sess.Valid && sess.RefreshExpiresAt.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// ---- password history ----

type passwordHistoryStore Store

func (s *passwordHistoryStore) Append(_ context.Context, userID int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHistoryID++
	s.pwdHistory[userID] = append(s.pwdHistory[userID], &models.PasswordHistoryEntry{
		ID:           s.nextHistoryID,
		UserID:       userID,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	})
	return nil
}

func (s *passwordHistoryStore) Recent(_ context.Context, userID int64, k int) ([]*models.PasswordHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.pwdHistory[userID]
	out := make([]*models.PasswordHistoryEntry, 0, k)
	for i := len(entries) - 1; i >= 0 && len(out) < k; i-- {
		cp := *entries[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *passwordHistoryStore) Prune(_ context.Context, userID int64, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.pwdHistory[userID]
	if len(entries) > keep {
		s.pwdHistory[userID] = entries[len(entries)-keep:]
	}
	return nil
}

// ---- audit ----

type auditStore Store

func (s *auditStore) Append(_ context.Context, e *models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAuditID++
	cp := *e
	cp.ID = s.nextAuditID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.auditEvents = append(s.auditEvents, &cp)
	return nil
}

func (s *auditStore) List(_ context.Context, kind models.AuditKind, limit, offset int) ([]*models.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.AuditEvent, 0)
	skipped := 0
	for i := len(s.auditEvents) - 1; i >= 0; i-- {
		e := s.auditEvents[i]
		if kind != "" && e.Kind != kind {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// ---- signals ----

type signalStore Store

func (s *signalStore) ByID(_ context.Context, id int64) (*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sig
	return &cp, nil
}

func (s *signalStore) Update(_ context.Context, sig *models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.signals[sig.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *sig
	s.signals[sig.ID] = &cp
	return nil
}

func (s *signalStore) List(_ context.Context, limit, offset int) ([]*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.signals))
	for id := range s.signals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*models.Signal, 0)
	for i, id := range ids {
		if i < offset {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := *s.signals[id]
		out = append(out, &cp)
	}
	return out, nil
}

// ---- signal history ----

type signalHistoryStore Store

func (s *signalHistoryStore) Append(_ context.Context, e *models.SignalHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSigHistID++
	cp := *e
	cp.ID = s.nextSigHistID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.signalHist = append(s.signalHist, &cp)
	return nil
}

func (s *signalHistoryStore) ListBySignal(_ context.Context, signalID int64, limit int) ([]*models.SignalHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.SignalHistoryEntry, 0)
	for i := len(s.signalHist) - 1; i >= 0; i-- {
		e := s.signalHist[i]
		if e.SignalID != signalID {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *signalHistoryStore) LastForActor(_ context.Context, signalID, actorID int64) (*models.SignalHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.signalHist) - 1; i >= 0; i-- {
		e := s.signalHist[i]
		if e.SignalID == signalID && e.ActorID != nil && *e.ActorID == actorID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

// ---- categories ----

type categoryStore Store

func (s *categoryStore) SignalCategoryByID(_ context.Context, id int64) (*models.SignalCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.sigCats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *categoryStore) AnalysisCategoryByID(_ context.Context, id int64) (*models.AnalysisCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.anaCats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *categoryStore) ListSignalCategories(_ context.Context) ([]*models.SignalCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.SignalCategory, 0, len(s.sigCats))
	for _, c := range s.sigCats {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *categoryStore) ListAnalysisCategories(_ context.Context) ([]*models.AnalysisCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.AnalysisCategory, 0, len(s.anaCats))
	for _, c := range s.anaCats {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- system config ----

type systemConfigStore Store

func (s *systemConfigStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.systemConfig[key]
	return v, ok, nil
}

func (s *systemConfigStore) Set(_ context.Context, key, value string, _ *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemConfig[key] = value
	return nil
}

func (s *systemConfigStore) All(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.systemConfig))
	for k, v := range s.systemConfig {
		out[k] = v
	}
	return out, nil
}
