// Package retention decides what may happen to an archived tenant based on
// how long ago it was archived. The policy is pure computation; services
// consult it before restoring or purging.
package retention

import (
	"time"

	"github.com/gosuda/tenantd/internal/domain"
)

const (
	DefaultRetentionDays = 30
	DefaultNoticeDays    = 7
)

// Policy is the retention window applied to archived tenants. Archived data
// is kept for RetentionDays; within the final NoticeDays the tenant is
// flagged for a pre-purge notice. Now is overridable for tests and defaults
// to time.Now.
type Policy struct {
	RetentionDays int
	NoticeDays    int
	Now           func() time.Time
}

func NewPolicy(retentionDays, noticeDays int) Policy {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if noticeDays <= 0 {
		noticeDays = DefaultNoticeDays
	}
	return Policy{RetentionDays: retentionDays, NoticeDays: noticeDays}
}

func (p Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// ExpiresAt returns when the tenant's retention window ends, or nil when the
// tenant is not archived.
func (p Policy) ExpiresAt(t *domain.Tenant) *time.Time {
	if t.DeletedAt == nil {
		return nil
	}
	at := t.DeletedAt.Add(time.Duration(p.RetentionDays) * 24 * time.Hour)
	return &at
}

// Expired reports whether the retention window has ended. The boundary is
// inclusive: a tenant exactly at the threshold counts as expired.
func (p Policy) Expired(t *domain.Tenant) bool {
	at := p.ExpiresAt(t)
	return at != nil && !p.now().Before(*at)
}

// CanRestore reports whether an archived tenant may still be unarchived.
func (p Policy) CanRestore(t *domain.Tenant) bool {
	return t.Archived() && !p.Expired(t)
}

// CanPurge reports whether the tenant may be permanently destroyed.
func (p Policy) CanPurge(t *domain.Tenant) bool {
	return t.Archived() && p.Expired(t)
}

// DaysRemaining returns whole days left before the tenant becomes purgeable,
// rounded up. Zero when already purgeable; -1 when the tenant is not archived.
func (p Policy) DaysRemaining(t *domain.Tenant) int {
	at := p.ExpiresAt(t)
	if at == nil {
		return -1
	}

	left := at.Sub(p.now())
	if left <= 0 {
		return 0
	}

	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// NearingPurge reports whether an archived tenant is inside the pre-purge
// notice window but not yet purgeable.
func (p Policy) NearingPurge(t *domain.Tenant) bool {
	if !t.Archived() || p.Expired(t) {
		return false
	}
	return p.DaysRemaining(t) <= p.NoticeDays
}
