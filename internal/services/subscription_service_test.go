package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elimu_backend/internal/appErrors"
	"elimu_backend/internal/models"
)

// --- in-memory fakes ---

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (r *fakeUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) Save(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) UpdateFields(_ context.Context, id string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user %s not found", id)
	}
	applyUserFields(u, fields)
	return nil
}

func (r *fakeUserRepo) ListExpiredActive(_ context.Context, now time.Time, limit int) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.User
	for _, u := range r.users {
		if len(out) >= limit {
			break
		}
		switch u.SubscriptionStatus {
		case models.SubscriptionStatusActive, models.SubscriptionStatusTrial, models.SubscriptionStatusCancelled:
		default:
			continue
		}
		if u.Tier != models.TierFree && u.SubscriptionExpiry != nil && u.SubscriptionExpiry.Before(now) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) get(id string) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id]
}

// applyUserFields mirrors the column-keyed updates the real repository
// issues, so cascade semantics are exercised the same way.
func applyUserFields(u *models.User, fields map[string]interface{}) {
	for key, value := range fields {
		switch key {
		case "tier":
			u.Tier = value.(models.SubscriptionTier)
		case "subscription_status":
			u.SubscriptionStatus = value.(models.SubscriptionStatus)
		case "subscription_expiry":
			u.SubscriptionExpiry = toTimePtr(value)
		case "last_payment_at":
			u.LastPaymentAt = toTimePtr(value)
		case "school_id":
			if value == nil {
				u.SchoolID = nil
			} else {
				id := value.(string)
				u.SchoolID = &id
			}
		case "school_role":
			if value == nil {
				u.SchoolRole = nil
			} else {
				role := value.(models.SchoolRole)
				u.SchoolRole = &role
			}
		}
	}
}

// toTimePtr accepts the time.Time and *time.Time forms GORM's Updates
// takes for a timestamp column.
func toTimePtr(value interface{}) *time.Time {
	switch v := value.(type) {
	case nil:
		return nil
	case *time.Time:
		if v == nil {
			return nil
		}
		t := *v
		return &t
	default:
		t := v.(time.Time)
		return &t
	}
}

type fakeSchoolRepo struct {
	mu      sync.Mutex
	schools map[string]*models.School
	users   *fakeUserRepo
}

func newFakeSchoolRepo(users *fakeUserRepo) *fakeSchoolRepo {
	return &fakeSchoolRepo{schools: make(map[string]*models.School), users: users}
}

func (r *fakeSchoolRepo) FindByID(_ context.Context, id string) (*models.School, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.schools[id]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeSchoolRepo) FindByAdminID(_ context.Context, adminID string) (*models.School, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.schools {
		if s.AdminID == adminID {
			clone := *s
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeSchoolRepo) Create(_ context.Context, school *models.School) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if school.ID == "" {
		school.ID = uuid.NewString()
	}
	clone := *school
	r.schools[school.ID] = &clone
	return nil
}

func (r *fakeSchoolRepo) Save(_ context.Context, school *models.School) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *school
	r.schools[school.ID] = &clone
	return nil
}

func (r *fakeSchoolRepo) CountMembers(_ context.Context, schoolID string) (int64, error) {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	var count int64
	for _, u := range r.users.users {
		if u.SchoolID != nil && *u.SchoolID == schoolID {
			count++
		}
	}
	return count, nil
}

func (r *fakeSchoolRepo) ExpireCascade(_ context.Context, school *models.School, adminFields, memberFields map[string]interface{}) error {
	r.users.mu.Lock()
	for _, u := range r.users.users {
		switch {
		case u.ID == school.AdminID:
			applyUserFields(u, adminFields)
		case u.SchoolID != nil && *u.SchoolID == school.ID:
			applyUserFields(u, memberFields)
		}
	}
	r.users.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.schools[school.ID]; ok {
		s.Status = models.SubscriptionStatusExpired
	}
	return nil
}

func (r *fakeSchoolRepo) get(id string) *models.School {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.schools[id]
}

type fakeEmail struct {
	mu       sync.Mutex
	receipts []string
}

func (e *fakeEmail) Send(string, string, string) error { return nil }

func (e *fakeEmail) SendPaymentReceipt(to, _ string, _ int64, _, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.receipts = append(e.receipts, to)
	return nil
}

// --- harness ---

type subscriptionFixture struct {
	svc     *SubscriptionService
	users   *fakeUserRepo
	schools *fakeSchoolRepo
	mail    *fakeEmail
	now     time.Time
}

func newSubscriptionFixture(t *testing.T) *subscriptionFixture {
	t.Helper()

	users := newFakeUserRepo()
	schools := newFakeSchoolRepo(users)
	mail := &fakeEmail{}

	f := &subscriptionFixture{
		users:   users,
		schools: schools,
		mail:    mail,
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewSubscriptionService(users, schools, mail, 0)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *subscriptionFixture) addUser(t *testing.T, mutate func(*models.User)) *models.User {
	t.Helper()
	u := &models.User{
		FullName:           "Jane Wanjiku",
		Email:              "jane@example.test",
		Tier:               models.TierFree,
		SubscriptionStatus: models.SubscriptionStatusActive,
	}
	if mutate != nil {
		mutate(u)
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func completedTx(userID string, tier models.SubscriptionTier, period models.BillingPeriod) *models.PaymentTransaction {
	tx := &models.PaymentTransaction{
		UserID:        userID,
		Amount:        1500,
		Currency:      "KES",
		Tier:          tier,
		Period:        period,
		Rail:          models.RailMpesa,
		Status:        models.TransactionCompleted,
		ReceiptNumber: "NLJ7RT61SV",
	}
	tx.ID = uuid.NewString()
	return tx
}

// --- activation and renewal ---

func TestActivateFromPaymentGrantsPro(t *testing.T) {
	f := newSubscriptionFixture(t)
	u := f.addUser(t, nil)

	err := f.svc.ActivateFromPayment(context.Background(), completedTx(u.ID, models.TierPro, models.PeriodMonthly))
	require.NoError(t, err)

	got := f.users.get(u.ID)
	assert.Equal(t, models.TierPro, got.Tier)
	assert.Equal(t, models.SubscriptionStatusActive, got.SubscriptionStatus)
	require.NotNil(t, got.SubscriptionExpiry)
	assert.True(t, got.SubscriptionExpiry.Equal(f.now.Add(30*24*time.Hour)))
	require.NotNil(t, got.LastPaymentAt)

	assert.Equal(t, []string{"jane@example.test"}, f.mail.receipts)
}

func TestActivateAnnualPeriod(t *testing.T) {
	f := newSubscriptionFixture(t)
	u := f.addUser(t, nil)

	err := f.svc.ActivateFromPayment(context.Background(), completedTx(u.ID, models.TierPro, models.PeriodAnnual))
	require.NoError(t, err)

	got := f.users.get(u.ID)
	assert.True(t, got.SubscriptionExpiry.Equal(f.now.Add(365*24*time.Hour)))
}

func TestRenewExtendsFromFutureExpiry(t *testing.T) {
	f := newSubscriptionFixture(t)
	future := f.now.Add(10 * 24 * time.Hour)
	u := f.addUser(t, func(u *models.User) {
		u.Tier = models.TierPro
		u.SubscriptionExpiry = &future
	})

	err := f.svc.ActivateFromPayment(context.Background(), completedTx(u.ID, models.TierPro, models.PeriodMonthly))
	require.NoError(t, err)

	// Unused time is preserved: 10 days left + 30 days purchased.
	got := f.users.get(u.ID)
	assert.True(t, got.SubscriptionExpiry.Equal(future.Add(30*24*time.Hour)))
}

func TestRenewLapsedExtendsFromNow(t *testing.T) {
	f := newSubscriptionFixture(t)
	past := f.now.Add(-5 * 24 * time.Hour)
	u := f.addUser(t, func(u *models.User) {
		u.Tier = models.TierPro
		u.SubscriptionExpiry = &past
	})

	err := f.svc.ActivateFromPayment(context.Background(), completedTx(u.ID, models.TierPro, models.PeriodMonthly))
	require.NoError(t, err)

	got := f.users.get(u.ID)
	assert.True(t, got.SubscriptionExpiry.Equal(f.now.Add(30*24*time.Hour)))
}

// --- school groups ---

func TestSchoolActivationCreatesGroup(t *testing.T) {
	f := newSubscriptionFixture(t)
	u := f.addUser(t, nil)

	err := f.svc.ActivateFromPayment(context.Background(), completedTx(u.ID, models.TierSchool, models.PeriodAnnual))
	require.NoError(t, err)

	got := f.users.get(u.ID)
	assert.Equal(t, models.TierSchool, got.Tier)
	require.NotNil(t, got.SchoolID)
	require.NotNil(t, got.SchoolRole)
	assert.Equal(t, models.SchoolRoleAdmin, *got.SchoolRole)

	school := f.schools.get(*got.SchoolID)
	require.NotNil(t, school)
	assert.Equal(t, u.ID, school.AdminID)
	assert.Equal(t, 20, school.Slots)
	assert.Equal(t, models.SubscriptionStatusActive, school.Status)
}

func TestSchoolRenewalReusesGroup(t *testing.T) {
	f := newSubscriptionFixture(t)
	u := f.addUser(t, nil)

	require.NoError(t, f.svc.ActivateFromPayment(context.Background(), completedTx(u.ID, models.TierSchool, models.PeriodMonthly)))
	firstSchoolID := *f.users.get(u.ID).SchoolID

	require.NoError(t, f.svc.ActivateFromPayment(context.Background(), completedTx(u.ID, models.TierSchool, models.PeriodMonthly)))

	assert.Equal(t, firstSchoolID, *f.users.get(u.ID).SchoolID)
	assert.Len(t, f.schools.schools, 1)
}

func TestEnrollMemberAndSlotCeiling(t *testing.T) {
	f := newSubscriptionFixture(t)
	admin := f.addUser(t, nil)
	require.NoError(t, f.svc.ActivateFromPayment(context.Background(), completedTx(admin.ID, models.TierSchool, models.PeriodAnnual)))
	schoolID := *f.users.get(admin.ID).SchoolID

	// Shrink the group to admin + one member.
	school := f.schools.get(schoolID)
	school.Slots = 2

	member := f.addUser(t, func(u *models.User) { u.Email = "member1@example.test" })
	require.NoError(t, f.svc.EnrollMemberByAdmin(context.Background(), admin.ID, member.ID))

	got := f.users.get(member.ID)
	assert.Equal(t, models.TierSchool, got.Tier)
	require.NotNil(t, got.SchoolRole)
	assert.Equal(t, models.SchoolRoleMember, *got.SchoolRole)

	overflow := f.addUser(t, func(u *models.User) { u.Email = "member2@example.test" })
	err := f.svc.EnrollMemberByAdmin(context.Background(), admin.ID, overflow.ID)
	assert.Equal(t, appErrors.CodeSchoolSlotsExceeded, appCode(t, err))
}

func TestExpireCascadesThroughSchool(t *testing.T) {
	f := newSubscriptionFixture(t)
	admin := f.addUser(t, nil)
	require.NoError(t, f.svc.ActivateFromPayment(context.Background(), completedTx(admin.ID, models.TierSchool, models.PeriodAnnual)))
	schoolID := *f.users.get(admin.ID).SchoolID

	var members []*models.User
	for i := 0; i < 5; i++ {
		m := f.addUser(t, func(u *models.User) { u.Email = fmt.Sprintf("m%d@example.test", i) })
		require.NoError(t, f.svc.EnrollMemberByAdmin(context.Background(), admin.ID, m.ID))
		members = append(members, m)
	}

	require.NoError(t, f.svc.Expire(context.Background(), admin.ID))

	assert.Equal(t, models.SubscriptionStatusExpired, f.users.get(admin.ID).SubscriptionStatus)
	assert.Equal(t, models.SubscriptionStatusExpired, f.schools.get(schoolID).Status)

	for _, m := range members {
		got := f.users.get(m.ID)
		assert.Equal(t, models.TierFree, got.Tier)
		assert.Equal(t, models.SubscriptionStatusActive, got.SubscriptionStatus)
		assert.Nil(t, got.SchoolID)
		assert.Nil(t, got.SchoolRole)
		assert.Nil(t, got.SubscriptionExpiry)
	}
}

// --- cancellation and expiry ---

func TestCancelKeepsAccessUntilExpiry(t *testing.T) {
	f := newSubscriptionFixture(t)
	future := f.now.Add(20 * 24 * time.Hour)
	u := f.addUser(t, func(u *models.User) {
		u.Tier = models.TierPro
		u.SubscriptionExpiry = &future
	})

	require.NoError(t, f.svc.Cancel(context.Background(), u.ID))

	got := f.users.get(u.ID)
	assert.Equal(t, models.SubscriptionStatusCancelled, got.SubscriptionStatus)
	assert.Equal(t, models.TierPro, got.Tier)
	require.NotNil(t, got.SubscriptionExpiry)
	assert.True(t, got.SubscriptionExpiry.Equal(future))
	assert.True(t, got.HasValidSubscription(f.now))

	err := f.svc.Cancel(context.Background(), u.ID)
	assert.Equal(t, appErrors.CodeSubscriptionCancelled, appCode(t, err))
}

func TestCurrentSubscriptionLazilyExpires(t *testing.T) {
	f := newSubscriptionFixture(t)
	past := f.now.Add(-time.Hour)
	u := f.addUser(t, func(u *models.User) {
		u.Tier = models.TierPro
		u.SubscriptionExpiry = &past
	})

	info, err := f.svc.CurrentSubscription(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "expired", info.Status)
	assert.False(t, f.users.get(u.ID).HasValidSubscription(f.now))
}

func TestDowngradeToFreeClearsEverything(t *testing.T) {
	f := newSubscriptionFixture(t)
	u := f.addUser(t, nil)
	require.NoError(t, f.svc.ActivateFromPayment(context.Background(), completedTx(u.ID, models.TierPro, models.PeriodMonthly)))

	require.NoError(t, f.svc.DowngradeToFree(context.Background(), u.ID))

	got := f.users.get(u.ID)
	assert.Equal(t, models.TierFree, got.Tier)
	assert.Equal(t, models.SubscriptionStatusExpired, got.SubscriptionStatus)
	assert.Nil(t, got.SubscriptionExpiry)
	assert.Nil(t, got.SchoolID)
}

func TestRunExpirySweep(t *testing.T) {
	f := newSubscriptionFixture(t)

	past := f.now.Add(-24 * time.Hour)
	future := f.now.Add(24 * time.Hour)

	for i := 0; i < 2; i++ {
		f.addUser(t, func(u *models.User) {
			u.Email = fmt.Sprintf("lapsed%d@example.test", i)
			u.Tier = models.TierPro
			u.SubscriptionExpiry = &past
		})
	}
	live := f.addUser(t, func(u *models.User) {
		u.Email = "live@example.test"
		u.Tier = models.TierPro
		u.SubscriptionExpiry = &future
	})

	expired, err := f.svc.RunExpirySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, expired)
	assert.Equal(t, models.SubscriptionStatusActive, f.users.get(live.ID).SubscriptionStatus)
}
