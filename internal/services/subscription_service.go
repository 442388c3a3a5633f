package services

import (
	"context"
	"fmt"
	"time"

	"elimu_backend/internal/appErrors"
	"elimu_backend/internal/dto"
	"elimu_backend/internal/email"
	"elimu_backend/internal/logger"
	"elimu_backend/internal/models"
	"elimu_backend/internal/repositories"
)

const expirySweepBatch = 200

// SubscriptionService applies every entitlement transition: activation,
// renewal, expiry, downgrade and cancellation, including the school cascade.
// Nothing else mutates subscription fields.
type SubscriptionService struct {
	users   repositories.UserRepository
	schools repositories.SchoolRepository
	email   email.Provider

	schoolSlots int
	now         func() time.Time
}

func NewSubscriptionService(users repositories.UserRepository, schools repositories.SchoolRepository, emailProvider email.Provider, schoolSlots int) *SubscriptionService {
	if schoolSlots <= 0 {
		schoolSlots = 20
	}
	return &SubscriptionService{
		users:       users,
		schools:     schools,
		email:       emailProvider,
		schoolSlots: schoolSlots,
		now:         time.Now,
	}
}

func periodDuration(period models.BillingPeriod) time.Duration {
	if period == models.PeriodAnnual {
		return 365 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

// ActivateFromPayment applies the entitlement effect of a completed
// transaction. The caller guarantees at-most-once invocation per
// transaction: only the winner of the terminal-status write calls this.
func (s *SubscriptionService) ActivateFromPayment(ctx context.Context, tx *models.PaymentTransaction) error {
	user, err := s.users.FindByID(ctx, tx.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return appErrors.ErrUserNotFound.WithDetails(map[string]string{"user_id": tx.UserID})
	}

	if user.Tier == tx.Tier {
		err = s.Renew(ctx, user.ID, tx.Tier, tx.Period)
	} else {
		err = s.Activate(ctx, user.ID, tx.Tier, tx.Period, tx.ReceiptNumber)
	}
	if err != nil {
		return err
	}

	s.sendReceipt(user, tx)
	return nil
}

// Activate grants the tier from now: expiry = now + 30 days (monthly) or
// 365 days (annual). The school tier additionally creates or refreshes the
// group entity with the payer as its admin.
func (s *SubscriptionService) Activate(ctx context.Context, userID string, tier models.SubscriptionTier, period models.BillingPeriod, paymentRef string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return appErrors.ErrUserNotFound
	}

	now := s.now()
	expiry := now.Add(periodDuration(period))

	fields := map[string]interface{}{
		"tier":                tier,
		"subscription_status": models.SubscriptionStatusActive,
		"subscription_expiry": expiry,
		"last_payment_at":     now,
	}

	if tier == models.TierSchool {
		school, err := s.ensureSchool(ctx, user, expiry)
		if err != nil {
			return err
		}
		adminRole := models.SchoolRoleAdmin
		fields["school_id"] = school.ID
		fields["school_role"] = adminRole
	}

	return s.users.UpdateFields(ctx, userID, fields)
}

// Renew extends entitlement. An unexpired subscription extends from its
// current expiry; a lapsed one extends from now, so unused time never
// stacks past the lapse.
func (s *SubscriptionService) Renew(ctx context.Context, userID string, tier models.SubscriptionTier, period models.BillingPeriod) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return appErrors.ErrUserNotFound
	}

	now := s.now()
	base := now
	if user.SubscriptionExpiry != nil && user.SubscriptionExpiry.After(now) {
		base = *user.SubscriptionExpiry
	}
	expiry := base.Add(periodDuration(period))

	fields := map[string]interface{}{
		"tier":                tier,
		"subscription_status": models.SubscriptionStatusActive,
		"subscription_expiry": expiry,
		"last_payment_at":     now,
	}

	if tier == models.TierSchool {
		school, err := s.ensureSchool(ctx, user, expiry)
		if err != nil {
			return err
		}
		adminRole := models.SchoolRoleAdmin
		fields["school_id"] = school.ID
		fields["school_role"] = adminRole
	}

	return s.users.UpdateFields(ctx, userID, fields)
}

// Expire marks the account expired. A school admin drags the whole group
// down: the school is marked expired and every other member is reset to
// free/active with cleared group linkage, in one atomic batch.
func (s *SubscriptionService) Expire(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return appErrors.ErrUserNotFound
	}

	adminFields := map[string]interface{}{
		"subscription_status": models.SubscriptionStatusExpired,
	}

	return s.applyDowngrade(ctx, user, adminFields)
}

// DowngradeToFree is the hard reset used after refunds: tier cleared,
// expiry and group linkage dropped. Same cascade rule as Expire for
// school admins.
func (s *SubscriptionService) DowngradeToFree(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return appErrors.ErrUserNotFound
	}

	adminFields := map[string]interface{}{
		"tier":                models.TierFree,
		"subscription_status": models.SubscriptionStatusExpired,
		"subscription_expiry": nil,
		"school_id":           nil,
		"school_role":         nil,
	}

	return s.applyDowngrade(ctx, user, adminFields)
}

// Cancel stops renewal but keeps access until natural expiry; the expiry
// sweep performs the eventual transition to expired.
func (s *SubscriptionService) Cancel(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return appErrors.ErrUserNotFound
	}
	if user.SubscriptionStatus == models.SubscriptionStatusCancelled {
		return appErrors.ErrSubscriptionCancelled
	}

	return s.users.UpdateFields(ctx, userID, map[string]interface{}{
		"subscription_status": models.SubscriptionStatusCancelled,
	})
}

// CurrentSubscription reports entitlement state, lazily expiring a lapsed
// subscription first so gated features are never granted past expiry.
func (s *SubscriptionService) CurrentSubscription(ctx context.Context, userID string) (*dto.SubscriptionInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, appErrors.ErrUserNotFound
	}

	if s.lapsed(user) {
		if err := s.Expire(ctx, userID); err != nil {
			return nil, err
		}
		user, err = s.users.FindByID(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	info := &dto.SubscriptionInfo{
		Tier:          string(user.Tier),
		Status:        string(user.SubscriptionStatus),
		Expiry:        user.SubscriptionExpiry,
		LastPaymentAt: user.LastPaymentAt,
		SchoolID:      user.SchoolID,
	}
	if user.SchoolRole != nil {
		role := string(*user.SchoolRole)
		info.SchoolRole = &role
	}
	return info, nil
}

// EnrollMember adds an account to a school, bounded by the slot capacity.
// The admin occupies one slot.
func (s *SubscriptionService) EnrollMember(ctx context.Context, schoolID, memberID string) error {
	school, err := s.schools.FindByID(ctx, schoolID)
	if err != nil {
		return err
	}
	if school == nil {
		return appErrors.ErrSchoolNotFound
	}
	if school.Status != models.SubscriptionStatusActive {
		return appErrors.ErrForbidden.WithMessage("School subscription is not active")
	}

	count, err := s.schools.CountMembers(ctx, schoolID)
	if err != nil {
		return err
	}
	if count >= int64(school.Slots) {
		return appErrors.ErrSchoolSlotsExceeded
	}

	memberRole := models.SchoolRoleMember
	return s.users.UpdateFields(ctx, memberID, map[string]interface{}{
		"tier":                models.TierSchool,
		"subscription_status": models.SubscriptionStatusActive,
		"subscription_expiry": school.Expiry,
		"school_id":           school.ID,
		"school_role":         memberRole,
	})
}

// EnrollMemberByAdmin resolves the caller's school group and enrolls the
// target account into it.
func (s *SubscriptionService) EnrollMemberByAdmin(ctx context.Context, adminID, memberID string) error {
	school, err := s.schools.FindByAdminID(ctx, adminID)
	if err != nil {
		return err
	}
	if school == nil {
		return appErrors.ErrSchoolNotFound
	}
	return s.EnrollMember(ctx, school.ID, memberID)
}

// RunExpirySweep transitions lapsed accounts to expired. School admins
// cascade; reruns are safe because each downgrade is idempotent.
func (s *SubscriptionService) RunExpirySweep(ctx context.Context) (int, error) {
	users, err := s.users.ListExpiredActive(ctx, s.now(), expirySweepBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range users {
		if err := s.Expire(ctx, users[i].ID); err != nil {
			logger.CtxWithError(ctx, "expiry sweep: failed to expire account", err, "user_id", users[i].ID)
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *SubscriptionService) lapsed(user *models.User) bool {
	if user.Tier == models.TierFree || user.SubscriptionExpiry == nil {
		return false
	}
	switch user.SubscriptionStatus {
	case models.SubscriptionStatusActive, models.SubscriptionStatusTrial, models.SubscriptionStatusCancelled:
		return user.SubscriptionExpiry.Before(s.now())
	}
	return false
}

// applyDowngrade routes through the school cascade when the account is a
// group admin, otherwise applies the fields directly.
func (s *SubscriptionService) applyDowngrade(ctx context.Context, user *models.User, adminFields map[string]interface{}) error {
	isAdmin := user.SchoolID != nil && user.SchoolRole != nil && *user.SchoolRole == models.SchoolRoleAdmin
	if !isAdmin {
		return s.users.UpdateFields(ctx, user.ID, adminFields)
	}

	school, err := s.schools.FindByID(ctx, *user.SchoolID)
	if err != nil {
		return err
	}
	if school == nil {
		// Dangling linkage; downgrade the account alone.
		return s.users.UpdateFields(ctx, user.ID, adminFields)
	}

	memberFields := map[string]interface{}{
		"tier":                models.TierFree,
		"subscription_status": models.SubscriptionStatusActive,
		"subscription_expiry": nil,
		"school_id":           nil,
		"school_role":         nil,
	}

	if err := s.schools.ExpireCascade(ctx, school, adminFields, memberFields); err != nil {
		return appErrors.ErrCascadeFailure.WithError(err)
	}
	return nil
}

func (s *SubscriptionService) ensureSchool(ctx context.Context, admin *models.User, expiry time.Time) (*models.School, error) {
	school, err := s.schools.FindByAdminID(ctx, admin.ID)
	if err != nil {
		return nil, err
	}

	if school == nil {
		school = &models.School{
			Name:    fmt.Sprintf("%s's school", admin.FullName),
			AdminID: admin.ID,
			Slots:   s.schoolSlots,
			Status:  models.SubscriptionStatusActive,
			Expiry:  &expiry,
		}
		if err := s.schools.Create(ctx, school); err != nil {
			return nil, err
		}
		return school, nil
	}

	school.Status = models.SubscriptionStatusActive
	school.Expiry = &expiry
	if err := s.schools.Save(ctx, school); err != nil {
		return nil, err
	}
	return school, nil
}

func (s *SubscriptionService) sendReceipt(user *models.User, tx *models.PaymentTransaction) {
	if s.email == nil || user.Email == "" {
		return
	}
	if err := s.email.SendPaymentReceipt(user.Email, string(tx.Tier), tx.Amount, tx.Currency, tx.ReceiptNumber); err != nil {
		logger.WithError(err).Warn("failed to send payment receipt", "user_id", user.ID, "transaction_id", tx.ID)
	}
}
