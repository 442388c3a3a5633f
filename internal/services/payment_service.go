package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"elimu_backend/internal/appErrors"
	"elimu_backend/internal/dto"
	"elimu_backend/internal/logger"
	"elimu_backend/internal/models"
	"elimu_backend/internal/ratelimit"
	"elimu_backend/internal/repositories"
	"elimu_backend/internal/services/payments"
)

// DarajaAPI is the STK push provider surface the service depends on.
type DarajaAPI interface {
	STKPush(ctx context.Context, req payments.STKPushRequest) (*payments.STKPushResponse, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*payments.STKQueryResult, error)
}

// PaystackAPI is the hosted-checkout provider surface.
type PaystackAPI interface {
	InitializeTransaction(ctx context.Context, req payments.InitializeRequest) (*payments.InitializeResponse, error)
}

// SubscriptionActivator is the lifecycle entry point a resolved payment
// triggers. Invoked at most once per transaction, by the winner of the
// terminal-status write.
type SubscriptionActivator interface {
	ActivateFromPayment(ctx context.Context, tx *models.PaymentTransaction) error
}

// PaymentConfig carries the tunables of the payment flow.
type PaymentConfig struct {
	MaxAmount      int64
	PollInterval   time.Duration
	PollAttempts   int
	PaystackSecret string
}

// PaymentService owns the transaction state machine: it initiates charges,
// reconciles callbacks, polls the provider as a fallback and drives the
// subscription effect exactly once per transaction.
type PaymentService struct {
	transactions  repositories.TransactionRepository
	events        repositories.WebhookEventRepository
	subscriptions SubscriptionActivator
	daraja        DarajaAPI
	paystack      PaystackAPI
	verifier      *payments.Verifier
	limiter       *ratelimit.Limiter
	cfg           PaymentConfig

	// sleep is context-aware and replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPaymentService(
	transactions repositories.TransactionRepository,
	events repositories.WebhookEventRepository,
	subscriptions SubscriptionActivator,
	daraja DarajaAPI,
	paystack PaystackAPI,
	verifier *payments.Verifier,
	limiter *ratelimit.Limiter,
	cfg PaymentConfig,
) *PaymentService {
	if cfg.MaxAmount <= 0 {
		cfg.MaxAmount = 150000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 30
	}
	return &PaymentService{
		transactions:  transactions,
		events:        events,
		subscriptions: subscriptions,
		daraja:        daraja,
		paystack:      paystack,
		verifier:      verifier,
		limiter:       limiter,
		cfg:           cfg,
		sleep:         sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// InitiateSTKPush validates the request, sends the charge and persists
// exactly one transaction row: pending on success, failed on provider
// rejection. Retry policy belongs to the caller.
func (s *PaymentService) InitiateSTKPush(ctx context.Context, userID string, req dto.InitiateSTKPushRequest) (*dto.InitiateSTKPushResponse, error) {
	if req.Amount <= 0 || req.Amount > s.cfg.MaxAmount {
		return nil, appErrors.ErrInvalidAmount.WithDetails(map[string]interface{}{
			"amount": req.Amount,
			"max":    s.cfg.MaxAmount,
		})
	}

	msisdn, err := payments.NormalizeMSISDN(req.PhoneNumber)
	if err != nil {
		return nil, appErrors.ErrInvalidPhone
	}

	tier := models.SubscriptionTier(req.Tier)
	period := models.BillingPeriod(req.Period)

	resp, err := s.daraja.STKPush(ctx, payments.STKPushRequest{
		PhoneNumber:      msisdn,
		Amount:           req.Amount,
		AccountReference: "ELIMU-" + string(tier),
		Description:      "Elimu subscription",
	})
	if err != nil {
		return nil, s.recordInitiationFailure(ctx, userID, msisdn, req.Amount, tier, period, err)
	}

	tx := &models.PaymentTransaction{
		UserID:            userID,
		PhoneNumber:       msisdn,
		Amount:            req.Amount,
		Currency:          "KES",
		Tier:              tier,
		Period:            period,
		Rail:              models.RailMpesa,
		Status:            models.TransactionPending,
		CheckoutRequestID: &resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		// The charge is in flight but we lost the record; the prompt may
		// still reach the user, so this must be loud.
		logger.CtxWithError(ctx, "CRITICAL: charge initiated but transaction row not persisted", err,
			"checkout_request_id", resp.CheckoutRequestID)
		return nil, appErrors.DatabaseError(err)
	}

	return &dto.InitiateSTKPushResponse{
		TransactionID:     tx.ID,
		CheckoutRequestID: resp.CheckoutRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// recordInitiationFailure maps a provider error and, for an outright
// rejection, persists the attempt as failed so it is never silently lost.
func (s *PaymentService) recordInitiationFailure(ctx context.Context, userID, msisdn string, amount int64, tier models.SubscriptionTier, period models.BillingPeriod, err error) error {
	var perr *payments.ProviderError
	if !errors.As(err, &perr) {
		return appErrors.InternalError(err)
	}

	switch perr.Kind {
	case payments.ErrorKindRejected:
		tx := &models.PaymentTransaction{
			UserID:      userID,
			PhoneNumber: msisdn,
			Amount:      amount,
			Currency:    "KES",
			Tier:        tier,
			Period:      period,
			Rail:        models.RailMpesa,
			Status:      models.TransactionFailed,
			ResultDesc:  perr.Description,
		}
		if createErr := s.transactions.Create(ctx, tx); createErr != nil {
			logger.CtxWithError(ctx, "failed to persist rejected charge attempt", createErr)
		}
		return appErrors.ErrProviderRejected.WithMessage(perr.Description)
	case payments.ErrorKindAuth:
		return appErrors.ErrProviderAuth.WithError(perr)
	default:
		return appErrors.ErrProviderUnavailable.WithError(perr)
	}
}

// ResolveMpesaCallback processes an inbound STK callback. It always
// produces a well-formed acknowledgment; internal failures are logged and
// leave the transaction pending for the poller or the timeout sweep.
func (s *PaymentService) ResolveMpesaCallback(ctx context.Context, raw []byte, signature string) (int, payments.MpesaAck) {
	accepted := payments.MpesaAck{ResultCode: 0, ResultDesc: "Accepted"}

	if err := s.verifier.Verify(raw, signature); err != nil {
		logger.CtxWarn(ctx, "callback signature rejected", "error", err.Error())
		return 401, payments.MpesaAck{ResultCode: 1, ResultDesc: "Invalid signature"}
	}

	cb, err := payments.ParseMpesaCallback(raw)
	if err != nil {
		// Malformed body from an authenticated sender: acknowledge so the
		// provider stops retrying, and leave a trace for operations.
		logger.CtxWithError(ctx, "malformed mpesa callback", err)
		return 200, accepted
	}

	ctx = logger.WithCorrelationID(ctx, cb.CheckoutRequestID)

	if !s.limiter.Allow(cb.CheckoutRequestID) {
		logger.CtxWarn(ctx, "callback rate limited")
		return 429, payments.MpesaAck{ResultCode: 1, ResultDesc: "Rate limited"}
	}

	eventID := s.recordEvent(ctx, "mpesa", cb.CheckoutRequestID, raw)

	tx, err := s.transactions.FindByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if err != nil {
		logger.CtxWithError(ctx, "callback lookup failed", err)
		s.finishEvent(ctx, eventID, "transaction lookup failed: "+err.Error())
		return 200, accepted
	}
	if tx == nil {
		// Not an error to the provider, but an operational anomaly for us.
		logger.CtxWarn(ctx, "unmatched callback: no transaction for correlation id")
		s.finishEvent(ctx, eventID, "no matching transaction")
		return 200, accepted
	}

	if tx.Status.Terminal() {
		// Duplicate delivery is expected; acknowledge and change nothing.
		s.finishEvent(ctx, eventID, "")
		return 200, accepted
	}

	status := payments.MapResultCode(cb.ResultCode)
	upd := repositories.TerminalUpdate{
		ResultDesc:    cb.ResultDesc,
		ReceiptNumber: cb.ReceiptNumber,
		PaidAt:        cb.PaidAt,
	}

	if err := s.resolveTerminal(ctx, tx, status, upd); err != nil {
		logger.CtxWithError(ctx, "callback resolution failed", err)
		s.finishEvent(ctx, eventID, err.Error())
		return 200, accepted
	}

	s.finishEvent(ctx, eventID, "")
	return 200, accepted
}

// PollTransaction is the fallback path: it queries the provider until a
// terminal outcome or until the attempt budget is exhausted, in which case
// the transaction is marked timeout.
func (s *PaymentService) PollTransaction(ctx context.Context, userID, transactionID string) (*dto.TransactionStatusResponse, error) {
	tx, err := s.transactions.FindByID(ctx, transactionID)
	if err != nil {
		return nil, appErrors.DatabaseError(err)
	}
	if tx == nil || tx.UserID != userID {
		return nil, appErrors.ErrTransactionNotFound
	}

	if tx.Status.Terminal() {
		return statusResponse(tx), nil
	}
	if tx.Rail != models.RailMpesa || tx.CheckoutRequestID == nil {
		return nil, appErrors.NewBadRequestError("Transaction is not pollable on this rail")
	}

	checkoutID := *tx.CheckoutRequestID
	ctx = logger.WithCorrelationID(ctx, checkoutID)

	for attempt := 0; attempt < s.cfg.PollAttempts; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
				return nil, appErrors.Wrap(err, appErrors.CodePollTimeout, "Polling abandoned", 499)
			}
		}

		result, err := s.daraja.QueryStatus(ctx, checkoutID)
		if err != nil {
			// A transient provider error burns an attempt; the budget is
			// the ceiling either way.
			logger.CtxWarn(ctx, "status query failed", "attempt", attempt, "error", err.Error())
			continue
		}
		if result.Pending {
			continue
		}

		status := payments.MapResultCode(result.ResultCode)
		upd := repositories.TerminalUpdate{ResultDesc: result.ResultDesc}
		if err := s.resolveTerminal(ctx, tx, status, upd); err != nil {
			return nil, err
		}
		return s.reload(ctx, transactionID)
	}

	// Exhausted without a terminal outcome. Timeout is terminal and distinct
	// from failed and cancelled; a later callback for this transaction is
	// treated as stale and reconciled manually.
	won, err := s.transactions.MarkTerminal(ctx, tx.ID, models.TransactionTimeout, repositories.TerminalUpdate{
		ResultDesc: "no terminal provider outcome within the polling budget",
	})
	if err != nil {
		return nil, appErrors.DatabaseError(err)
	}
	if won {
		logger.CtxInfo(ctx, "transaction timed out after poll exhaustion", "transaction_id", tx.ID)
	}
	return s.reload(ctx, transactionID)
}

// GetTransaction returns the current state of an owned transaction.
func (s *PaymentService) GetTransaction(ctx context.Context, userID, transactionID string) (*dto.TransactionStatusResponse, error) {
	tx, err := s.transactions.FindByID(ctx, transactionID)
	if err != nil {
		return nil, appErrors.DatabaseError(err)
	}
	if tx == nil || tx.UserID != userID {
		return nil, appErrors.ErrTransactionNotFound
	}
	return statusResponse(tx), nil
}

// InitializePaystack creates a transaction keyed by a locally chosen unique
// reference and asks the hosted-checkout provider for a payment link.
func (s *PaymentService) InitializePaystack(ctx context.Context, userID string, req dto.InitializePaystackRequest) (*dto.InitializePaystackResponse, error) {
	if req.Amount <= 0 {
		return nil, appErrors.ErrInvalidAmount
	}

	reference := uuid.NewString()
	tx := &models.PaymentTransaction{
		UserID:    userID,
		Amount:    req.Amount,
		Currency:  "KES",
		Tier:      models.SubscriptionTier(req.Tier),
		Period:    models.BillingPeriod(req.Period),
		Rail:      models.RailPaystack,
		Status:    models.TransactionPending,
		Reference: &reference,
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		return nil, appErrors.DatabaseError(err)
	}

	resp, err := s.paystack.InitializeTransaction(ctx, payments.InitializeRequest{
		Email:     req.Email,
		Amount:    req.Amount,
		Currency:  "KES",
		Reference: reference,
	})
	if err != nil {
		var perr *payments.ProviderError
		desc := err.Error()
		if errors.As(err, &perr) {
			desc = perr.Description
		}
		if _, markErr := s.transactions.MarkTerminal(ctx, tx.ID, models.TransactionFailed, repositories.TerminalUpdate{ResultDesc: desc}); markErr != nil {
			logger.CtxWithError(ctx, "failed to mark rejected checkout transaction", markErr)
		}
		if errors.As(err, &perr) && perr.Kind == payments.ErrorKindAuth {
			return nil, appErrors.ErrProviderAuth.WithError(perr)
		}
		return nil, appErrors.ErrProviderRejected.WithMessage(desc)
	}

	return &dto.InitializePaystackResponse{
		TransactionID:    tx.ID,
		Reference:        reference,
		AuthorizationURL: resp.AuthorizationURL,
	}, nil
}

// ResolvePaystackWebhook processes the hosted-checkout webhook. The provider
// retries on non-2xx, so anything after authentication answers 200.
func (s *PaymentService) ResolvePaystackWebhook(ctx context.Context, raw []byte, signature string) (int, map[string]string) {
	ok := map[string]string{"status": "ok"}

	if err := payments.VerifyPaystackSignature(s.cfg.PaystackSecret, raw, signature); err != nil {
		logger.CtxWarn(ctx, "paystack signature rejected", "error", err.Error())
		return 401, map[string]string{"status": "invalid signature"}
	}

	event, err := payments.ParsePaystackEvent(raw)
	if err != nil {
		logger.CtxWithError(ctx, "malformed paystack webhook", err)
		return 200, ok
	}

	ctx = logger.WithCorrelationID(ctx, event.Data.Reference)

	if !s.limiter.Allow("paystack:" + event.Data.Reference) {
		logger.CtxWarn(ctx, "paystack webhook rate limited")
		return 429, map[string]string{"status": "rate limited"}
	}

	eventID := s.recordEvent(ctx, "paystack", event.Data.Reference, raw)

	if event.Event != "charge.success" && event.Event != "charge.failed" {
		s.finishEvent(ctx, eventID, "")
		return 200, ok
	}

	tx, err := s.transactions.FindByReference(ctx, event.Data.Reference)
	if err != nil {
		logger.CtxWithError(ctx, "paystack webhook lookup failed", err)
		s.finishEvent(ctx, eventID, "transaction lookup failed: "+err.Error())
		return 200, ok
	}
	if tx == nil {
		logger.CtxWarn(ctx, "unmatched paystack webhook: no transaction for reference")
		s.finishEvent(ctx, eventID, "no matching transaction")
		return 200, ok
	}
	if tx.Status.Terminal() {
		s.finishEvent(ctx, eventID, "")
		return 200, ok
	}

	var status models.TransactionStatus
	upd := repositories.TerminalUpdate{ResultDesc: event.Data.GatewayResponse}

	switch {
	case event.Event == "charge.failed" || event.Data.Status != "success":
		status = models.TransactionFailed
	case event.Data.Amount != tx.Amount*100:
		// A success event whose settled amount disagrees with ours is not a
		// success we can honor.
		status = models.TransactionFailed
		upd.ResultDesc = "settled amount does not match the initiated amount"
	default:
		status = models.TransactionCompleted
		upd.ReceiptNumber = event.Data.Reference
		now := time.Now()
		upd.PaidAt = &now
	}

	if err := s.resolveTerminal(ctx, tx, status, upd); err != nil {
		logger.CtxWithError(ctx, "paystack webhook resolution failed", err)
		s.finishEvent(ctx, eventID, err.Error())
		return 200, ok
	}

	s.finishEvent(ctx, eventID, "")
	return 200, ok
}

// RunPendingSweep marks long-pending transactions as timed out.
func (s *PaymentService) RunPendingSweep(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.transactions.SweepStalePending(ctx, maxAge)
}

// resolveTerminal performs the single atomic pending->terminal transition.
// Losing the race is success: the outcome is already recorded and the
// subscription effect belongs to the winner.
func (s *PaymentService) resolveTerminal(ctx context.Context, tx *models.PaymentTransaction, status models.TransactionStatus, upd repositories.TerminalUpdate) error {
	won, err := s.transactions.MarkTerminal(ctx, tx.ID, status, upd)
	if err != nil {
		return appErrors.DatabaseError(err)
	}
	if !won {
		logger.CtxInfo(ctx, "terminal transition already applied by another actor", "transaction_id", tx.ID)
		return nil
	}

	logger.CtxInfo(ctx, "transaction resolved", "transaction_id", tx.ID, "status", string(status))

	if status != models.TransactionCompleted {
		return nil
	}

	resolved := *tx
	resolved.Status = status
	resolved.ResultDesc = upd.ResultDesc
	resolved.ReceiptNumber = upd.ReceiptNumber
	resolved.PaidAt = upd.PaidAt

	if err := s.subscriptions.ActivateFromPayment(ctx, &resolved); err != nil {
		// The money moved but the entitlement did not. Loud log for
		// operations; the completed transaction stands.
		logger.CtxWithError(ctx, "CRITICAL: completed payment but activation failed", err,
			"transaction_id", tx.ID)
		return err
	}
	return nil
}

func (s *PaymentService) reload(ctx context.Context, transactionID string) (*dto.TransactionStatusResponse, error) {
	tx, err := s.transactions.FindByID(ctx, transactionID)
	if err != nil {
		return nil, appErrors.DatabaseError(err)
	}
	if tx == nil {
		return nil, appErrors.ErrTransactionNotFound
	}
	return statusResponse(tx), nil
}

func (s *PaymentService) recordEvent(ctx context.Context, provider, correlationID string, raw []byte) string {
	if s.events == nil {
		return ""
	}
	event := &models.WebhookEvent{
		Provider:       provider,
		CorrelationID:  correlationID,
		Payload:        datatypes.JSON(raw),
		SignatureValid: true,
	}
	if err := s.events.Create(ctx, event); err != nil {
		logger.CtxWithError(ctx, "failed to persist webhook event", err)
		return ""
	}
	return event.ID
}

func (s *PaymentService) finishEvent(ctx context.Context, eventID, processingError string) {
	if s.events == nil || eventID == "" {
		return
	}
	if err := s.events.MarkProcessed(ctx, eventID, processingError); err != nil {
		logger.CtxWithError(ctx, "failed to mark webhook event processed", err)
	}
}

func statusResponse(tx *models.PaymentTransaction) *dto.TransactionStatusResponse {
	return &dto.TransactionStatusResponse{
		TransactionID: tx.ID,
		Status:        string(tx.Status),
		Detail:        tx.ResultDesc,
		ReceiptNumber: tx.ReceiptNumber,
		PaidAt:        tx.PaidAt,
	}
}
