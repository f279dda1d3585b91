package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/storefront/domain"
	r "github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const maxOrderNumberAttempts = 3

type ConfirmationOptions struct {
	StoreTimeout    time.Duration
	ProviderTimeout time.Duration
	LockTTL         time.Duration
}

// ConfirmationHandler turns verified "checkout completed" events into orders.
// Locker and journal are optional.
type ConfirmationHandler struct {
	verifier EventVerifier
	orders   OrderStore
	provider PaymentProvider
	locker   Locker
	journal  DeliveryJournal
	opts     ConfirmationOptions

	now            func() time.Time
	newOrderNumber func(time.Time) string
}

func NewConfirmationHandler(
	verifier EventVerifier,
	orders OrderStore,
	provider PaymentProvider,
	locker Locker,
	journal DeliveryJournal,
	opts ConfirmationOptions,
) *ConfirmationHandler {
	return &ConfirmationHandler{
		verifier:       verifier,
		orders:         orders,
		provider:       provider,
		locker:         locker,
		journal:        journal,
		opts:           opts,
		now:            time.Now,
		newOrderNumber: NewOrderNumber,
	}
}

// HandleDelivery runs one webhook delivery through reconciliation. The
// returned error is nil for acknowledged outcomes except rejected and dropped
// deliveries, which return domain.ErrSignatureInvalid and
// domain.ErrMalformedMetadata respectively. Transient failures satisfy IsTransient.
func (h *ConfirmationHandler) HandleDelivery(ctx context.Context, payload []byte, signature string) (*ReconciliationResult, error) {
	result := &ReconciliationResult{State: StateReceived}
	receivedAt := h.now()

	var err error
	defer func() {
		h.record(ctx, result, receivedAt, err)
	}()

	event, verifyErr := h.verifier.VerifyEvent(payload, signature)
	if errors.Is(verifyErr, domain.ErrMalformedMetadata) {
		result.State = StateDropped
		err = verifyErr
		slog.ErrorContext(ctx, "authentic payment event could not be decoded, dropping", "error", verifyErr)
		return result, err
	}
	if verifyErr != nil {
		result.State = StateRejected
		err = verifyErr
		if !errors.Is(err, domain.ErrSignatureInvalid) {
			err = fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, verifyErr)
		}
		slog.WarnContext(ctx, "payment event rejected", "error", verifyErr)
		return result, err
	}

	result.State = StateVerified
	result.EventID = event.EventID()
	result.Kind = event.Kind()

	switch e := event.(type) {
	case *domain.CheckoutCompleted:
		err = h.reconcile(ctx, e, result)
	case *domain.PaymentPending:
		result.State = StateAwaitingPay
		result.PaymentID = e.PaymentID
		result.SessionID = e.SessionID
		slog.InfoContext(ctx, "checkout completed before payment settled, waiting for async payment event",
			"event_id", e.ID, "session_id", e.SessionID, "payment_status", e.PaymentStatus)
	default:
		result.State = StateIgnored
		slog.InfoContext(ctx, "payment event ignored", "event_id", event.EventID(), "kind", event.Kind())
	}
	return result, err
}

func (h *ConfirmationHandler) reconcile(ctx context.Context, event *domain.CheckoutCompleted, result *ReconciliationResult) error {
	ctx, span := tracer.Start(ctx, "confirmation.reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.event_id", event.ID),
		attribute.String("payment.session_id", event.SessionID),
		attribute.String("payment.id", event.PaymentID),
	)

	result.PaymentID = event.PaymentID
	result.SessionID = event.SessionID

	if event.PaymentID == "" {
		result.State = StateDropped
		err := &domain.MetadataError{Field: "paymentId", Reason: "missing on completed session"}
		slog.ErrorContext(ctx, "completed session without payment id, dropping event",
			"event_id", event.ID, "session_id", event.SessionID)
		return err
	}

	if h.locker != nil {
		release, acquired, err := h.locker.Acquire(ctx, "payment:"+event.PaymentID, h.opts.LockTTL)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "payment lock unavailable, relying on unique payment id",
				"payment_id", event.PaymentID, "error", err)
		case !acquired:
			result.State = StateFailed
			return ErrDeliveryInFlight
		default:
			defer release()
		}
	}

	storeCtx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
	existing, err := h.orders.FindOrderByPaymentID(storeCtx, event.PaymentID)
	cancel()
	switch {
	case err == nil:
		result.State = StateDeduplicated
		result.Order = existing
		slog.InfoContext(ctx, "payment already materialized",
			"payment_id", event.PaymentID, "order_id", existing.ID, "order_number", existing.OrderNumber)
		return nil
	case !errors.Is(err, r.ErrOrderNotFound):
		result.State = StateFailed
		return transient("look up order by payment id", err)
	}

	meta, err := domain.DecodeCheckoutMetadata(event.Metadata)
	if err != nil {
		result.State = StateDropped
		slog.ErrorContext(ctx, "checkout metadata malformed, dropping event",
			"event_id", event.ID, "session_id", event.SessionID, "payment_id", event.PaymentID, "error", err)
		return err
	}

	providerCtx, cancel := context.WithTimeout(ctx, h.opts.ProviderTimeout)
	paid, err := h.provider.ListPaidLineItems(providerCtx, event.SessionID)
	cancel()
	if err != nil {
		result.State = StateFailed
		return transient("list paid line items", err)
	}

	order, err := h.buildOrder(event, meta, paid)
	if err != nil {
		result.State = StateDropped
		slog.ErrorContext(ctx, "paid line items disagree with checkout metadata, dropping event",
			"event_id", event.ID, "session_id", event.SessionID, "payment_id", event.PaymentID, "error", err)
		return err
	}
	if event.AmountTotal != 0 && event.AmountTotal != order.Total {
		slog.WarnContext(ctx, "charged amount differs from line total",
			"payment_id", event.PaymentID, "amount_total", event.AmountTotal, "line_total", order.Total)
	}

	adjustments, err := h.materialize(ctx, order)
	switch {
	case errors.Is(err, r.ErrDuplicatePayment):
		result.State = StateDeduplicated
		slog.InfoContext(ctx, "concurrent delivery materialized payment first", "payment_id", event.PaymentID)
		return nil
	case err != nil:
		result.State = StateFailed
		return transient("materialize order", err)
	}

	result.State = StateStockAdjusted
	result.Order = order
	result.Adjustments = adjustments

	for _, adj := range adjustments {
		if adj.Missing {
			slog.WarnContext(ctx, "ordered product missing from catalog, stock not adjusted",
				"order_id", order.ID, "product_id", adj.ProductID)
		} else if adj.Oversold() {
			slog.WarnContext(ctx, "product oversold",
				"order_id", order.ID, "product_id", adj.ProductID, "remaining", adj.Remaining)
		}
	}
	slog.InfoContext(ctx, "order materialized",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"payment_id", order.PaymentID,
		"total", order.Total)
	return nil
}

// materialize writes the order and its stock decrements, regenerating the
// order number if it collides with an existing one.
func (h *ConfirmationHandler) materialize(ctx context.Context, order *domain.Order) ([]domain.StockAdjustment, error) {
	ctx, span := tracer.Start(ctx, "confirmation.materialize")
	defer span.End()

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		order.OrderNumber = h.newOrderNumber(order.CreatedAt)

		storeCtx, cancel := context.WithTimeout(ctx, h.opts.StoreTimeout)
		adjustments, err := h.orders.MaterializeOrder(storeCtx, order)
		cancel()
		if err == nil {
			return adjustments, nil
		}
		if !errors.Is(err, r.ErrOrderNumberTaken) {
			return nil, err
		}
		lastErr = err
		slog.WarnContext(ctx, "order number collision, regenerating", "order_number", order.OrderNumber)
	}
	return nil, lastErr
}

func (h *ConfirmationHandler) buildOrder(event *domain.CheckoutCompleted, meta *domain.CheckoutMetadata, paid []domain.PaidLineItem) (*domain.Order, error) {
	if len(paid) != len(meta.Items) {
		return nil, &domain.MetadataError{
			Field:  domain.MetaProductIDs,
			Reason: fmt.Sprintf("%d products in metadata but %d paid line items", len(meta.Items), len(paid)),
		}
	}

	paidByID := make(map[string]domain.PaidLineItem, len(paid))
	for _, p := range paid {
		paidByID[p.ProductID] = p
	}

	items := make([]domain.OrderLineItem, len(meta.Items))
	for i, m := range meta.Items {
		p, ok := paidByID[m.ProductID]
		if !ok {
			return nil, &domain.MetadataError{
				Field:  domain.MetaProductIDs,
				Reason: fmt.Sprintf("product %s has no paid line item", m.ProductID),
			}
		}
		if p.Quantity != m.Quantity {
			return nil, &domain.MetadataError{
				Field:  domain.MetaQuantities,
				Reason: fmt.Sprintf("product %s: metadata quantity %d, paid quantity %d", m.ProductID, m.Quantity, p.Quantity),
			}
		}
		items[i] = domain.OrderLineItem{
			ProductID:       m.ProductID,
			ProductName:     p.Description,
			Quantity:        m.Quantity,
			PriceAtPurchase: p.UnitAmount,
		}
	}

	email := meta.BuyerEmail
	if email == "" {
		email = event.Customer.Email
	}

	now := h.now().UTC()
	order := &domain.Order{
		ID:               uuid.New(),
		BuyerID:          meta.BuyerID,
		CustomerRecordID: meta.CustomerRecordID,
		Email:            email,
		CustomerName:     event.Customer.Name,
		Items:            items,
		Currency:         event.Currency,
		Status:           domain.OrderStatusPaid,
		ShippingAddress:  event.Customer.Address,
		PaymentID:        event.PaymentID,
		SessionID:        event.SessionID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	order.Total = order.LineTotal()
	return order, nil
}

func (h *ConfirmationHandler) record(ctx context.Context, result *ReconciliationResult, receivedAt time.Time, err error) {
	// unauthenticated traffic must not cause durable writes
	if h.journal == nil || result.State == StateRejected {
		return
	}
	rec := &DeliveryRecord{
		EventID:     result.EventID,
		Kind:        result.Kind,
		PaymentID:   result.PaymentID,
		SessionID:   result.SessionID,
		State:       result.State,
		ReceivedAt:  receivedAt,
		CompletedAt: h.now(),
	}
	if result.Order != nil {
		rec.OrderID = result.Order.ID.String()
	}
	if err != nil {
		rec.Error = err.Error()
	}

	journalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.opts.StoreTimeout)
	defer cancel()
	if jErr := h.journal.Record(journalCtx, rec); jErr != nil {
		slog.WarnContext(ctx, "failed to journal payment delivery", "event_id", rec.EventID, "error", jErr)
	}
}
