// Package checkout drives a session through cart, delivery, payment and
// confirmation, and submits the resulting order.
package checkout

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/coupon"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/delivery"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/events"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/pricing"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type CartReader interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)
	Clear(ctx context.Context, sessionID string) error
}

type CouponService interface {
	Validate(ctx context.Context, code string, amount money.Amount) (*coupon.Validation, error)
	Apply(ctx context.Context, couponID, orderID string) error
}

type OrderService interface {
	CreateOrder(ctx context.Context, order domain.Order, key string) (*domain.Confirmation, error)
}

type Deps struct {
	Cart     CartReader
	States   StateStore
	Delivery *delivery.Selector
	Pricing  pricing.Strategy
	Coupons  CouponService
	Orders   OrderService
	Bus      *events.Bus
}

type Config struct {
	// Timeout bounds every collaborator call.
	Timeout           time.Duration
	MaxSubmitAttempts int
	RetryBackoff      time.Duration
	// Location is the restaurant's time zone, used for the past-time check.
	Location *time.Location
}

const lockStripes = 64

type Controller struct {
	Deps
	cfg    Config
	guard  *delivery.RequestGuard
	locks  [lockStripes]sync.Mutex
	now    func() time.Time
	newKey func() string
	logger *zap.Logger
}

func NewController(deps Deps, cfg Config, logger *zap.Logger) *Controller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxSubmitAttempts <= 0 {
		cfg.MaxSubmitAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		Deps:   deps,
		cfg:    cfg,
		guard:  delivery.NewRequestGuard(),
		now:    time.Now,
		newKey: func() string { return ulid.Make().String() },
		logger: logger,
	}
}

// WithClock replaces the wall clock used for the past-time check.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// Summary is the read-only order recap shown on the confirmation step.
type Summary struct {
	Items         []domain.CartLine   `json:"items"`
	ItemCount     int                 `json:"item_count"`
	Delivery      domain.DeliveryInfo `json:"delivery"`
	Payment       domain.PaymentInfo  `json:"payment"`
	Coupon        *domain.Coupon      `json:"coupon,omitempty"`
	Totals        domain.OrderTotals  `json:"totals"`
	TermsAccepted bool                `json:"terms_accepted"`
}

// Outcome is returned by every state-changing call. An invalid Result means
// the change was rejected and State is what is stored.
type Outcome struct {
	State   *domain.CheckoutState   `json:"state"`
	Result  domain.ValidationResult `json:"result"`
	Summary *Summary                `json:"summary,omitempty"`
	// Notice reports a side effect the user should see, such as a coupon
	// that no longer applies after a cart change.
	Notice string `json:"notice,omitempty"`
}

func (c *Controller) lock(sessionID string) func() {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	m := &c.locks[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

// State returns the stored state with totals recomputed from the live cart.
func (c *Controller) State(ctx context.Context, sessionID string) (*Outcome, error) {
	defer c.lock(sessionID)()

	st, cart, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	notice, err := c.refreshTotals(ctx, st, cart)
	if err != nil {
		return nil, err
	}
	if notice != "" {
		if err := c.States.Save(ctx, st); err != nil {
			return nil, err
		}
	}
	out := &Outcome{State: st, Result: domain.Valid(), Notice: notice}
	if st.CurrentStep == domain.StepConfirmation {
		out.Summary = buildSummary(st, cart)
	}
	return out, nil
}

func (c *Controller) ValidateStep(ctx context.Context, sessionID string, step domain.Step) (domain.ValidationResult, error) {
	defer c.lock(sessionID)()

	st, cart, err := c.load(ctx, sessionID)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	res, changed, err := c.validateStep(ctx, st, cart, step)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	if changed {
		if err := c.States.Save(ctx, st); err != nil {
			return domain.ValidationResult{}, err
		}
	}
	return res, nil
}

// validateStep checks the gate of one step. It may re-run the delivery
// strategy, in which case changed is true and st holds the new result.
func (c *Controller) validateStep(ctx context.Context, st *domain.CheckoutState, cart *domain.Cart, step domain.Step) (res domain.ValidationResult, changed bool, err error) {
	switch step {
	case domain.StepCart:
		if cart.IsEmpty() {
			return domain.Invalid("cart", "your cart is empty"), false, nil
		}
		return domain.Valid(), false, nil

	case domain.StepDelivery:
		return c.validateDelivery(ctx, st)

	case domain.StepPayment:
		if st.Payment == nil || st.Payment.Mode == "" {
			return domain.Invalid("payment", "select a payment method"), false, nil
		}
		return domain.Valid(), false, nil

	case domain.StepConfirmation:
		for _, s := range []domain.Step{domain.StepCart, domain.StepDelivery, domain.StepPayment} {
			r, ch, err := c.validateStep(ctx, st, cart, s)
			changed = changed || ch
			if err != nil || !r.Valid {
				return r, changed, err
			}
		}
		if !st.TermsAccepted {
			return domain.Invalid("terms", ErrTermsNotAccepted.Error()), changed, nil
		}
		return domain.Valid(), changed, nil
	}
	return domain.ValidationResult{}, false, fmt.Errorf("%w: unknown step %d", ErrIllegalTransition, step)
}

func (c *Controller) validateDelivery(ctx context.Context, st *domain.CheckoutState) (domain.ValidationResult, bool, error) {
	d := st.Delivery
	if d == nil || d.Mode == "" {
		return domain.Invalid("mode", "choose pickup or delivery"), false, nil
	}
	if res := c.checkSchedule(d); !res.Valid {
		return res, false, nil
	}
	if d.Mode == domain.DeliveryModeDelivery {
		if d.Address == nil || strings.TrimSpace(*d.Address) == "" {
			return domain.Invalid("address", "delivery address is required"), false, nil
		}
		if d.Zip == nil || strings.TrimSpace(*d.Zip) == "" {
			return domain.Invalid("zip", "postal code is required"), false, nil
		}
	}
	if d.Validated {
		return domain.Valid(), false, nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.Delivery.Apply(ctx, d, st.FeeOverride)
	if err != nil {
		return domain.ValidationResult{}, false, err
	}
	return res, true, nil
}

func (c *Controller) checkSchedule(d *domain.DeliveryInfo) domain.ValidationResult {
	if strings.TrimSpace(d.Date) == "" {
		return domain.Invalid("date", "choose a date")
	}
	if strings.TrimSpace(d.Time) == "" {
		return domain.Invalid("time", "choose a time")
	}
	if _, err := time.Parse(domain.DateLayout, d.Date); err != nil {
		return domain.Invalid("date", "date must be YYYY-MM-DD")
	}
	if _, err := time.Parse(domain.TimeLayout, d.Time); err != nil {
		return domain.Invalid("time", "time must be HH:MM")
	}
	at, err := d.ScheduledAt(c.cfg.Location)
	if err != nil {
		return domain.Invalid("time", "invalid date or time")
	}
	if at.Before(c.now().In(c.cfg.Location)) {
		return domain.Invalid("time", "this time is already past")
	}
	return domain.Valid()
}

// GoToStep moves one step forward when the current step is valid, or to any
// earlier step. Anything else is ErrIllegalTransition.
func (c *Controller) GoToStep(ctx context.Context, sessionID string, target domain.Step) (*Outcome, error) {
	out, ev, err := c.goToStep(ctx, sessionID, target)
	if err != nil {
		return nil, err
	}
	if ev != nil {
		c.Bus.Publish(ctx, *ev)
	}
	return out, nil
}

func (c *Controller) goToStep(ctx context.Context, sessionID string, target domain.Step) (*Outcome, *events.StepChanged, error) {
	defer c.lock(sessionID)()

	st, cart, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	from := st.CurrentStep

	switch {
	case !target.Valid():
		return nil, nil, fmt.Errorf("%w: unknown step %d", ErrIllegalTransition, target)
	case target < from:
	case target == from+1:
		res, changed, err := c.validateStep(ctx, st, cart, from)
		if err != nil {
			return nil, nil, err
		}
		if !res.Valid {
			if changed {
				if err := c.States.Save(ctx, st); err != nil {
					return nil, nil, err
				}
			}
			return &Outcome{State: st, Result: res}, nil, nil
		}
	default:
		return nil, nil, fmt.Errorf("%w: %s to %s", ErrIllegalTransition, from, target)
	}

	st.CurrentStep = target
	notice, err := c.refreshTotals(ctx, st, cart)
	if err != nil {
		return nil, nil, err
	}
	if err := c.States.Save(ctx, st); err != nil {
		return nil, nil, err
	}

	c.logger.Debug("checkout step changed",
		zap.String("session_id", sessionID),
		zap.Stringer("from", from),
		zap.Stringer("to", target))

	out := &Outcome{State: st, Result: domain.Valid(), Notice: notice}
	if target == domain.StepConfirmation {
		out.Summary = buildSummary(st, cart)
	}
	return out, &events.StepChanged{SessionID: sessionID, From: from, To: target}, nil
}

func (c *Controller) NextStep(ctx context.Context, sessionID string) (*Outcome, error) {
	st, err := c.States.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return c.GoToStep(ctx, sessionID, st.CurrentStep+1)
}

func (c *Controller) PrevStep(ctx context.Context, sessionID string) (*Outcome, error) {
	st, err := c.States.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return c.GoToStep(ctx, sessionID, st.CurrentStep-1)
}

type DeliveryInput struct {
	Mode         string        `json:"mode"`
	Date         string        `json:"date"`
	Time         string        `json:"time"`
	Address      *string       `json:"address"`
	Zip          *string       `json:"zip"`
	Instructions *string       `json:"instructions"`
	FeeOverride  *money.Amount `json:"fee_override"`
}

// SetDelivery runs the delivery strategy for the input and stores the result,
// valid or not. A slower call that finishes after a newer one for the same
// session returns delivery.ErrSuperseded and changes nothing.
func (c *Controller) SetDelivery(ctx context.Context, sessionID string, in DeliveryInput) (*Outcome, error) {
	mode, err := domain.ParseDeliveryMode(in.Mode)
	if err != nil {
		st, loadErr := c.States.Load(ctx, sessionID)
		if loadErr != nil {
			return nil, loadErr
		}
		return &Outcome{State: st, Result: domain.Invalid("mode", "choose pickup or delivery")}, nil
	}

	info := &domain.DeliveryInfo{
		Mode:         mode,
		Date:         strings.TrimSpace(in.Date),
		Time:         strings.TrimSpace(in.Time),
		Address:      in.Address,
		Zip:          in.Zip,
		Instructions: in.Instructions,
	}
	if mode == domain.DeliveryModePickup {
		// stored even when the schedule check fails
		info.Address = nil
		info.Zip = nil
	}

	id := c.guard.Begin(sessionID)
	res := c.checkSchedule(info)
	if res.Valid {
		vctx, cancel := c.withTimeout(ctx)
		res, err = c.Delivery.Apply(vctx, info, in.FeeOverride)
		cancel()
		if err != nil {
			if delivery.IsConfigurationError(err) {
				c.logger.Error("delivery strategy misconfigured", zap.String("mode", string(mode)), zap.Error(err))
			}
			return nil, err
		}
	}

	out, ev, err := c.storeDelivery(ctx, sessionID, id, info, in.FeeOverride, res)
	if err != nil {
		return nil, err
	}
	if ev != nil {
		c.Bus.Publish(ctx, *ev)
	}
	return out, nil
}

func (c *Controller) storeDelivery(ctx context.Context, sessionID string, id uint64, info *domain.DeliveryInfo, feeOverride *money.Amount, res domain.ValidationResult) (*Outcome, *events.StepChanged, error) {
	defer c.lock(sessionID)()
	if !c.guard.IsCurrent(sessionID, id) {
		return nil, nil, delivery.ErrSuperseded
	}

	st, cart, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	st.Delivery = info
	st.FeeOverride = feeOverride

	var ev *events.StepChanged
	if !res.Valid && st.CurrentStep > domain.StepDelivery {
		ev = &events.StepChanged{SessionID: sessionID, From: st.CurrentStep, To: domain.StepDelivery}
		st.CurrentStep = domain.StepDelivery
	}
	notice, err := c.refreshTotals(ctx, st, cart)
	if err != nil {
		return nil, nil, err
	}
	if err := c.States.Save(ctx, st); err != nil {
		return nil, nil, err
	}
	return &Outcome{State: st, Result: res, Notice: notice}, ev, nil
}

func (c *Controller) SetPayment(ctx context.Context, sessionID, mode string) (*Outcome, error) {
	defer c.lock(sessionID)()

	st, err := c.States.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	pm, err := domain.ParsePaymentMode(mode)
	if err != nil {
		return &Outcome{State: st, Result: domain.Invalid("payment", "select a payment method")}, nil
	}
	st.Payment = &domain.PaymentInfo{Mode: pm}
	if err := c.States.Save(ctx, st); err != nil {
		return nil, err
	}
	return &Outcome{State: st, Result: domain.Valid()}, nil
}

// ApplyCoupon validates code against the current order amount. Usage is only
// counted once the order is created.
func (c *Controller) ApplyCoupon(ctx context.Context, sessionID, code string) (*Outcome, error) {
	defer c.lock(sessionID)()

	st, cart, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return &Outcome{State: st, Result: domain.Invalid("coupon", "enter a coupon code")}, nil
	}
	if cart.IsEmpty() {
		return &Outcome{State: st, Result: domain.Invalid("cart", "your cart is empty")}, nil
	}

	amount := couponBase(st, cart)
	vctx, cancel := c.withTimeout(ctx)
	v, err := c.Coupons.Validate(vctx, code, amount)
	cancel()
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return &Outcome{State: st, Result: domain.Invalid("coupon", v.Message)}, nil
	}

	st.Coupon = &domain.Coupon{
		Code:           v.Code,
		CouponID:       v.CouponID,
		DiscountAmount: v.DiscountAmount,
		ValidatedFor:   amount,
	}
	if _, err := c.refreshTotals(ctx, st, cart); err != nil {
		return nil, err
	}
	if err := c.States.Save(ctx, st); err != nil {
		return nil, err
	}
	return &Outcome{State: st, Result: domain.Valid()}, nil
}

func (c *Controller) RemoveCoupon(ctx context.Context, sessionID string) (*Outcome, error) {
	defer c.lock(sessionID)()

	st, cart, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st.Coupon = nil
	if _, err := c.refreshTotals(ctx, st, cart); err != nil {
		return nil, err
	}
	if err := c.States.Save(ctx, st); err != nil {
		return nil, err
	}
	return &Outcome{State: st, Result: domain.Valid()}, nil
}

func (c *Controller) AcceptTerms(ctx context.Context, sessionID string, accepted bool) (*Outcome, error) {
	defer c.lock(sessionID)()

	st, err := c.States.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st.TermsAccepted = accepted
	if err := c.States.Save(ctx, st); err != nil {
		return nil, err
	}
	return &Outcome{State: st, Result: domain.Valid()}, nil
}

// Summary is available once the session reached the confirmation step.
func (c *Controller) Summary(ctx context.Context, sessionID string) (*Summary, error) {
	out, err := c.State(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if out.Summary == nil {
		return nil, ErrNotAtConfirmation
	}
	return out.Summary, nil
}

func (c *Controller) load(ctx context.Context, sessionID string) (*domain.CheckoutState, *domain.Cart, error) {
	st, err := c.States.Load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	cart, err := c.Cart.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("read cart: %w", err)
	}
	return st, cart, nil
}

// refreshTotals recomputes st.Totals from the live cart. A coupon accepted
// for a different amount is validated again and dropped if it no longer
// applies; the returned notice says so.
func (c *Controller) refreshTotals(ctx context.Context, st *domain.CheckoutState, cart *domain.Cart) (string, error) {
	var notice string
	if st.Coupon != nil {
		amount := couponBase(st, cart)
		if !amount.Equal(st.Coupon.ValidatedFor) {
			vctx, cancel := c.withTimeout(ctx)
			v, err := c.Coupons.Validate(vctx, st.Coupon.Code, amount)
			cancel()
			if err != nil {
				return "", err
			}
			if v.Valid {
				st.Coupon.DiscountAmount = v.DiscountAmount
				st.Coupon.ValidatedFor = amount
			} else {
				notice = fmt.Sprintf("coupon %s was removed: %s", st.Coupon.Code, v.Message)
				st.Coupon = nil
			}
		}
	}

	discount := money.Zero()
	if st.Coupon != nil {
		discount = st.Coupon.DiscountAmount
	}
	st.Totals = c.Pricing.Compute(cart.Total(), deliveryFee(st), discount)
	return notice, nil
}

func deliveryFee(st *domain.CheckoutState) money.Amount {
	if st.Delivery == nil {
		return money.Zero()
	}
	return st.Delivery.Fee
}

// couponBase is the amount a coupon is checked against: cart plus delivery.
func couponBase(st *domain.CheckoutState, cart *domain.Cart) money.Amount {
	return cart.Total().Add(deliveryFee(st))
}

func buildSummary(st *domain.CheckoutState, cart *domain.Cart) *Summary {
	s := &Summary{
		Items:         cart.Clone().Lines,
		ItemCount:     cart.Count(),
		Totals:        st.Totals,
		TermsAccepted: st.TermsAccepted,
	}
	if st.Delivery != nil {
		s.Delivery = *st.Delivery
	}
	if st.Payment != nil {
		s.Payment = *st.Payment
	}
	if st.Coupon != nil {
		cp := *st.Coupon
		s.Coupon = &cp
	}
	return s
}
