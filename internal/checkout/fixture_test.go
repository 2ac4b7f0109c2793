package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/address"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/cart"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/catalog"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/coupon"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/delivery"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/domain"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/events"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/pricing"
	"github.com/shopspring/decimal"
)

var (
	restaurantZone = time.FixedZone("CET", 3600)
	fixedNow       = time.Date(2026, 3, 14, 12, 0, 0, 0, restaurantZone)
	defaultFee     = money.MustParse("5.00")
	errNetwork     = &domain.ExternalServiceError{Service: "orders", Op: "create_order", Err: errors.New("connection reset by peer")}
)

type stubCatalog map[string]*catalog.Item

func (c stubCatalog) FindItem(_ context.Context, id string) (*catalog.Item, error) {
	item, ok := c[id]
	if !ok {
		return nil, catalog.ErrItemNotFound
	}
	return item, nil
}

type stubAddress struct {
	mu       sync.Mutex
	valid    bool
	reason   string
	distance float64
	err      error
	calls    int
	// hook runs inside ValidateAddress before the answer is returned.
	hook func(addr string)
}

func (a *stubAddress) ValidateAddress(_ context.Context, addr, _ string) (address.Result, error) {
	a.mu.Lock()
	a.calls++
	hook, valid, reason, dist, err := a.hook, a.valid, a.reason, a.distance, a.err
	a.mu.Unlock()

	if hook != nil {
		hook(addr)
	}
	if err != nil {
		return address.Result{}, err
	}
	if !valid {
		return address.Result{Valid: false, Error: reason}, nil
	}
	return address.Result{Valid: true, Distance: &dist}, nil
}

func (a *stubAddress) ValidateZip(context.Context, string) (address.Result, error) {
	return address.Result{Valid: true}, nil
}

type stubCoupon struct {
	id       string
	discount money.Amount
	minimum  money.Amount
}

type stubCoupons struct {
	mu          sync.Mutex
	coupons     map[string]stubCoupon
	validations int
	usage       map[string]int
	redeemed    map[string]bool
}

func newStubCoupons() *stubCoupons {
	return &stubCoupons{
		coupons: map[string]stubCoupon{
			"BIENVENUE5": {id: "6f1e7f44-3b1a-4c55-9a55-0d9a4a7c9b01", discount: money.MustParse("5.00"), minimum: money.MustParse("30.00")},
		},
		usage:    map[string]int{},
		redeemed: map[string]bool{},
	}
}

func (s *stubCoupons) Validate(_ context.Context, code string, amount money.Amount) (*coupon.Validation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validations++

	code = strings.ToUpper(strings.TrimSpace(code))
	c, ok := s.coupons[code]
	if !ok {
		return &coupon.Validation{Code: code, Reason: coupon.ReasonNotFound, Message: coupon.ReasonNotFound.Message()}, nil
	}
	if amount.LessThan(c.minimum) {
		return &coupon.Validation{Code: code, Reason: coupon.ReasonMinimumNotMet, Message: coupon.ReasonMinimumNotMet.Message()}, nil
	}
	return &coupon.Validation{
		Valid:          true,
		CouponID:       c.id,
		Code:           code,
		DiscountAmount: c.discount,
		NewTotal:       amount.Sub(c.discount),
	}, nil
}

func (s *stubCoupons) Apply(_ context.Context, couponID, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.redeemed[couponID+"/"+orderID] {
		return nil
	}
	s.redeemed[couponID+"/"+orderID] = true
	s.usage[couponID]++
	return nil
}

func (s *stubCoupons) used(couponID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[couponID]
}

type stubOrders struct {
	mu       sync.Mutex
	byKey    map[string]*domain.Confirmation
	failures []error
	// lost counts calls that store the order but still fail to answer
	lost  int
	calls int
	keys     []string
	last     domain.Order
}

func newStubOrders() *stubOrders {
	return &stubOrders{byKey: map[string]*domain.Confirmation{}}
}

// failNext makes the next n calls return err.
func (o *stubOrders) failNext(n int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for range n {
		o.failures = append(o.failures, err)
	}
}

// loseNext makes the next n calls store the order and then fail as if the
// response never arrived.
func (o *stubOrders) loseNext(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lost += n
}

func (o *stubOrders) CreateOrder(_ context.Context, order domain.Order, key string) (*domain.Confirmation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	o.keys = append(o.keys, key)
	if len(o.failures) > 0 {
		err := o.failures[0]
		o.failures = o.failures[1:]
		return nil, err
	}
	conf, replayed := o.byKey[key]
	if !replayed {
		o.last = order
		conf = &domain.Confirmation{
			OrderID:   fmt.Sprintf("order-%d", len(o.byKey)+1),
			Status:    "CONFIRMED",
			Totals:    order.Totals,
			CreatedAt: fixedNow,
		}
		o.byKey[key] = conf
	}
	if o.lost > 0 {
		o.lost--
		return nil, errNetwork
	}
	cp := *conf
	cp.Replayed = replayed
	return &cp, nil
}

func (o *stubOrders) created() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.byKey)
}

type fixture struct {
	ctrl    *Controller
	cart    *cart.Store
	states  *MemoryStateStore
	address *stubAddress
	coupons *stubCoupons
	orders  *stubOrders
	bus     *events.Bus

	mu     sync.Mutex
	events []events.Event
}

func newFixture(strategies ...delivery.Strategy) *fixture {
	f := &fixture{
		states:  NewMemoryStateStore(),
		address: &stubAddress{valid: true, distance: 1.2},
		coupons: newStubCoupons(),
		orders:  newStubOrders(),
		bus:     events.NewBus(),
	}
	f.bus.Subscribe(func(_ context.Context, e events.Event) {
		f.mu.Lock()
		f.events = append(f.events, e)
		f.mu.Unlock()
	})

	menu := stubCatalog{
		"5": {ID: "5", Name: "Confit de canard", Price: money.MustParse("24.00"), Available: true},
		"7": {ID: "7", Name: "Tarte Tatin", Price: money.MustParse("8.00"), Available: true},
	}
	f.cart = cart.NewStore(cart.NewMemoryStorage(), menu, f.bus, nil)

	if len(strategies) == 0 {
		strategies = []delivery.Strategy{
			delivery.NewPickupStrategy(),
			delivery.NewHomeDeliveryStrategy(f.address, defaultFee),
		}
	}

	f.ctrl = NewController(Deps{
		Cart:     f.cart,
		States:   f.states,
		Delivery: delivery.NewSelector(strategies...),
		Pricing:  pricing.NewVAT(decimal.RequireFromString("0.10")),
		Coupons:  f.coupons,
		Orders:   f.orders,
		Bus:      f.bus,
	}, Config{
		Timeout:           time.Second,
		MaxSubmitAttempts: 3,
		RetryBackoff:      time.Millisecond,
		Location:          restaurantZone,
	}, nil).WithClock(func() time.Time { return fixedNow })
	return f
}

func (f *fixture) stepEvents() []events.StepChanged {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.StepChanged
	for _, e := range f.events {
		if sc, ok := e.(events.StepChanged); ok {
			out = append(out, sc)
		}
	}
	return out
}

func pickupInput() DeliveryInput {
	return DeliveryInput{Mode: "PICKUP", Date: "2026-03-14", Time: "19:30"}
}

func deliveryInput(fee *money.Amount) DeliveryInput {
	addr, zip := "12 rue de la République", "69001"
	return DeliveryInput{Mode: "DELIVERY", Date: "2026-03-14", Time: "19:30", Address: &addr, Zip: &zip, FeeOverride: fee}
}

// advance walks a session with the given cart items to the confirmation step.
func (f *fixture) advance(ctx context.Context, sessionID string, in DeliveryInput, items ...string) (*Outcome, error) {
	for _, id := range items {
		if _, err := f.cart.AddItem(ctx, sessionID, id, 1); err != nil {
			return nil, err
		}
	}
	if out, err := f.ctrl.NextStep(ctx, sessionID); err != nil || !out.Result.Valid {
		return out, err
	}
	if out, err := f.ctrl.SetDelivery(ctx, sessionID, in); err != nil || !out.Result.Valid {
		return out, err
	}
	if out, err := f.ctrl.NextStep(ctx, sessionID); err != nil || !out.Result.Valid {
		return out, err
	}
	if out, err := f.ctrl.SetPayment(ctx, sessionID, "CARD"); err != nil || !out.Result.Valid {
		return out, err
	}
	return f.ctrl.NextStep(ctx, sessionID)
}

func testClient() domain.ClientInfo {
	return domain.ClientInfo{Name: "Camille Martin", Phone: "0478000000", Email: "camille@example.com"}
}
