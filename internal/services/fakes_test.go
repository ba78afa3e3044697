package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	"github.com/santiscally/grafica-los-rumbos/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.conflict:
		return "conflict"
	default:
		return "unavailable"
	}
}

func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

var errRepoNotFound = stubRepoError{notFound: true}

// memCounterRepository hands out values under a mutex, like the transactional store.
type memCounterRepository struct {
	mu     sync.Mutex
	values map[string]int64
	err    error
}

func newMemCounterRepository() *memCounterRepository {
	return &memCounterRepository{values: map[string]int64{}}
}

func (r *memCounterRepository) Next(_ context.Context, id string, seed int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	current, ok := r.values[id]
	if !ok {
		current = seed
	}
	current++
	r.values[id] = current
	return current, nil
}

func (r *memCounterRepository) Seed(_ context.Context, id string, value int64, force bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[id]; ok && !force {
		return false, nil
	}
	r.values[id] = value
	return true, nil
}

func (r *memCounterRepository) Get(_ context.Context, id string) (domain.Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok := r.values[id]
	if !ok {
		return domain.Counter{}, errRepoNotFound
	}
	return domain.Counter{Name: id, CurrentValue: value, Step: 1}, nil
}

type memProductRepository struct {
	mu       sync.Mutex
	products map[string]domain.Product
	listErr  error
	lists    int
}

func newMemProductRepository(products ...domain.Product) *memProductRepository {
	repo := &memProductRepository{products: map[string]domain.Product{}}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (r *memProductRepository) Insert(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[product.ID]; ok {
		return stubRepoError{conflict: true}
	}
	r.products[product.ID] = product
	return nil
}

func (r *memProductRepository) Update(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[product.ID]; !ok {
		return errRepoNotFound
	}
	r.products[product.ID] = product
	return nil
}

func (r *memProductRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.products, id)
	return nil
}

func (r *memProductRepository) FindByID(_ context.Context, id string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return domain.Product{}, errRepoNotFound
	}
	return p, nil
}

func (r *memProductRepository) FindByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Product
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memProductRepository) FindByCode(_ context.Context, code string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.products {
		if p.Code == code {
			return p, nil
		}
	}
	return domain.Product{}, errRepoNotFound
}

func (r *memProductRepository) List(_ context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.Product
	for _, p := range r.products {
		if filter.Year != "" && p.Year != filter.Year {
			continue
		}
		if filter.Subject != "" && p.Subject != filter.Subject {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memProductRepository) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.products), nil
}

type memPriceRepository struct {
	mu     sync.Mutex
	prices map[string]domain.Price
}

func newMemPriceRepository(prices ...domain.Price) *memPriceRepository {
	repo := &memPriceRepository{prices: map[string]domain.Price{}}
	for _, p := range prices {
		repo.prices[p.ID] = p
	}
	return repo
}

func (r *memPriceRepository) Insert(_ context.Context, price domain.Price) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices[price.ID] = price
	return nil
}

func (r *memPriceRepository) Update(_ context.Context, price domain.Price) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.prices[price.ID]; !ok {
		return errRepoNotFound
	}
	r.prices[price.ID] = price
	return nil
}

func (r *memPriceRepository) FindByID(_ context.Context, id string) (domain.Price, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prices[id]
	if !ok {
		return domain.Price{}, errRepoNotFound
	}
	return p, nil
}

func (r *memPriceRepository) FindActiveByServiceKey(_ context.Context, key string) (domain.Price, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.prices {
		if p.Active && p.ServiceKey == key {
			return p, nil
		}
	}
	return domain.Price{}, errRepoNotFound
}

func (r *memPriceRepository) ListActive(context.Context) ([]domain.Price, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Price
	for _, p := range r.prices {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type memOrderRepository struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	insertErr error
	inserts   int
}

func newMemOrderRepository(orders ...domain.Order) *memOrderRepository {
	repo := &memOrderRepository{orders: map[string]domain.Order{}}
	for _, o := range orders {
		repo.orders[o.ID] = o
	}
	return repo
}

func (r *memOrderRepository) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	if r.insertErr != nil {
		return r.insertErr
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepository) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, errRepoNotFound
	}
	return o, nil
}

func (r *memOrderRepository) UpdateStatus(_ context.Context, id string, status domain.OrderStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return errRepoNotFound
	}
	o.Status = status
	o.UpdatedAt = at
	o.StatusChangedAt = at
	r.orders[id] = o
	return nil
}

func (r *memOrderRepository) UpdatePrice(_ context.Context, id string, total domain.Money, source domain.PriceSource, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return errRepoNotFound
	}
	o.TotalPrice = total
	o.PriceSource = source
	o.UpdatedAt = at
	r.orders[id] = o
	return nil
}

func (r *memOrderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.Order
	for _, o := range r.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if filter.Kind != nil && o.Kind != *filter.Kind {
			continue
		}
		if filter.Year != nil && !containsYear(o.ProductYears, *filter.Year) {
			continue
		}
		if filter.Created.From != nil && o.CreatedAt.Before(*filter.Created.From) {
			continue
		}
		if filter.Created.To != nil && o.CreatedAt.After(*filter.Created.To) {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	start := (filter.Page - 1) * filter.PageSize
	end := start + filter.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}
	return domain.NewPage(matched[start:end], len(matched), filter.Page, filter.PageSize), nil
}

func (r *memOrderRepository) Count(_ context.Context, filter repositories.OrderCountFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, o := range r.orders {
		if len(filter.Statuses) == 0 || containsStatus(filter.Statuses, o.Status) {
			count++
		}
	}
	return count, nil
}

func (r *memOrderRepository) SumRevenue(_ context.Context, since time.Time, statuses []domain.OrderStatus) (domain.Money, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum domain.Money
	for _, o := range r.orders {
		if o.CreatedAt.Before(since) || !containsStatus(statuses, o.Status) {
			continue
		}
		sum += o.TotalPrice
	}
	return sum, nil
}

func (r *memOrderRepository) get(id string) domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

func containsYear(years []domain.SchoolYear, year domain.SchoolYear) bool {
	for _, y := range years {
		if y == year {
			return true
		}
	}
	return false
}

func containsStatus(statuses []domain.OrderStatus, status domain.OrderStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type dispatchCall struct {
	Message Message
	Channel NotificationChannel
	To      Customer
}

// recordingNotifications renders through the real templates and records every dispatch.
type recordingNotifications struct {
	NotificationService
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (r *recordingNotifications) Dispatch(ctx context.Context, msg Message, channel NotificationChannel, to Customer) (DispatchResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, dispatchCall{Message: msg, Channel: channel, To: to})
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return DispatchResult{}, err
	}
	if channel == domain.NotificationChannelWhatsApp {
		return r.NotificationService.Dispatch(ctx, msg, channel, to)
	}
	return DispatchResult{Channel: channel, Simulated: true, Text: msg.Text}, nil
}

func (r *recordingNotifications) dispatched(kind MessageKind) []dispatchCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dispatchCall
	for _, call := range r.calls {
		if call.Message.Kind == kind {
			out = append(out, call)
		}
	}
	return out
}

type recordingEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (r *recordingEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type recordedLog struct {
	Event  string
	Fields map[string]any
}

type logRecorder struct {
	mu      sync.Mutex
	entries []recordedLog
}

func (l *logRecorder) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, recordedLog{Event: event, Fields: fields})
}

func (l *logRecorder) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Event == event {
			return true
		}
	}
	return false
}

func sequentialIDs() func(prefix string) string {
	var mu sync.Mutex
	n := 0
	return func(prefix string) string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%04d", prefix, n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func runInline(task func()) { task() }
