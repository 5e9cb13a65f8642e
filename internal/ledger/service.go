package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/atelier-erp/atelier/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListItemsByKey(ctx context.Context, key StockKey) ([]TransactionItem, error)
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, int, error)
}

// CatalogPort resolves the dimensions ledger lines refer to. Missing dimensions are reported
// as referential errors.
type CatalogPort interface {
	ResolveProductSize(ctx context.Context, productID, sizeID int64) (int64, error)
	ColorExists(ctx context.Context, colorID int64) (bool, error)
	MaterialName(ctx context.Context, materialID int64) (string, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort reserves request keys for the duration of a write.
type IdempotencyPort interface {
	Reserve(ctx context.Context, key, scope string) error
	Release(ctx context.Context, key string) error
}

// MetricsPort receives ledger counters.
type MetricsPort interface {
	ObserveLedgerEvent(kind string)
	ObserveInsufficientStock(entity string)
}

// ServiceDeps groups optional collaborators.
type ServiceDeps struct {
	Audit       AuditPort
	Idempotency IdempotencyPort
	Cache       *StockCache
	Metrics     MetricsPort
	Logger      *slog.Logger
}

// Service coordinates ledger operations.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	audit   AuditPort
	idem    IdempotencyPort
	cache   *StockCache
	metrics MetricsPort
	logger  *slog.Logger
	reads   singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog CatalogPort, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		catalog: catalog,
		audit:   deps.Audit,
		idem:    deps.Idempotency,
		cache:   deps.Cache,
		metrics: deps.Metrics,
		logger:  logger,
	}
}

// EventKind names a business event the writer can book.
type EventKind string

const (
	EventOpeningStock       EventKind = "opening_stock"
	EventPurchase           EventKind = "purchase"
	EventAdjustment         EventKind = "adjustment"
	EventInvoice            EventKind = "invoice"
	EventSalesOrder         EventKind = "sales_order"
	EventManufacturingOrder EventKind = "manufacturing_order"
)

// LineInput is one requested line. Exactly one of MaterialID or ProductID+SizeID is set.
type LineInput struct {
	MaterialID int64
	ProductID  int64
	SizeID     int64
	ColorID    int64
	Quantity   decimal.Decimal
	Cost       decimal.Decimal
}

// Event is a business event to be booked in the ledger.
type Event struct {
	Kind           EventKind
	Date           time.Time
	CustomerID     *int64
	SupplierID     *int64
	PaymentMethod  string
	Lines          []LineInput
	IdempotencyKey string
}

// ResolvedLine is a line whose dimensions were checked against the catalog.
type ResolvedLine struct {
	Key      StockKey
	Label    string
	Quantity decimal.Decimal
	Cost     decimal.Decimal
}

func (k EventKind) header() (Transaction, bool) {
	var (
		tx     Transaction
		status SaleStatus
	)
	switch k {
	case EventOpeningStock:
		tx.Type = TypeOpeningStock
	case EventPurchase:
		tx.Type = TypePurchase
	case EventAdjustment:
		tx.Type = TypeAdjustment
	case EventInvoice:
		tx.Type = TypeSale
		status = SaleStatusFulfilled
	case EventSalesOrder:
		tx.Type = TypeSale
		status = SaleStatusPending
	case EventManufacturingOrder:
		tx.Type = TypeManufacturing
		status = SaleStatusPending
	default:
		return Transaction{}, false
	}
	if status != "" {
		tx.SaleStatus = &status
	}
	return tx, true
}

func (k EventKind) productsOnly() bool {
	return k == EventInvoice || k == EventSalesOrder || k == EventManufacturingOrder
}

// RecordEvent books ev as one transaction. Invoices consume their product stock FIFO before the
// sale lines are written; orders only reserve pending quantity. Nothing is written when any
// line fails validation, resolution or consumption.
func (s *Service) RecordEvent(ctx context.Context, ev Event) (Transaction, error) {
	header, ok := ev.Kind.header()
	if !ok {
		return Transaction{}, shared.Validation("kind", fmt.Sprintf("unknown event %q", ev.Kind))
	}
	if len(ev.Lines) == 0 {
		return Transaction{}, shared.Validation("lines", "at least one line is required")
	}
	for i, line := range ev.Lines {
		if line.MaterialID != 0 && ev.Kind.productsOnly() {
			return Transaction{}, shared.Validation(fmt.Sprintf("lines[%d].material_id", i), "only products can be sold or ordered")
		}
	}
	lines, err := s.ResolveLines(ctx, ev.Lines)
	if err != nil {
		return Transaction{}, err
	}
	header.Date = ev.Date
	header.CustomerID = ev.CustomerID
	header.SupplierID = ev.SupplierID
	header.PaymentMethod = ev.PaymentMethod

	release, err := s.reserve(ctx, "ledger", ev.IdempotencyKey)
	if err != nil {
		return Transaction{}, err
	}

	var saved Transaction
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posting := Posting{Header: header, Items: make([]TransactionItem, 0, len(lines))}
		if ev.Kind == EventInvoice {
			consumed, err := ConsumeAll(ctx, tx, consumeRequests(lines))
			if err != nil {
				return err
			}
			posting.Consumed = attachConsumption(lines, consumed)
		}
		for _, line := range lines {
			if header.SaleStatus != nil && *header.SaleStatus == SaleStatusPending {
				posting.Items = append(posting.Items, PendingItem(line.Key, line.Quantity, line.Cost))
				continue
			}
			posting.Items = append(posting.Items, StockItem(line.Key, line.Quantity, line.Cost))
		}
		var err error
		saved, err = Write(ctx, tx, posting)
		return err
	})
	if err != nil {
		release()
		var domainErr *shared.Error
		if s.metrics != nil && errors.As(err, &domainErr) && domainErr.Kind == shared.KindInsufficientStock {
			s.metrics.ObserveInsufficientStock(domainErr.Entity)
		}
		return Transaction{}, err
	}
	s.Committed(ctx, string(ev.Kind), saved)
	return saved, nil
}

// ResolveLines validates request lines and resolves their stock keys against the catalog.
func (s *Service) ResolveLines(ctx context.Context, in []LineInput) ([]ResolvedLine, error) {
	var fields []shared.FieldError
	for i, line := range in {
		prefix := fmt.Sprintf("lines[%d]", i)
		hasMaterial := line.MaterialID != 0
		hasProduct := line.ProductID != 0 || line.SizeID != 0
		switch {
		case hasMaterial && hasProduct:
			fields = append(fields, shared.FieldError{Field: prefix, Message: "set either material_id or product_id and size_id"})
		case !hasMaterial && (line.ProductID == 0 || line.SizeID == 0):
			fields = append(fields, shared.FieldError{Field: prefix, Message: "material_id or product_id and size_id required"})
		case hasMaterial && line.ColorID != 0:
			fields = append(fields, shared.FieldError{Field: prefix + ".color_id", Message: "materials have no color"})
		}
		if !line.Quantity.IsPositive() {
			fields = append(fields, shared.FieldError{Field: prefix + ".quantity", Message: "must be greater than zero"})
		}
		if line.Cost.IsNegative() {
			fields = append(fields, shared.FieldError{Field: prefix + ".cost", Message: "must not be negative"})
		}
	}
	if len(fields) > 0 {
		return nil, shared.ValidationFields(fields)
	}

	out := make([]ResolvedLine, 0, len(in))
	for _, line := range in {
		resolved := ResolvedLine{Quantity: line.Quantity, Cost: line.Cost}
		if line.MaterialID != 0 {
			name, err := s.catalog.MaterialName(ctx, line.MaterialID)
			if err != nil {
				return nil, err
			}
			resolved.Key = MaterialKey(line.MaterialID)
			resolved.Label = name
			out = append(out, resolved)
			continue
		}
		productSizeID, err := s.catalog.ResolveProductSize(ctx, line.ProductID, line.SizeID)
		if err != nil {
			return nil, err
		}
		if line.ColorID != 0 {
			ok, err := s.catalog.ColorExists(ctx, line.ColorID)
			if err != nil {
				return nil, shared.StoreFailure(err)
			}
			if !ok {
				return nil, shared.Referential("color", fmt.Sprintf("color %d does not exist", line.ColorID))
			}
		}
		resolved.Key = ProductKey(productSizeID, line.ColorID)
		resolved.Label = fmt.Sprintf("product %d size %d", line.ProductID, line.SizeID)
		out = append(out, resolved)
	}
	return out, nil
}

func consumeRequests(lines []ResolvedLine) []ConsumeRequest {
	reqs := make([]ConsumeRequest, 0, len(lines))
	for _, line := range lines {
		reqs = append(reqs, ConsumeRequest{Key: line.Key, Label: line.Label, Quantity: line.Quantity})
	}
	return reqs
}

// attachConsumption hands each key's consumption to the first line booking that key.
func attachConsumption(lines []ResolvedLine, consumed map[StockKey]Consumption) map[int]Consumption {
	out := make(map[int]Consumption, len(consumed))
	seen := make(map[StockKey]bool, len(consumed))
	for i, line := range lines {
		if seen[line.Key] {
			continue
		}
		if c, ok := consumed[line.Key]; ok {
			out[i] = c
			seen[line.Key] = true
		}
	}
	return out
}

// CurrentStock returns the aggregated level of key.
func (s *Service) CurrentStock(ctx context.Context, key StockKey) (StockLevel, error) {
	if !key.Valid() {
		return StockLevel{}, shared.Validation("key", "material or product size required")
	}
	res, err, _ := s.reads.Do(key.String(), func() (interface{}, error) {
		level, err := s.cache.Fetch(ctx, key, func(ctx context.Context) (StockLevel, error) {
			items, err := s.repo.ListItemsByKey(ctx, key)
			if err != nil {
				return StockLevel{}, shared.StoreFailure(err)
			}
			return Summarize(key, items), nil
		})
		if errors.Is(err, ErrCacheWrite) {
			s.logger.Warn("stock cache write failed", slog.String("key", key.String()), slog.Any("error", err))
			return level, nil
		}
		return level, err
	})
	if err != nil {
		return StockLevel{}, err
	}
	return res.(StockLevel), nil
}

// ProductStock resolves a product size and returns its level in colorID (0 for none).
func (s *Service) ProductStock(ctx context.Context, productID, sizeID, colorID int64) (StockLevel, error) {
	productSizeID, err := s.catalog.ResolveProductSize(ctx, productID, sizeID)
	if err != nil {
		return StockLevel{}, err
	}
	return s.CurrentStock(ctx, ProductKey(productSizeID, colorID))
}

// GetTransaction loads a transaction with its lines.
func (s *Service) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, shared.StoreFailure(err)
	}
	return tx, nil
}

// ListTransactions pages through headers, optionally narrowed to one type.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, shared.Pagination, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, shared.Pagination{}, shared.Validation("transaction_type", fmt.Sprintf("unknown transaction type %q", filter.Type))
	}
	items, total, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, shared.StoreFailure(err)
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// UpdateSaleStatus advances an order. Statuses never move backwards.
func (s *Service) UpdateSaleStatus(ctx context.Context, id int64, status SaleStatus) (Transaction, error) {
	if !status.Valid() {
		return Transaction{}, shared.Validation("status", fmt.Sprintf("unknown sale status %q", status))
	}
	var updated Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.SaleStatus == nil {
			return shared.Validation("status", fmt.Sprintf("transaction %s has no sale status", current.Code))
		}
		if !current.SaleStatus.CanAdvanceTo(status) {
			return shared.Validation("status", fmt.Sprintf("cannot move from %s to %s", *current.SaleStatus, status))
		}
		if err := tx.UpdateSaleStatus(ctx, id, status); err != nil {
			return shared.StoreFailure(err)
		}
		current.SaleStatus = &status
		updated = current
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.Committed(ctx, "sale_status", updated)
	return updated, nil
}

// DeleteTransaction reverses and removes a non-production transaction.
func (s *Service) DeleteTransaction(ctx context.Context, id int64) error {
	var deleted Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header, err := tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if header.Type == TypeProduction {
			return shared.Validation("transaction", "production runs are deleted through production")
		}
		if err := Reverse(ctx, tx, header); err != nil {
			return err
		}
		deleted = header
		return nil
	})
	if err != nil {
		return err
	}
	s.Committed(ctx, "delete", deleted)
	return nil
}

// Reserve claims an Idempotency-Key for scope. The returned func releases it and is a no-op
// when no key was given.
func (s *Service) Reserve(ctx context.Context, scope, requestKey string) (func(), error) {
	return s.reserve(ctx, scope, requestKey)
}

func (s *Service) reserve(ctx context.Context, scope, requestKey string) (func(), error) {
	noop := func() {}
	if requestKey == "" || s.idem == nil {
		return noop, nil
	}
	key, err := shared.IdempotencyKey(scope, requestKey)
	if err != nil {
		return noop, err
	}
	if err := s.idem.Reserve(ctx, key, scope); err != nil {
		return noop, err
	}
	return func() {
		if err := s.idem.Release(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}

// Committed runs the after-commit effects of a ledger write: the stock cache is bumped, the
// event counted and an audit entry recorded. Failures are logged.
func (s *Service) Committed(ctx context.Context, action string, tx Transaction) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump stock cache", slog.Any("error", err))
	}
	if s.metrics != nil {
		s.metrics.ObserveLedgerEvent(action)
	}
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Action:   "ledger:" + action,
		Entity:   "transaction",
		EntityID: strconv.FormatInt(tx.ID, 10),
		Meta: map[string]any{
			"code":  tx.Code,
			"type":  string(tx.Type),
			"lines": len(tx.Items),
		},
	})
	if err != nil {
		s.logger.Warn("record audit log", slog.String("code", tx.Code), slog.Any("error", err))
	}
}
