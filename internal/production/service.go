package production

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/catalog"
	"github.com/atelier-erp/atelier/internal/ledger"
	"github.com/atelier-erp/atelier/internal/shared"
)

// TxRepository extends the ledger store transaction with overhead rows.
type TxRepository interface {
	ledger.TxRepository
	InsertCostItems(ctx context.Context, txID int64, costs []CostInput) ([]CostItem, error)
	ListCostItems(ctx context.Context, txID int64) ([]CostItem, error)
	DeleteCostItems(ctx context.Context, txID int64) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRun(ctx context.Context, id int64) (Run, error)
	ListCostCategories(ctx context.Context) ([]CostCategory, error)
}

// CatalogPort provides material requirements from the bill of materials.
type CatalogPort interface {
	Requirements(ctx context.Context, productID int64, quantity decimal.Decimal) ([]catalog.Requirement, error)
}

// LedgerPort is the part of the ledger service production posts through.
type LedgerPort interface {
	ResolveLines(ctx context.Context, lines []ledger.LineInput) ([]ledger.ResolvedLine, error)
	Reserve(ctx context.Context, scope, requestKey string) (func(), error)
	Committed(ctx context.Context, action string, tx ledger.Transaction)
}

// Service coordinates production runs.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	ledger  LedgerPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog CatalogPort, posting LedgerPort) *Service {
	return &Service{repo: repo, catalog: catalog, ledger: posting}
}

// Create books a production run. Raw materials are consumed FIFO when the run is created, one
// line per drawn batch at that batch's cost. Finished goods become available immediately when
// the run starts finished and stay pending otherwise.
func (s *Service) Create(ctx context.Context, in CreateInput) (Run, error) {
	if in.Status == "" {
		in.Status = ledger.StatusCutting
	}
	if !in.Status.Valid() {
		return Run{}, shared.Validation("status", fmt.Sprintf("unknown manufacturing status %q", in.Status))
	}
	if len(in.Products) == 0 {
		return Run{}, shared.Validation("products", "at least one product is required")
	}
	if err := validateCosts(in.ProductionCosts); err != nil {
		return Run{}, err
	}
	products, err := s.ledger.ResolveLines(ctx, productInputs(in.Products))
	if err != nil {
		return Run{}, err
	}
	materialInputs, err := s.materialInputs(ctx, in)
	if err != nil {
		return Run{}, err
	}
	var materials []ledger.ResolvedLine
	if len(materialInputs) > 0 {
		materials, err = s.ledger.ResolveLines(ctx, materialInputs)
		if err != nil {
			return Run{}, err
		}
	}

	release, err := s.ledger.Reserve(ctx, "production", in.IdempotencyKey)
	if err != nil {
		return Run{}, err
	}

	status := in.Status
	finished := status == ledger.StatusFinished
	var run Run
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.OrderID != nil {
			if err := checkOrder(ctx, tx, *in.OrderID); err != nil {
				return err
			}
		}
		posting := ledger.Posting{
			Header: ledger.Transaction{
				Type:                ledger.TypeProduction,
				Date:                defaultDate(in.ProductionDate),
				ManufacturingStatus: &status,
				OrderID:             in.OrderID,
			},
			Consumed: map[int]ledger.Consumption{},
		}
		for _, line := range products {
			if finished {
				posting.Items = append(posting.Items, ledger.StockItem(line.Key, line.Quantity, line.Cost))
			} else {
				posting.Items = append(posting.Items, ledger.PendingItem(line.Key, line.Quantity, line.Cost))
			}
		}
		if len(materials) > 0 {
			reqs := ledger.MergeRequests(consumeRequests(materials))
			consumed, err := ledger.ConsumeAll(ctx, tx, reqs)
			if err != nil {
				return err
			}
			for _, req := range reqs {
				for _, part := range consumed[req.Key].Split() {
					posting.Consumed[len(posting.Items)] = part
					posting.Items = append(posting.Items, ledger.ConsumptionItem(part))
				}
			}
		}
		saved, err := ledger.Write(ctx, tx, posting)
		if err != nil {
			return err
		}
		costs, err := tx.InsertCostItems(ctx, saved.ID, in.ProductionCosts)
		if err != nil {
			return shared.StoreFailure(err)
		}
		if in.OrderID != nil {
			orderStatus := ledger.SaleStatusProcessing
			if finished {
				orderStatus = ledger.SaleStatusFulfilled
			}
			if err := ledger.SetOrderStatus(ctx, tx, *in.OrderID, orderStatus); err != nil {
				return err
			}
		}
		run = Run{Transaction: saved, CostItems: costs}
		return nil
	})
	if err != nil {
		release()
		return Run{}, err
	}
	s.ledger.Committed(ctx, "production", run.Transaction)
	return run, nil
}

func validateCosts(costs []CostInput) error {
	var fields []shared.FieldError
	seen := make(map[int64]bool, len(costs))
	for i, c := range costs {
		prefix := fmt.Sprintf("production_costs[%d]", i)
		if c.ManufacturingCostID <= 0 {
			fields = append(fields, shared.FieldError{Field: prefix + ".manufacturing_cost_id", Message: "required"})
		} else if seen[c.ManufacturingCostID] {
			fields = append(fields, shared.FieldError{Field: prefix + ".manufacturing_cost_id", Message: "allocated twice"})
		}
		seen[c.ManufacturingCostID] = true
		if c.Cost.IsNegative() {
			fields = append(fields, shared.FieldError{Field: prefix + ".cost", Message: "must not be negative"})
		}
	}
	if len(fields) > 0 {
		return shared.ValidationFields(fields)
	}
	return nil
}

func productInputs(lines []ProductLine) []ledger.LineInput {
	out := make([]ledger.LineInput, 0, len(lines))
	for _, p := range lines {
		out = append(out, ledger.LineInput{ProductID: p.ProductID, SizeID: p.SizeID, ColorID: p.ColorID, Quantity: p.Quantity, Cost: p.Cost})
	}
	return out
}

// materialInputs returns the explicit raw materials when given, the BOM requirement of every
// product otherwise.
func (s *Service) materialInputs(ctx context.Context, in CreateInput) ([]ledger.LineInput, error) {
	var out []ledger.LineInput
	if len(in.RawMaterials) > 0 {
		for i, m := range in.RawMaterials {
			if m.MaterialID <= 0 {
				return nil, shared.Validation(fmt.Sprintf("raw_materials[%d].material_id", i), "required")
			}
			out = append(out, ledger.LineInput{MaterialID: m.MaterialID, Quantity: m.Quantity})
		}
		return out, nil
	}
	for _, p := range in.Products {
		reqs, err := s.catalog.Requirements(ctx, p.ProductID, p.Quantity)
		if err != nil {
			return nil, err
		}
		for _, r := range reqs {
			if r.Quantity.IsPositive() {
				out = append(out, ledger.LineInput{MaterialID: r.MaterialID, Quantity: r.Quantity})
			}
		}
	}
	return out, nil
}

func consumeRequests(lines []ledger.ResolvedLine) []ledger.ConsumeRequest {
	out := make([]ledger.ConsumeRequest, 0, len(lines))
	for _, line := range lines {
		out = append(out, ledger.ConsumeRequest{Key: line.Key, Label: line.Label, Quantity: line.Quantity})
	}
	return out
}

func checkOrder(ctx context.Context, tx TxRepository, orderID int64) error {
	order, err := tx.GetTransactionForUpdate(ctx, orderID)
	if err != nil {
		if shared.IsKind(err, shared.KindNotFound) {
			return shared.Referential("order", fmt.Sprintf("order %d does not exist", orderID))
		}
		return shared.StoreFailure(err)
	}
	if order.SaleStatus == nil {
		return shared.Referential("order", fmt.Sprintf("transaction %s is not an order", order.Code))
	}
	if *order.SaleStatus == ledger.SaleStatusFulfilled {
		return shared.Validation("order_id", fmt.Sprintf("order %s is already fulfilled", order.Code))
	}
	return nil
}

func loadRun(ctx context.Context, tx TxRepository, id int64) (ledger.Transaction, error) {
	header, err := tx.GetTransactionForUpdate(ctx, id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if header.Type != ledger.TypeProduction {
		return ledger.Transaction{}, shared.NotFound("production", id)
	}
	return header, nil
}

// UpdateStatus moves a run to a later stage. Entering finished makes pending quantities
// available and fulfils the linked order.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status ledger.ManufacturingStatus) (ledger.Transaction, error) {
	if !status.Valid() {
		return ledger.Transaction{}, shared.Validation("status", fmt.Sprintf("unknown manufacturing status %q", status))
	}
	var updated ledger.Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header, err := loadRun(ctx, tx, id)
		if err != nil {
			return err
		}
		current := Run{Transaction: header}.Status()
		if !current.CanAdvanceTo(status) {
			return shared.Validation("status", fmt.Sprintf("cannot move from %s to %s", current, status))
		}
		if err := tx.UpdateManufacturingStatus(ctx, id, status); err != nil {
			return shared.StoreFailure(err)
		}
		if status == ledger.StatusFinished {
			if err := tx.PromotePending(ctx, id); err != nil {
				return shared.StoreFailure(err)
			}
			if header.OrderID != nil {
				if err := ledger.SetOrderStatus(ctx, tx, *header.OrderID, ledger.SaleStatusFulfilled); err != nil {
					return err
				}
			}
		}
		header.ManufacturingStatus = &status
		updated = header
		return nil
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.ledger.Committed(ctx, "production_status", updated)
	return updated, nil
}

// Delete reverses a run: consumed materials go back to their batches, overhead is dropped and
// the linked order returns to pending.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var deleted ledger.Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header, err := loadRun(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteCostItems(ctx, id); err != nil {
			return shared.StoreFailure(err)
		}
		if err := ledger.Reverse(ctx, tx, header); err != nil {
			return err
		}
		if header.OrderID != nil {
			if err := ledger.SetOrderStatus(ctx, tx, *header.OrderID, ledger.SaleStatusPending); err != nil && !shared.IsKind(err, shared.KindNotFound) {
				return err
			}
		}
		deleted = header
		return nil
	})
	if err != nil {
		return err
	}
	s.ledger.Committed(ctx, "production_delete", deleted)
	return nil
}

// Get loads a run with lines and overhead.
func (s *Service) Get(ctx context.Context, id int64) (Run, error) {
	run, err := s.repo.GetRun(ctx, id)
	if err != nil {
		return Run{}, shared.StoreFailure(err)
	}
	if run.Type != ledger.TypeProduction {
		return Run{}, shared.NotFound("production", id)
	}
	return run, nil
}

// TotalCost rolls up the cost of a run.
func (s *Service) TotalCost(ctx context.Context, id int64) (decimal.Decimal, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return TotalCost(run.Items, run.CostItems), nil
}

// CostSheet writes the cost breakdown of a run as a spreadsheet.
func (s *Service) CostSheet(ctx context.Context, id int64, w io.Writer) error {
	run, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return WriteCostSheet(w, run)
}

// StatusMeta reports the stage of a run, where it can go next and which overhead categories
// are still unallocated.
func (s *Service) StatusMeta(ctx context.Context, id int64) (StatusMeta, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return StatusMeta{}, err
	}
	categories, err := s.repo.ListCostCategories(ctx)
	if err != nil {
		return StatusMeta{}, shared.StoreFailure(err)
	}
	next := run.Status().Next()
	if next == nil {
		next = []ledger.ManufacturingStatus{}
	}
	return StatusMeta{
		ID:               run.ID,
		Status:           run.Status(),
		NextStatuses:     next,
		UnallocatedCosts: Unallocated(categories, run.CostItems),
		TotalCost:        TotalCost(run.Items, run.CostItems),
	}, nil
}

func defaultDate(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
