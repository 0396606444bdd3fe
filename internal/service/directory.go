package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/store"
)

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.repo.ListClients(ctx)
}

func (s *Service) GetClient(ctx context.Context, id string) (domain.Client, error) {
	client, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}
	return *client, nil
}

func clientFromRequest(req domain.ClientRequest) domain.Client {
	return domain.Client{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:   strings.TrimSpace(req.Phone),
		Address: strings.TrimSpace(req.Address),
	}
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientRequest) (domain.Client, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Client{}, err
	}
	created, err := s.repo.CreateClient(ctx, clientFromRequest(req))
	if err != nil {
		return domain.Client{}, err
	}
	s.invalidateDashboard(ctx)
	s.logAudit(ctx, "client_create", "client", created.ID, created.Name)
	return *created, nil
}

func (s *Service) UpdateClient(ctx context.Context, id string, req domain.ClientRequest) (domain.Client, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Client{}, err
	}
	client := clientFromRequest(req)
	client.ID = id
	saved, err := s.repo.UpdateClient(ctx, client)
	if err != nil {
		return domain.Client{}, err
	}
	s.logAudit(ctx, "client_update", "client", saved.ID, saved.Name)
	return *saved, nil
}

func (s *Service) DeleteClient(ctx context.Context, id string) error {
	if err := s.repo.DeleteClient(ctx, id); err != nil {
		return err
	}
	s.invalidateDashboard(ctx)
	s.logAudit(ctx, "client_delete", "client", id, "")
	return nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	supplier, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

func supplierFromRequest(req domain.SupplierRequest) domain.Supplier {
	return domain.Supplier{
		Name:    strings.TrimSpace(req.Name),
		Contact: strings.TrimSpace(req.Contact),
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.ToLower(strings.TrimSpace(req.Email)),
		Address: strings.TrimSpace(req.Address),
	}
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierRequest) (domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Supplier{}, err
	}
	created, err := s.repo.CreateSupplier(ctx, supplierFromRequest(req))
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_create", "supplier", created.ID, created.Name)
	return *created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, id string, req domain.SupplierRequest) (domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Supplier{}, err
	}
	supplier := supplierFromRequest(req)
	supplier.ID = id
	saved, err := s.repo.UpdateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_update", "supplier", saved.ID, saved.Name)
	return *saved, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, id string) error {
	if err := s.repo.DeleteSupplier(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "supplier_delete", "supplier", id, "")
	return nil
}

func (s *Service) ListExpenses(ctx context.Context, from string, to string) ([]domain.Expense, error) {
	start, end, err := s.dateRange(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, start, end)
}

func (s *Service) expenseFromRequest(req domain.ExpenseRequest) (domain.Expense, error) {
	day, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		return domain.Expense{}, fmt.Errorf("%w: date must be yyyy-mm-dd", store.ErrInvalidInput)
	}
	return domain.Expense{
		Description: strings.TrimSpace(req.Description),
		AmountCents: req.AmountCents,
		Category:    strings.TrimSpace(req.Category),
		ExpenseDate: time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc),
	}, nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseRequest) (domain.Expense, error) {
	req.Description = strings.TrimSpace(req.Description)
	req.Date = strings.TrimSpace(req.Date)
	if err := s.check(req); err != nil {
		return domain.Expense{}, err
	}
	expense, err := s.expenseFromRequest(req)
	if err != nil {
		return domain.Expense{}, err
	}
	expense.CreatedBy = s.actorID(ctx)

	created, err := s.repo.CreateExpense(ctx, expense)
	if err != nil {
		return domain.Expense{}, err
	}
	s.logAudit(ctx, "expense_create", "expense", created.ID, fmt.Sprintf("amount=%d,category=%s", created.AmountCents, created.Category))
	return *created, nil
}

func (s *Service) UpdateExpense(ctx context.Context, id string, req domain.ExpenseRequest) (domain.Expense, error) {
	req.Description = strings.TrimSpace(req.Description)
	req.Date = strings.TrimSpace(req.Date)
	if err := s.check(req); err != nil {
		return domain.Expense{}, err
	}
	expense, err := s.expenseFromRequest(req)
	if err != nil {
		return domain.Expense{}, err
	}
	expense.ID = id

	saved, err := s.repo.UpdateExpense(ctx, expense)
	if err != nil {
		return domain.Expense{}, err
	}
	s.logAudit(ctx, "expense_update", "expense", saved.ID, fmt.Sprintf("amount=%d", saved.AmountCents))
	return *saved, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "expense_delete", "expense", id, "")
	return nil
}

// ExpenseSummary totals expenses in the range, grouped by category with the
// largest category first.
func (s *Service) ExpenseSummary(ctx context.Context, from string, to string) (domain.ExpenseSummary, error) {
	start, end, err := s.dateRange(from, to)
	if err != nil {
		return domain.ExpenseSummary{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, start, end)
	if err != nil {
		return domain.ExpenseSummary{}, err
	}

	summary := domain.ExpenseSummary{
		From:       formatDay(start),
		To:         formatDay(end.AddDate(0, 0, -1)),
		ByCategory: make([]domain.ExpenseCategoryTotal, 0, 8),
	}
	index := make(map[string]int, 8)
	for _, e := range expenses {
		summary.Count++
		summary.TotalCents += e.AmountCents

		category := defaultString(e.Category, "Sin categoría")
		i, ok := index[category]
		if !ok {
			i = len(summary.ByCategory)
			index[category] = i
			summary.ByCategory = append(summary.ByCategory, domain.ExpenseCategoryTotal{Category: category})
		}
		summary.ByCategory[i].Count++
		summary.ByCategory[i].TotalCents += e.AmountCents
	}
	slices.SortFunc(summary.ByCategory, func(a, b domain.ExpenseCategoryTotal) int {
		if a.TotalCents != b.TotalCents {
			if a.TotalCents > b.TotalCents {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Category, b.Category)
	})
	return summary, nil
}
