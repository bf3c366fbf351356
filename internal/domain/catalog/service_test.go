package catalog

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// -- Mock Repositories --

type mockCategoryRepo struct {
	items map[uuid.UUID]*Category
	procs *mockProcedureRepo
}

func (m *mockCategoryRepo) Create(_ context.Context, c *Category) error {
	for _, ex := range m.items {
		if ex.Name == c.Name {
			return apperr.ErrValidation
		}
	}
	c.ID = uuid.New()
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockCategoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Category, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCategoryRepo) Update(_ context.Context, c *Category) error {
	if _, ok := m.items[c.ID]; !ok {
		return apperr.ErrNotFound
	}
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockCategoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockCategoryRepo) List(_ context.Context, activeOnly bool) ([]*Category, error) {
	var r []*Category
	for _, c := range m.items {
		if !activeOnly || c.IsActive {
			cp := *c
			r = append(r, &cp)
		}
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Name < r[j].Name })
	return r, nil
}

func (m *mockCategoryRepo) CountProcedures(_ context.Context, id uuid.UUID) (int, error) {
	n := 0
	for _, p := range m.procs.items {
		if p.CategoryID == id {
			n++
		}
	}
	return n, nil
}

type mockProcedureRepo struct {
	items map[uuid.UUID]*Procedure
}

func (m *mockProcedureRepo) Create(_ context.Context, p *Procedure) error {
	p.ID = uuid.New()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockProcedureRepo) GetByID(_ context.Context, id uuid.UUID) (*Procedure, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProcedureRepo) Update(_ context.Context, p *Procedure) error {
	if _, ok := m.items[p.ID]; !ok {
		return apperr.ErrNotFound
	}
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockProcedureRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockProcedureRepo) List(_ context.Context, categoryID *uuid.UUID, activeOnly bool) ([]*Procedure, error) {
	var r []*Procedure
	for _, p := range m.items {
		if categoryID != nil && p.CategoryID != *categoryID {
			continue
		}
		if activeOnly && !p.IsActive {
			continue
		}
		cp := *p
		r = append(r, &cp)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Name < r[j].Name })
	return r, nil
}

type testEnv struct {
	svc        *Service
	categories *mockCategoryRepo
	procedures *mockProcedureRepo
}

func newTestEnv() *testEnv {
	procs := &mockProcedureRepo{items: make(map[uuid.UUID]*Procedure)}
	cats := &mockCategoryRepo{items: make(map[uuid.UUID]*Category), procs: procs}
	return &testEnv{
		svc:        NewService(cats, procs, zerolog.Nop()),
		categories: cats,
		procedures: procs,
	}
}

func (e *testEnv) seedCategory(t *testing.T, name string) *Category {
	t.Helper()
	c, err := e.svc.CreateCategory(context.Background(), CategoryInput{Name: name})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
	return c
}

func (e *testEnv) seedProcedure(t *testing.T, categoryID uuid.UUID, name string, price int64) *Procedure {
	t.Helper()
	p, err := e.svc.CreateProcedure(context.Background(), CreateProcedureInput{
		CategoryID: categoryID, Name: name, Price: price,
	})
	if err != nil {
		t.Fatalf("seed procedure: %v", err)
	}
	return p
}

func boolPtr(b bool) *bool { return &b }

// -- Tests --

func TestService_CreateCategory(t *testing.T) {
	env := newTestEnv()
	c, err := env.svc.CreateCategory(context.Background(), CategoryInput{Name: "  Implants "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Name != "Implants" || !c.IsActive {
		t.Errorf("unexpected category: %+v", c)
	}
	if _, err := env.svc.CreateCategory(context.Background(), CategoryInput{Name: " "}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected ErrValidation for blank name, got %v", err)
	}
}

func TestService_UpdateCategory_KeepsNameWhenBlank(t *testing.T) {
	env := newTestEnv()
	c := env.seedCategory(t, "Surgery")
	got, err := env.svc.UpdateCategory(context.Background(), c.ID, CategoryInput{IsActive: boolPtr(false)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Surgery" || got.IsActive {
		t.Errorf("unexpected category: %+v", got)
	}
}

func TestService_DeleteCategory_BlockedByServices(t *testing.T) {
	env := newTestEnv()
	c := env.seedCategory(t, "Surgery")
	env.seedProcedure(t, c.ID, "Extraction", 500)

	err := env.svc.DeleteCategory(context.Background(), c.ID)
	if !errors.Is(err, apperr.ErrReferentialBlock) {
		t.Fatalf("expected ErrReferentialBlock, got %v", err)
	}
	if _, ok := env.categories.items[c.ID]; !ok {
		t.Error("category should remain")
	}
}

func TestService_DeleteCategory(t *testing.T) {
	env := newTestEnv()
	c := env.seedCategory(t, "Surgery")
	if err := env.svc.DeleteCategory(context.Background(), c.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.svc.DeleteCategory(context.Background(), c.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestService_CreateProcedure(t *testing.T) {
	env := newTestEnv()
	c := env.seedCategory(t, "Hygiene")
	p := env.seedProcedure(t, c.ID, "Scaling", 300)
	if p.Duration != DefaultDuration || !p.IsActive {
		t.Errorf("expected defaults, got %+v", p)
	}
	if p.Category == nil || p.Category.Name != "Hygiene" {
		t.Errorf("expected category ref, got %+v", p.Category)
	}
}

func TestService_CreateProcedure_Validation(t *testing.T) {
	env := newTestEnv()
	c := env.seedCategory(t, "Hygiene")
	tests := []struct {
		name string
		in   CreateProcedureInput
		want error
	}{
		{"missing name", CreateProcedureInput{CategoryID: c.ID, Price: 1}, apperr.ErrValidation},
		{"missing category", CreateProcedureInput{Name: "X", Price: 1}, apperr.ErrValidation},
		{"negative price", CreateProcedureInput{CategoryID: c.ID, Name: "X", Price: -1}, apperr.ErrValidation},
		{"negative duration", CreateProcedureInput{CategoryID: c.ID, Name: "X", Duration: -5}, apperr.ErrValidation},
		{"unknown category", CreateProcedureInput{CategoryID: uuid.New(), Name: "X"}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.CreateProcedure(context.Background(), tt.in); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(env.procedures.items) != 0 {
		t.Errorf("no procedure should be stored, got %d", len(env.procedures.items))
	}
}

func TestService_UpdateProcedure_MoveCategory(t *testing.T) {
	env := newTestEnv()
	a := env.seedCategory(t, "Hygiene")
	b := env.seedCategory(t, "Surgery")
	p := env.seedProcedure(t, a.ID, "Scaling", 300)

	price := int64(350)
	got, err := env.svc.UpdateProcedure(context.Background(), p.ID, UpdateProcedureInput{CategoryID: &b.ID, Price: &price})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CategoryID != b.ID || got.Price != 350 || got.Category.Name != "Surgery" {
		t.Errorf("unexpected procedure: %+v", got)
	}

	missing := uuid.New()
	if _, err := env.svc.UpdateProcedure(context.Background(), p.ID, UpdateProcedureInput{CategoryID: &missing}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown category, got %v", err)
	}
	neg := int64(-1)
	if _, err := env.svc.UpdateProcedure(context.Background(), p.ID, UpdateProcedureInput{Price: &neg}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected ErrValidation for negative price, got %v", err)
	}
	if env.procedures.items[p.ID].Price != 350 {
		t.Errorf("rejected update must not be stored, price %d", env.procedures.items[p.ID].Price)
	}
}

func TestService_PriceList(t *testing.T) {
	env := newTestEnv()
	hyg := env.seedCategory(t, "Hygiene")
	surg := env.seedCategory(t, "Surgery")
	closed := env.seedCategory(t, "Closed")
	env.seedProcedure(t, hyg.ID, "Scaling", 300)
	retired := env.seedProcedure(t, hyg.ID, "Polish", 100)
	env.seedProcedure(t, closed.ID, "Old", 1)
	if _, err := env.svc.UpdateProcedure(context.Background(), retired.ID, UpdateProcedureInput{IsActive: boolPtr(false)}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.UpdateCategory(context.Background(), closed.ID, CategoryInput{IsActive: boolPtr(false)}); err != nil {
		t.Fatal(err)
	}

	list, err := env.svc.PriceList(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 active categories, got %d", len(list))
	}
	if list[0].ID != hyg.ID || len(list[0].Services) != 1 || list[0].Services[0].Name != "Scaling" {
		t.Errorf("unexpected hygiene group: %+v", list[0])
	}
	if list[1].ID != surg.ID || list[1].Services == nil || len(list[1].Services) != 0 {
		t.Errorf("expected empty service list for surgery, got %+v", list[1].Services)
	}
}

func TestService_ServiceName(t *testing.T) {
	env := newTestEnv()
	c := env.seedCategory(t, "Hygiene")
	p := env.seedProcedure(t, c.ID, "Scaling", 300)

	name, err := env.svc.ServiceName(context.Background(), p.ID)
	if err != nil || name != "Scaling" {
		t.Errorf("expected Scaling, got %q (%v)", name, err)
	}
	if _, err := env.svc.ServiceName(context.Background(), uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
