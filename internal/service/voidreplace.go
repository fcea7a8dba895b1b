package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"kantina/backend/internal/domain"
	"kantina/backend/internal/store"
	"kantina/backend/internal/xid"
)

// The void-and-replace workflow. Each owner has at most one in-memory editor:
// IDLE (no entry in the map) -> EDITING (a DRAFT replacement order exists and
// its lines are being composed) -> FINALIZED (old order VOIDED, replacement
// PAID) or back to IDLE via cancel. Edits never touch the store; only save
// and finalize do.
type editor struct {
	state      string
	oldOrderID string
	newOrderID string
	lines      []domain.EditorLine
}

func (e *editor) total() int64 {
	total := int64(0)
	for _, line := range e.lines {
		total += int64(line.Qty) * line.UnitPriceCentavos
	}
	return total
}

func (e *editor) snapshot() domain.EditorState {
	lines := make([]domain.EditorLine, len(e.lines))
	copy(lines, e.lines)
	return domain.EditorState{
		State:         e.state,
		OldOrderID:    e.oldOrderID,
		NewOrderID:    e.newOrderID,
		Lines:         lines,
		TotalCentavos: e.total(),
	}
}

func (e *editor) findLine(menuItemID string) int {
	for i, line := range e.lines {
		if line.MenuItemID == menuItemID {
			return i
		}
	}
	return -1
}

var errNoActiveEditor = fmt.Errorf("%w: no replacement in progress", store.ErrValidation)

const minVoidReasonLen = 3

func (s *Service) requireOwner(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return domain.Actor{}, fmt.Errorf("owner role required")
	}
	return actor, nil
}

// StartVoidAndReplace reads the order being corrected, persists a DRAFT copy
// of it (same branch, payment type and total, lines copied verbatim,
// replaces back-reference set) and loads the copy into the owner's editor.
// Any failure aborts the whole sequence with nothing compensated: a
// partially created draft stays in the store and the editor stays IDLE.
func (s *Service) StartVoidAndReplace(ctx context.Context, oldOrderID string) (domain.EditorState, error) {
	actor, err := s.requireOwner(ctx)
	if err != nil {
		return domain.EditorState{}, err
	}
	oldOrderID = strings.TrimSpace(oldOrderID)
	if oldOrderID == "" {
		return domain.EditorState{}, fmt.Errorf("%w: order_id is required", store.ErrValidation)
	}

	old, err := s.repo.GetOrderByID(ctx, oldOrderID)
	if err != nil {
		return domain.EditorState{}, err
	}
	switch old.Status {
	case domain.OrderStatusDraft:
		return domain.EditorState{}, fmt.Errorf("%w: cannot void a draft order", store.ErrValidation)
	case domain.OrderStatusVoided:
		return domain.EditorState{}, fmt.Errorf("%w: order %s is already voided", store.ErrConflict, oldOrderID)
	}

	itemIDs := make([]string, 0, len(old.Lines))
	for _, line := range old.Lines {
		itemIDs = append(itemIDs, line.MenuItemID)
	}
	items, err := s.repo.GetMenuItemsByIDs(ctx, itemIDs)
	if err != nil {
		return domain.EditorState{}, err
	}

	copied := make([]domain.OrderLine, len(old.Lines))
	copy(copied, old.Lines)
	draft := domain.Order{
		ID:            xid.New("ord"),
		BranchID:      old.BranchID,
		PaymentType:   old.PaymentType,
		TotalCentavos: old.TotalCentavos,
		Status:        domain.OrderStatusDraft,
		Replaces:      old.ID,
		CreatedAt:     time.Now().UTC(),
		Lines:         copied,
	}
	created, err := s.repo.CreateOrder(ctx, draft)
	if err != nil {
		return domain.EditorState{}, err
	}

	ed := &editor{
		state:      domain.EditorStateEditing,
		oldOrderID: old.ID,
		newOrderID: created.ID,
	}
	for _, line := range created.Lines {
		name := line.MenuItemID
		if item, ok := items[line.MenuItemID]; ok {
			name = item.Name
		}
		if idx := ed.findLine(line.MenuItemID); idx >= 0 {
			ed.lines[idx].Qty += line.Qty
			continue
		}
		ed.lines = append(ed.lines, domain.EditorLine{
			MenuItemID:        line.MenuItemID,
			Name:              name,
			Qty:               line.Qty,
			UnitPriceCentavos: line.UnitPriceCentavos,
		})
	}

	s.mu.Lock()
	// Starting over discards any previous editor for this owner, exactly
	// like cancel: the earlier draft row stays behind.
	s.editors[actor.Username] = ed
	state := ed.snapshot()
	s.mu.Unlock()

	log.Printf("[service] void/replace started old=%s new=%s by=%s", old.ID, created.ID, actor.Username)
	return state, nil
}

func (s *Service) EditorState(ctx context.Context) (domain.EditorState, error) {
	actor, err := s.requireOwner(ctx)
	if err != nil {
		return domain.EditorState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ed, ok := s.editors[actor.Username]
	if !ok {
		return domain.EditorState{State: domain.EditorStateIdle, Lines: []domain.EditorLine{}}, nil
	}
	return ed.snapshot(), nil
}

// AddLine adds qty of a catalog item to the editor, merging into the existing
// line when the item is already present. Only active items can be added.
func (s *Service) AddLine(ctx context.Context, menuItemID string, qty int) (domain.EditorState, error) {
	actor, err := s.requireOwner(ctx)
	if err != nil {
		return domain.EditorState{}, err
	}
	if qty < 1 {
		qty = 1
	}

	items, err := s.repo.GetMenuItemsByIDs(ctx, []string{menuItemID})
	if err != nil {
		return domain.EditorState{}, err
	}
	item, exists := items[menuItemID]
	if !exists || !item.Active {
		return domain.EditorState{}, fmt.Errorf("%w: unknown or inactive menu item %q", store.ErrValidation, menuItemID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ed, ok := s.editors[actor.Username]
	if !ok || ed.state != domain.EditorStateEditing {
		return domain.EditorState{}, errNoActiveEditor
	}

	if idx := ed.findLine(menuItemID); idx >= 0 {
		ed.lines[idx].Qty += qty
	} else {
		ed.lines = append(ed.lines, domain.EditorLine{
			MenuItemID:        item.ID,
			Name:              item.Name,
			Qty:               qty,
			UnitPriceCentavos: item.PriceCentavos,
		})
	}
	return ed.snapshot(), nil
}

func (s *Service) IncrementLine(ctx context.Context, menuItemID string) (domain.EditorState, error) {
	return s.adjustLine(ctx, menuItemID, +1)
}

// DecrementLine floors at quantity 1; removing the line entirely is a
// separate, deliberate action.
func (s *Service) DecrementLine(ctx context.Context, menuItemID string) (domain.EditorState, error) {
	return s.adjustLine(ctx, menuItemID, -1)
}

func (s *Service) adjustLine(ctx context.Context, menuItemID string, delta int) (domain.EditorState, error) {
	actor, err := s.requireOwner(ctx)
	if err != nil {
		return domain.EditorState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ed, ok := s.editors[actor.Username]
	if !ok || ed.state != domain.EditorStateEditing {
		return domain.EditorState{}, errNoActiveEditor
	}

	idx := ed.findLine(menuItemID)
	if idx < 0 {
		return domain.EditorState{}, fmt.Errorf("%w: item %q is not in the replacement", store.ErrValidation, menuItemID)
	}
	next := ed.lines[idx].Qty + delta
	if next < 1 {
		next = 1
	}
	ed.lines[idx].Qty = next
	return ed.snapshot(), nil
}

func (s *Service) RemoveLine(ctx context.Context, menuItemID string) (domain.EditorState, error) {
	actor, err := s.requireOwner(ctx)
	if err != nil {
		return domain.EditorState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ed, ok := s.editors[actor.Username]
	if !ok || ed.state != domain.EditorStateEditing {
		return domain.EditorState{}, errNoActiveEditor
	}

	idx := ed.findLine(menuItemID)
	if idx < 0 {
		return domain.EditorState{}, fmt.Errorf("%w: item %q is not in the replacement", store.ErrValidation, menuItemID)
	}
	ed.lines = append(ed.lines[:idx], ed.lines[idx+1:]...)
	return ed.snapshot(), nil
}

// SaveReplacementDraft writes the editor lines over the draft order: the full
// line set is replaced (never diffed) and the order total updated to match,
// so saving twice with unchanged lines persists the identical result.
func (s *Service) SaveReplacementDraft(ctx context.Context) (domain.EditorState, error) {
	actor, err := s.requireOwner(ctx)
	if err != nil {
		return domain.EditorState{}, err
	}

	s.mu.Lock()
	ed, ok := s.editors[actor.Username]
	if !ok || ed.state != domain.EditorStateEditing {
		s.mu.Unlock()
		return domain.EditorState{}, errNoActiveEditor
	}
	state := ed.snapshot()
	s.mu.Unlock()

	if err := s.persistDraft(ctx, state); err != nil {
		return domain.EditorState{}, err
	}
	return state, nil
}

func (s *Service) persistDraft(ctx context.Context, state domain.EditorState) error {
	lines := make([]domain.OrderLine, 0, len(state.Lines))
	for _, line := range state.Lines {
		lines = append(lines, domain.OrderLine{
			OrderID:           state.NewOrderID,
			MenuItemID:        line.MenuItemID,
			Qty:               line.Qty,
			UnitPriceCentavos: line.UnitPriceCentavos,
			LineTotalCentavos: int64(line.Qty) * line.UnitPriceCentavos,
		})
	}
	return s.repo.ReplaceOrderLines(ctx, state.NewOrderID, lines, state.TotalCentavos)
}

// FinalizeReplacement enforces both preconditions before any store write: a
// trimmed void reason of at least three characters, and at least one
// replacement line. It then re-saves the draft unconditionally so the
// persisted pair matches the editor, and flips new->PAID, old->VOIDED with
// the audit metadata and back-reference.
func (s *Service) FinalizeReplacement(ctx context.Context, reason string) (domain.FinalizeResponse, error) {
	actor, err := s.requireOwner(ctx)
	if err != nil {
		return domain.FinalizeResponse{}, err
	}

	reason = strings.TrimSpace(reason)
	if len(reason) < minVoidReasonLen {
		return domain.FinalizeResponse{}, fmt.Errorf("%w: void reason must be at least %d characters", store.ErrValidation, minVoidReasonLen)
	}

	s.mu.Lock()
	ed, ok := s.editors[actor.Username]
	if !ok || ed.state != domain.EditorStateEditing {
		s.mu.Unlock()
		return domain.FinalizeResponse{}, errNoActiveEditor
	}
	state := ed.snapshot()
	s.mu.Unlock()

	if len(state.Lines) == 0 {
		return domain.FinalizeResponse{}, fmt.Errorf("%w: replacement order has no lines", store.ErrValidation)
	}

	if err := s.persistDraft(ctx, state); err != nil {
		return domain.FinalizeResponse{}, err
	}

	oldOrder, newOrder, err := s.repo.FinalizeReplacement(ctx, state.OldOrderID, state.NewOrderID, reason, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.FinalizeResponse{}, err
	}

	newLines, err := s.repo.ListOrderLinesByOrderIDs(ctx, []string{newOrder.ID})
	if err == nil {
		newOrder.Lines = newLines
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("[service] WARN: failed to reload replacement lines: %v", err)
	}

	s.mu.Lock()
	if current, ok := s.editors[actor.Username]; ok && current == ed {
		current.state = domain.EditorStateFinalized
	}
	s.mu.Unlock()

	log.Printf("[service] void/replace finalized old=%s new=%s reason=%q by=%s", oldOrder.ID, newOrder.ID, reason, actor.Username)
	return domain.FinalizeResponse{OldOrder: *oldOrder, NewOrder: *newOrder}, nil
}

// CancelReplacement drops the in-memory editor and returns to IDLE. The
// already-created DRAFT order row is intentionally not deleted; the
// reconciliation report lists such leftovers.
func (s *Service) CancelReplacement(ctx context.Context) (domain.EditorState, error) {
	actor, err := s.requireOwner(ctx)
	if err != nil {
		return domain.EditorState{}, err
	}

	s.mu.Lock()
	delete(s.editors, actor.Username)
	s.mu.Unlock()

	return domain.EditorState{State: domain.EditorStateIdle, Lines: []domain.EditorLine{}}, nil
}
