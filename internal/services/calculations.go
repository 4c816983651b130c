package services

import (
	"context"
	"errors"
	"time"

	"github.com/calcforest/calcforest/internal/apperr"
	"github.com/calcforest/calcforest/internal/calc"
	"github.com/calcforest/calcforest/internal/metrics"
	"github.com/calcforest/calcforest/internal/models"
	"github.com/calcforest/calcforest/internal/store"
	"github.com/sirupsen/logrus"
)

// EventCalculationCreated is broadcast after every successful write.
const EventCalculationCreated = "calculation.created"

const (
	msgNumberRequired    = "A valid number is required"
	msgParentRequired    = "parentId is required"
	msgOperationRequired = "Valid operation is required (add, subtract, multiply, divide)"
	msgOperandRequired   = "A valid operand number is required"
	msgDivisionByZero    = "Division by zero is not allowed"
	msgResultOutOfRange  = "Result is not a finite number"
	msgParentNotFound    = "Parent calculation not found"
	msgNotFound          = "Calculation not found"
)

// Broadcaster receives events for live viewers. Delivery is best-effort.
type Broadcaster interface {
	Broadcast(eventType string, data any)
}

// OperationInput is a request to append an operation to an existing node.
// Operand is nil when the client sent none.
type OperationInput struct {
	ParentID  string
	Operation string
	Operand   *float64
}

type CalculationService struct {
	calculations store.CalculationStore
	log          *logrus.Logger
	metrics      *metrics.Collector
	broadcaster  Broadcaster
	now          func() time.Time
}

type Option func(*CalculationService)

// WithClock overrides the time source used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *CalculationService) {
		s.now = now
	}
}

func WithBroadcaster(b Broadcaster) Option {
	return func(s *CalculationService) {
		s.broadcaster = b
	}
}

func NewCalculationService(calculations store.CalculationStore, log *logrus.Logger, m *metrics.Collector, opts ...Option) *CalculationService {
	s := &CalculationService{
		calculations: calculations,
		log:          log,
		metrics:      m,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRoot stores a starting number.
func (s *CalculationService) CreateRoot(ctx context.Context, actor Actor, number float64) (Node, error) {
	if !calc.Finite(number) {
		return Node{}, apperr.Validation(msgNumberRequired)
	}

	row, err := s.calculations.CreateCalculation(ctx, models.Calculation{
		UserID:    actor.UserID,
		Operand:   number,
		Result:    number,
		CreatedAt: s.timestamp(),
	})
	if err != nil {
		return Node{}, apperr.Internal(err)
	}

	node := nodeFromRow(row, actor)
	s.created(node, "Starting number created")
	return node, nil
}

// ApplyOperation appends in.Operation to the node in.ParentID. Input is
// checked before the parent is read, so a division by zero never reaches
// the store.
func (s *CalculationService) ApplyOperation(ctx context.Context, actor Actor, in OperationInput) (Node, error) {
	if in.ParentID == "" {
		return Node{}, apperr.Validation(msgParentRequired)
	}
	op, err := calc.ParseOperation(in.Operation)
	if err != nil {
		return Node{}, apperr.Validation(msgOperationRequired)
	}
	if in.Operand == nil {
		return Node{}, apperr.Validation(msgOperandRequired)
	}
	operand := *in.Operand

	switch err := calc.Check(op, operand); {
	case errors.Is(err, calc.ErrDivisionByZero):
		return Node{}, apperr.Validation(msgDivisionByZero)
	case err != nil:
		return Node{}, apperr.Validation(msgOperandRequired)
	}

	parentResult, err := s.calculations.GetCalculationResult(ctx, in.ParentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Node{}, apperr.NotFound(msgParentNotFound)
		}
		return Node{}, apperr.Internal(err)
	}

	result, err := calc.Apply(parentResult, op, operand)
	if err != nil {
		return Node{}, apperr.Internal(err)
	}
	if !calc.Finite(result) {
		return Node{}, apperr.Validation(msgResultOutOfRange)
	}

	parentID := in.ParentID
	operation := op.String()
	row, err := s.calculations.CreateCalculation(ctx, models.Calculation{
		UserID:    actor.UserID,
		ParentID:  &parentID,
		Operation: &operation,
		Operand:   operand,
		Result:    result,
		CreatedAt: s.timestamp(),
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidReference) {
			return Node{}, apperr.NotFound(msgParentNotFound)
		}
		return Node{}, apperr.Internal(err)
	}

	node := nodeFromRow(row, actor)
	s.created(node, "Operation appended")
	return node, nil
}

// ListFlat returns every node in creation order.
func (s *CalculationService) ListFlat(ctx context.Context) ([]Node, error) {
	records, err := s.calculations.ListCalculations(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	nodes := make([]Node, 0, len(records))
	for _, r := range records {
		nodes = append(nodes, nodeFromRecord(r))
	}
	return nodes, nil
}

// ListForest returns the root nodes with their descendants attached. It
// reads the store exactly once.
func (s *CalculationService) ListForest(ctx context.Context) ([]*Tree, error) {
	nodes, err := s.ListFlat(ctx)
	if err != nil {
		return nil, err
	}
	return BuildForest(nodes), nil
}

func (s *CalculationService) GetByID(ctx context.Context, id string) (Node, error) {
	record, err := s.calculations.GetCalculation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Node{}, apperr.NotFound(msgNotFound)
		}
		return Node{}, apperr.Internal(err)
	}
	return nodeFromRecord(record), nil
}

// BuildForest links nodes to their parents. nodes must be in creation order;
// roots and every children list keep that order. A node whose parent is not
// in nodes is dropped.
func BuildForest(nodes []Node) []*Tree {
	byID := make(map[string]*Tree, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = &Tree{Node: n, Children: []*Tree{}}
	}

	roots := make([]*Tree, 0)
	for _, n := range nodes {
		t := byID[n.ID]
		if n.ParentID == nil {
			roots = append(roots, t)
			continue
		}
		if parent, ok := byID[*n.ParentID]; ok {
			parent.Children = append(parent.Children, t)
		}
	}
	return roots
}

// timestamp is truncated to microseconds so a node reads back exactly as
// it was returned on every supported driver.
func (s *CalculationService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *CalculationService) created(node Node, msg string) {
	operation := ""
	if node.Operation != nil {
		operation = *node.Operation
	}
	s.metrics.CalculationCreated(operation)

	s.log.WithFields(logrus.Fields{
		"calculation_id": node.ID,
		"user_id":        node.UserID,
		"operation":      operation,
		"result":         node.Result,
	}).Info(msg)

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(EventCalculationCreated, node)
	}
}

func nodeFromRow(row models.Calculation, actor Actor) Node {
	return Node{
		ID:        row.ID,
		UserID:    row.UserID,
		Username:  actor.Username,
		ParentID:  row.ParentID,
		Operation: row.Operation,
		Operand:   row.Operand,
		Result:    row.Result,
		CreatedAt: row.CreatedAt.UTC(),
	}
}
