package services

import (
	"time"

	"github.com/calcforest/calcforest/internal/store"
)

// Actor is the authenticated identity performing a write, taken from the
// verified token.
type Actor struct {
	UserID   string
	Username string
}

// PublicUser is the part of a user that is safe to return to clients.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type AuthResult struct {
	Token string     `json:"token"`
	User  PublicUser `json:"user"`
}

// Node is a calculation as returned to clients. ParentID and Operation are
// both nil for a starting number.
type Node struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	ParentID  *string   `json:"parentId"`
	Operation *string   `json:"operation"`
	Operand   float64   `json:"operand"`
	Result    float64   `json:"result"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tree is a node with its children attached. Children is never nil so leaves
// encode as [].
type Tree struct {
	Node
	Children []*Tree `json:"children"`
}

func nodeFromRecord(r store.CalculationRecord) Node {
	return Node{
		ID:        r.ID,
		UserID:    r.UserID,
		Username:  r.Username,
		ParentID:  r.ParentID,
		Operation: r.Operation,
		Operand:   r.Operand,
		Result:    r.Result,
		CreatedAt: r.CreatedAt.UTC(),
	}
}
