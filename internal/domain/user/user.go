// Package user defines the user directory collaborator consumed by checkout.
package user

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("user not found")

// User is the directory's view of a customer.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Address is a postal address. Checkout copies addresses by value into the
// payment record, so later edits in the address book never alter a
// historical payment.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// Directory provides lookup of users and persistence of their addresses.
type Directory interface {
	GetUser(ctx context.Context, id string) (*User, error)
	UpsertAddress(ctx context.Context, userID string, addr Address) error
}
