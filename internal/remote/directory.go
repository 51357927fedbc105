package remote

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"

	"github.com/bazarhq/fulfillment/internal/domain/user"
)

// ErrDirectoryUnavailable indicates a timeout or transport failure talking
// to the user directory.
var ErrDirectoryUnavailable = errors.New("user directory unavailable")

var _ user.Directory = (*Directory)(nil)

// Directory talks to the user directory service.
type Directory struct {
	client *client
}

// NewDirectory creates a directory adapter for the given base URL.
func NewDirectory(baseURL string, timeout time.Duration) *Directory {
	return &Directory{
		client: newClient("directory", baseURL, timeout, ErrDirectoryUnavailable),
	}
}

// GetUser returns a user by id.
func (d *Directory) GetUser(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	err := d.client.doJSON(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(id), nil, &u)
	if err != nil {
		var stErr *StatusError
		if errors.As(err, &stErr) && stErr.Code == http.StatusNotFound {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UpsertAddress saves an address into the user's address book.
func (d *Directory) UpsertAddress(ctx context.Context, userID string, addr user.Address) error {
	return d.client.doJSON(ctx, http.MethodPut, "/v1/users/"+url.PathEscape(userID)+"/addresses", addr, nil)
}
