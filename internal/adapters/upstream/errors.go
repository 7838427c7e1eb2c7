package upstream

import (
	"errors"
	"fmt"

	"github.com/okian/draftboard/internal/domain/model"
)

// ErrTransientFetch marks any failed round trip: transport error, timeout,
// non-2xx status or an undecodable body.
var ErrTransientFetch = errors.New("transient fetch error")

// FetchError describes one failed fetch.
type FetchError struct {
	Group      model.Group
	Format     model.Format
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s/%s: status %d: %v", e.Group, e.Format, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s/%s: %v", e.Group, e.Format, e.Err)
}

// Unwrap exposes both the sentinel kind and the cause.
func (e *FetchError) Unwrap() []error {
	return []error{ErrTransientFetch, e.Err}
}
