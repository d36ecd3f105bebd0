// Package email is the Email Gateway: one message to one address through an
// external.EmailProvider, with every failure folded into the returned
// DeliveryResult.
package email

import (
	"errors"

	"amberline/internal/types"
)

// ErrRecipientBlocked marks an address the provider refuses to deliver to.
var ErrRecipientBlocked = errors.New("recipient blocked by provider")

// IsBlocklistError reports whether err means the recipient is suppressed at
// the provider, as opposed to a transient transport failure.
func IsBlocklistError(err error) bool {
	return errors.Is(err, ErrRecipientBlocked) || types.IsCode(err, types.ErrCodeEmailBlocked)
}
