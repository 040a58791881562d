package usage

import "coach-backend/internal/shared/apperr"

// ErrQuotaExceeded means the user is at the limit for the chat kind in their tier.
var ErrQuotaExceeded = apperr.ErrQuotaExceeded
