package activity

import "authflow/internal/models"

// IActivityLogger records identity service events for later review.
type IActivityLogger interface {
	Send(activity models.Activity) error
	// Search returns the matching activities, newest first, capped at limit.
	Search(criteria models.ActivityCriteria, limit int) ([]models.Activity, error)
	Close() error
}
