package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrCampaignInProgress = errors.New("another campaign is already sending")
	ErrNoContent          = errors.New("campaign needs a template or a subject and body")
)
