package newsletter

import "errors"

var (
	ErrAlreadySubscribed   = errors.New("email is already subscribed to newsletter")
	ErrAlreadyUnsubscribed = errors.New("email is already unsubscribed")
	ErrAlreadyBounced      = errors.New("subscription is already marked bounced")
)
