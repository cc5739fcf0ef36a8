package iap

import "errors"

var (
	ErrProductNotFound        = errors.New("product not found")
	ErrUnsupportedProductKind = errors.New("unsupported product kind for this operation")
	ErrFailedToLoadProducts   = errors.New("failed to load product list")
	ErrInvalidProductList     = errors.New("invalid product list")

	ErrPurchaseInProgress            = errors.New("purchase already in progress")
	ErrPurchaseException             = errors.New("purchase failed")
	ErrTransactionVerificationFailed = errors.New("transaction verification failed")
	ErrProductMismatch               = errors.New("transaction belongs to another product")
	ErrTransactionNotActive          = errors.New("transaction no longer grants access")
	ErrPaymentsNotAllowed            = errors.New("payments are not allowed on this device or account")

	ErrEntitlementSourceUnavailable = errors.New("remote entitlement source unavailable")
	ErrInvalidSignedPayload         = errors.New("invalid signed payload")
	ErrUntrustedCertificate         = errors.New("signing certificate is not trusted")
	ErrFeedClosed                   = errors.New("update feed is closed")

	// Provider-specific errors
	ErrMissingAPIKey              = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret       = errors.New("billing provider webhook secret is required")
	ErrInvalidProviderEnvironment = errors.New("invalid billing provider environment")
	ErrWebhookVerificationFailed  = errors.New("webhook signature verification failed")
	ErrNoCheckoutURL              = errors.New("no checkout URL returned from provider")
	ErrMissingPriceID             = errors.New("price ID is required")
)
