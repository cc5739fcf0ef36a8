// Package file provides blob-backed key-value stores for persisting
// entitlement snapshots on a local filesystem or in S3.
//
// Both LocalStore and S3Store satisfy iap.Store: Get returns nil, nil for a
// key that has never been written, and Set replaces the stored value.
//
// # Local filesystem
//
// LocalStore keeps one file per key under a base directory. Keys are
// resolved inside the base directory, so values like "../etc/passwd" are
// rejected with ErrInvalidPath. Writes land in a temporary file that is
// renamed into place.
//
//	import "github.com/dmitrymomot/iapkit/pkg/file"
//
//	store, err := file.NewLocalStore("/var/lib/iapkit", file.WithFileExtension(".json"))
//	if err != nil {
//		return err
//	}
//	svc, err := iap.NewService(ctx, src, storefront, verifier, store)
//
// # S3
//
// S3Store works with AWS S3 and S3-compatible services such as MinIO:
//
//	store, err := file.NewS3Store(ctx, file.S3Config{
//		Bucket:         "entitlements",
//		Region:         "us-east-1",
//		Endpoint:       "http://localhost:9000",
//		ForcePathStyle: true,
//	}, file.WithS3RequestTimeout(5*time.Second))
//
// Pass WithS3Client to substitute a pre-configured or mock client.
//
// # Error Handling
//
// S3 failures are classified into sentinel errors such as ErrAccessDenied,
// ErrBucketNotFound and ErrServiceUnavailable. Context cancellation maps to
// ErrOperationCanceled and deadlines to ErrOperationTimeout.
package file
