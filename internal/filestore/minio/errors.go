package minio

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	miniogo "github.com/minio/minio-go/v7"

	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/filestore"
)

// codeKinds classifies S3 error codes. A known code wins over the HTTP
// status, which S3 sometimes reports as 200 with the error in the body.
var codeKinds = map[string]errs.ErrKind{
	"NoSuchKey":             errs.ErrKindNotFound,
	"NoSuchBucket":          errs.ErrKindNotFound,
	"NoSuchVersion":         errs.ErrKindNotFound,
	"AccessDenied":          errs.ErrKindPermissionDenied,
	"AccountProblem":        errs.ErrKindPermissionDenied,
	"ExpiredToken":          errs.ErrKindPermissionDenied,
	"InvalidAccessKeyId":    errs.ErrKindPermissionDenied,
	"SignatureDoesNotMatch": errs.ErrKindPermissionDenied,
	"InvalidArgument":       errs.ErrKindInvalidInput,
	"InvalidBucketName":     errs.ErrKindInvalidInput,
	"InvalidObjectName":     errs.ErrKindInvalidInput,
	"KeyTooLongError":       errs.ErrKindInvalidInput,
	"RequestTimeout":        errs.ErrKindTimeout,
	"SlowDown":              errs.ErrKindTimeout,
	"ServiceUnavailable":    errs.ErrKindConnectionFailed,
	"InternalError":         errs.ErrKindQueryFailed,
}

var statusKinds = map[int]errs.ErrKind{
	http.StatusNotFound:           errs.ErrKindNotFound,
	http.StatusForbidden:          errs.ErrKindPermissionDenied,
	http.StatusUnauthorized:       errs.ErrKindPermissionDenied,
	http.StatusBadRequest:         errs.ErrKindInvalidInput,
	http.StatusServiceUnavailable: errs.ErrKindConnectionFailed,
}

// kindOf classifies an SDK error. Anything unrecognised is treated as a
// transport failure.
func kindOf(err error) errs.ErrKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.ErrKindTimeout
	}
	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		if k, ok := codeKinds[resp.Code]; ok {
			return k
		}
		if k, ok := statusKinds[resp.StatusCode]; ok {
			return k
		}
	}
	return errs.ErrKindConnectionFailed
}

// objectError reports a failed read of loc in the s3:// form manifests use,
// so an ingest error names the file the way the user wrote it.
func objectError(err error, op string, loc filestore.Location) *errs.Error {
	if err == nil {
		return nil
	}
	kind := kindOf(err)

	var resp miniogo.ErrorResponse
	errors.As(err, &resp)

	var msg string
	switch {
	case resp.Code == "NoSuchBucket":
		msg = fmt.Sprintf("%s: bucket %q does not exist", loc, loc.Bucket)
	case kind == errs.ErrKindNotFound:
		msg = fmt.Sprintf("%s does not exist", loc)
	case kind == errs.ErrKindPermissionDenied:
		msg = fmt.Sprintf("access to %s denied", loc)
	default:
		msg = fmt.Sprintf("%s %s failed", op, loc)
	}
	return errs.Wrap(kind, msg, err)
}

// bucketError reports a failure that concerns a bucket rather than one
// object.
func bucketError(err error, op, bucket string) *errs.Error {
	if err == nil {
		return nil
	}
	msg := op + " failed"
	if bucket != "" {
		msg = fmt.Sprintf("%s on bucket %q failed", op, bucket)
	}
	return errs.Wrap(kindOf(err), msg, err)
}
