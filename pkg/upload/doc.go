// Package upload sends large files to an upload session in slices.
//
// An upload session is created by the service and describes where the bytes
// go (uploadUrl), until when the session is valid (expirationDateTime) and
// which byte ranges are still missing (nextExpectedRanges). A Task cuts the
// missing ranges into slices of at most MaxSliceSize bytes and PUTs them one
// after another with a Content-Range header:
//
//	task, err := upload.NewTask(c.Handler(), session, file, upload.DefaultConfig())
//	result, err := task.Upload(ctx)
//
// A slice failing with a transient error (transport failure, 408, 5xx) is
// sent once more. A slice the server reports as an invalid range was already
// applied and is skipped. When a full pass over the missing ranges ends
// without the final item, the session status is fetched again and a new pass
// starts after BaseDelay * tries². After MaxTries passes the upload fails with
// sdkerrors.CodeUploadCanceled carrying every recorded error.
//
// With a SessionStore configured the session is persisted after every change,
// so an interrupted upload can continue in another process via LoadTask.
//
// A Task is not safe for concurrent use.
package upload
