package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordUpload(t *testing.T) {
	okBefore := testutil.ToFloat64(UploadsTotal.WithLabelValues("thumbnail", "ok"))
	errBefore := testutil.ToFloat64(UploadsTotal.WithLabelValues("thumbnail", "error"))
	bytesBefore := testutil.ToFloat64(UploadBytes.WithLabelValues("thumbnail"))

	RecordUpload("thumbnail", 2048, nil)
	RecordUpload("thumbnail", 0, errors.New("disk full"))

	if got := testutil.ToFloat64(UploadsTotal.WithLabelValues("thumbnail", "ok")) - okBefore; got != 1 {
		t.Fatalf("expected one successful upload, got %v", got)
	}
	if got := testutil.ToFloat64(UploadsTotal.WithLabelValues("thumbnail", "error")) - errBefore; got != 1 {
		t.Fatalf("expected one failed upload, got %v", got)
	}
	if got := testutil.ToFloat64(UploadBytes.WithLabelValues("thumbnail")) - bytesBefore; got != 2048 {
		t.Fatalf("expected 2048 bytes recorded, got %v", got)
	}
}

func TestRecordLikeToggle(t *testing.T) {
	before := testutil.ToFloat64(LikesToggled.WithLabelValues("true"))
	RecordLikeToggle(true)
	if got := testutil.ToFloat64(LikesToggled.WithLabelValues("true")) - before; got != 1 {
		t.Fatalf("expected liked counter to increase by 1, got %v", got)
	}
}

func TestRecordSweep(t *testing.T) {
	before := testutil.ToFloat64(BlobsSwept)
	RecordSweep(3, 20*time.Millisecond)
	if got := testutil.ToFloat64(BlobsSwept) - before; got != 3 {
		t.Fatalf("expected 3 swept blobs, got %v", got)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(HTTPActiveRequests) - before; got != 1 {
		t.Fatalf("expected gauge to rise by 1, got %v", got)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(HTTPActiveRequests); got != before {
		t.Fatalf("expected gauge back at %v, got %v", before, got)
	}
}
