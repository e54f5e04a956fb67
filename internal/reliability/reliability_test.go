package reliability

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aristath/phaselock/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	keys    []string
	bodies  [][]byte
	err     error
	bucket  string
	content string
}

func (u *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if u.err != nil {
		return nil, u.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	u.bucket = aws.ToString(in.Bucket)
	u.content = aws.ToString(in.ContentType)
	u.keys = append(u.keys, aws.ToString(in.Key))
	u.bodies = append(u.bodies, body)
	return &manager.UploadOutput{}, nil
}

type fakeStore struct {
	objects []types.Object
	deleted []string
}

func (s *fakeStore) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return &s3.ListObjectsV2Output{Contents: s.objects, IsTruncated: aws.Bool(false)}, nil
}

func (s *fakeStore) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	s.deleted = append(s.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func newTestArchiver(up *fakeUploader, store *fakeStore) *S3Archiver {
	return &S3Archiver{
		enabled:  true,
		bucket:   "runs",
		prefix:   "reports",
		uploader: up,
		store:    store,
		log:      zerolog.Nop(),
	}
}

func TestS3Archiver_Archive(t *testing.T) {
	up := &fakeUploader{}
	a := newTestArchiver(up, &fakeStore{})

	key, err := a.Archive(context.Background(), "run-1", time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC), []byte{0x81, 0xa1})
	require.NoError(t, err)
	assert.Equal(t, "reports/2026/03/run-1.msgpack", key)
	assert.Equal(t, []string{key}, up.keys)
	assert.Equal(t, []byte{0x81, 0xa1}, up.bodies[0])
	assert.Equal(t, "runs", up.bucket)
	assert.Equal(t, archiveContentType, up.content)
}

func TestS3Archiver_ArchiveError(t *testing.T) {
	a := newTestArchiver(&fakeUploader{err: errors.New("denied")}, &fakeStore{})

	_, err := a.Archive(context.Background(), "run-1", time.Now(), []byte{1})
	assert.ErrorContains(t, err, "denied")
}

func TestS3Archiver_Disabled(t *testing.T) {
	a, err := NewS3Archiver(context.Background(), config.ArchiveConfig{Prefix: "/reports/"}, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, a.Enabled())

	_, err = a.Archive(context.Background(), "run-1", time.Now(), nil)
	assert.Error(t, err)

	list, err := a.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, "reports/1970/01/x.msgpack", a.Key("x", time.Unix(0, 0)))
}

func TestS3Archiver_ListAndPrune(t *testing.T) {
	old := time.Now().Add(-60 * 24 * time.Hour)
	recent := time.Now()
	store := &fakeStore{objects: []types.Object{
		{Key: aws.String("reports/2026/01/old.msgpack"), Size: aws.Int64(10), LastModified: &old},
		{Key: aws.String("reports/2026/03/new.msgpack"), Size: aws.Int64(20), LastModified: &recent},
		{Key: aws.String("reports/README"), LastModified: &old},
	}}
	a := newTestArchiver(&fakeUploader{}, store)

	list, err := a.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "old", list[0].RunID)
	assert.Equal(t, int64(20), list[1].SizeBytes)

	n, err := a.PruneBefore(context.Background(), time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"reports/2026/01/old.msgpack"}, store.deleted)
}

type fakeDB struct {
	modes []string
	err   error
}

func (d *fakeDB) WALCheckpoint(mode string) error {
	d.modes = append(d.modes, mode)
	return d.err
}

type fakeRuns struct {
	cutoff time.Time
	err    error
}

func (r *fakeRuns) PruneBefore(t time.Time) (int64, error) {
	r.cutoff = t
	return 3, r.err
}

type fakeArchive struct {
	enabled bool
	called  bool
}

func (a *fakeArchive) Enabled() bool { return a.enabled }

func (a *fakeArchive) PruneBefore(context.Context, time.Time) (int, error) {
	a.called = true
	return 1, nil
}

func newTestJob(db *fakeDB, runs *fakeRuns, archive ArchivePruner, freeBytes uint64) *MaintenanceJob {
	j := NewMaintenanceJob(db, runs, archive, "/data", 30, zerolog.Nop())
	j.now = func() time.Time { return time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC) }
	j.usage = func(string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Free: freeBytes}, nil
	}
	return j
}

func TestMaintenanceJob_Run(t *testing.T) {
	db := &fakeDB{err: errors.New("busy")}
	runs := &fakeRuns{}
	archive := &fakeArchive{enabled: true}
	j := newTestJob(db, runs, archive, 50e9)

	require.NoError(t, j.Run())
	assert.Equal(t, "maintenance", j.Name())
	assert.Equal(t, []string{"TRUNCATE"}, db.modes)
	assert.Equal(t, time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC), runs.cutoff)
	assert.True(t, archive.called)
}

func TestMaintenanceJob_SkipsDisabledArchive(t *testing.T) {
	archive := &fakeArchive{}
	j := newTestJob(&fakeDB{}, &fakeRuns{}, archive, 50e9)

	require.NoError(t, j.Run())
	assert.False(t, archive.called)
}

func TestMaintenanceJob_Failures(t *testing.T) {
	j := newTestJob(&fakeDB{}, &fakeRuns{err: errors.New("locked")}, nil, 50e9)
	assert.ErrorContains(t, j.Run(), "locked")

	j = newTestJob(&fakeDB{}, &fakeRuns{}, nil, 1e8)
	assert.ErrorContains(t, j.Run(), "CRITICAL")

	j = newTestJob(&fakeDB{}, &fakeRuns{}, nil, 3e9)
	assert.NoError(t, j.Run())
}
