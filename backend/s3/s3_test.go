package s3backend

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	pd "github.com/unkn0wn-root/persidict"
	"github.com/unkn0wn-root/persidict/codec"
)

// apiError is a minimal smithy.APIError for exercising the precondition
// and not-found classification paths without a live S3 endpoint.
type apiError struct{ code string }

func (e apiError) Error() string             { return "api error: " + e.code }
func (e apiError) ErrorCode() string         { return e.code }
func (e apiError) ErrorMessage() string      { return e.code }
func (e apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

type fakeObject struct {
	data  []byte
	etag  string
	mtime time.Time
}

// fakeClient is an in-memory stand-in for *s3.Client, just enough of S3's
// semantics (ETags, If-Match/If-None-Match, delimiter listing) to exercise
// Backend without a network round trip.
type fakeClient struct {
	objects map[string]*fakeObject
	nextTag int
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: make(map[string]*fakeObject)}
}

func (c *fakeClient) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (c *fakeClient) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	return &s3.CreateBucketOutput{}, nil
}

func (c *fakeClient) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, ok := c.objects[*in.Key]
	if !ok {
		return nil, &types.NotFound{}
	}
	tag := `"` + obj.etag + `"`
	return &s3.HeadObjectOutput{ETag: &tag, LastModified: &obj.mtime}, nil
}

func (c *fakeClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := c.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	tag := `"` + obj.etag + `"`
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data)), ETag: &tag, LastModified: &obj.mtime}, nil
}

func (c *fakeClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := *in.Key
	existing, exists := c.objects[key]

	if in.IfNoneMatch != nil {
		want := *in.IfNoneMatch
		if want == "*" {
			if exists {
				return nil, apiError{code: "PreconditionFailed"}
			}
		} else if exists && existing.etag == strings.Trim(want, `"`) {
			return nil, apiError{code: "PreconditionFailed"}
		}
	}
	if in.IfMatch != nil {
		want := strings.Trim(*in.IfMatch, `"`)
		if !exists || existing.etag != want {
			return nil, apiError{code: "PreconditionFailed"}
		}
	}

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.nextTag++
	tag := strconv.Itoa(c.nextTag)
	c.objects[key] = &fakeObject{data: data, etag: tag, mtime: time.Now().Add(time.Duration(c.nextTag) * time.Millisecond)}
	return &s3.PutObjectOutput{}, nil
}

func (c *fakeClient) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(c.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (c *fakeClient) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := ""
	if in.Prefix != nil {
		prefix = *in.Prefix
	}
	out := &s3.ListObjectsV2Output{}
	if in.Delimiter == nil {
		for key, obj := range c.objects {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			k := key
			mt := obj.mtime
			out.Contents = append(out.Contents, types.Object{Key: &k, LastModified: &mt})
		}
		return out, nil
	}

	delim := *in.Delimiter
	seen := make(map[string]bool)
	for key := range c.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		idx := strings.Index(rest, delim)
		if idx < 0 {
			continue
		}
		common := prefix + rest[:idx+len(delim)]
		if !seen[common] {
			seen[common] = true
			cp := common
			out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: &cp})
		}
	}
	return out, nil
}

func newBackend(t *testing.T, cfg pd.Config[string]) (*Backend[string], *fakeClient) {
	t.Helper()
	client := newFakeClient()
	b, err := New[string](context.Background(), cfg, client, "test-bucket", "", codec.String{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, client
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t, pd.Config[string]{})
	k := pd.MustSafeKey("users", "1")

	if err := b.Set(ctx, k, pd.RealInput("Ada")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := b.Get(ctx, k)
	if err != nil || v != "Ada" {
		t.Fatalf("Get: v=%v err=%v", v, err)
	}
}

func TestGetMissingKey(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t, pd.Config[string]{})
	if _, err := b.Get(ctx, pd.MustSafeKey("nope")); err == nil {
		t.Fatalf("expected *KeyMissingError")
	}
}

func TestDiscardRemovesObject(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t, pd.Config[string]{})
	k := pd.MustSafeKey("k")
	_ = b.Set(ctx, k, pd.RealInput("v1"))

	removed, err := b.Discard(ctx, k)
	if err != nil || !removed {
		t.Fatalf("Discard: removed=%v err=%v", removed, err)
	}
	if exists, _ := b.Contains(ctx, k); exists {
		t.Fatalf("key should be gone after Discard")
	}
}

func TestAppendOnlyForbidsOverwriteAndDelete(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t, pd.Config[string]{AppendOnly: true})
	k := pd.MustSafeKey("k")

	if err := b.Set(ctx, k, pd.RealInput("v1")); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	if err := b.Set(ctx, k, pd.RealInput("v2")); err == nil {
		t.Fatalf("overwrite should be forbidden")
	}
	if _, err := b.Discard(ctx, k); err == nil {
		t.Fatalf("delete should be forbidden")
	}
}

func TestEtagChangesOnOverwrite(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t, pd.Config[string]{})
	k := pd.MustSafeKey("k")
	_ = b.Set(ctx, k, pd.RealInput("v1"))
	first, err := b.Etag(ctx, k)
	if err != nil {
		t.Fatalf("Etag: %v", err)
	}
	_ = b.Set(ctx, k, pd.RealInput("v2"))
	second, err := b.Etag(ctx, k)
	if err != nil {
		t.Fatalf("Etag: %v", err)
	}
	if first == second {
		t.Fatalf("etag should change on overwrite")
	}
}

// TestSetItemIfUsesConditionalHeaders confirms EtagIsTheSame maps onto
// S3's If-Match (tag present) and If-None-Match: * (absent) headers
// rather than falling back to check-then-act.
func TestSetItemIfUsesConditionalHeaders(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t, pd.Config[string]{})
	k := pd.MustSafeKey("k")

	cr, err := b.SetItemIf(ctx, k, pd.RealInput("v1"), pd.ItemNotAvailable, pd.EtagIsTheSame, pd.AlwaysRetrieve)
	if err != nil || !cr.ConditionWasSatisfied {
		t.Fatalf("first insert should succeed: cr=%+v err=%v", cr, err)
	}

	cr2, err := b.SetItemIf(ctx, k, pd.RealInput("v2"), pd.ItemNotAvailable, pd.EtagIsTheSame, pd.AlwaysRetrieve)
	if err != nil {
		t.Fatalf("SetItemIf stale: %v", err)
	}
	if cr2.ConditionWasSatisfied {
		t.Fatalf("stale precondition should not be satisfied")
	}
	v, err := b.Get(ctx, k)
	if err != nil || v != "v1" {
		t.Fatalf("value should be unchanged: v=%v err=%v", v, err)
	}

	tag, err := b.Etag(ctx, k)
	if err != nil {
		t.Fatalf("Etag: %v", err)
	}
	cr3, err := b.SetItemIf(ctx, k, pd.RealInput("v3"), pd.RealEtag(tag), pd.EtagIsTheSame, pd.AlwaysRetrieve)
	if err != nil || !cr3.ConditionWasSatisfied {
		t.Fatalf("matching etag should satisfy condition: cr=%+v err=%v", cr3, err)
	}
}

// TestSetItemIfEtagHasChangedRealTagUsesIfNoneMatch confirms EtagHasChanged
// with a real expected ETag maps onto IfNoneMatch: <etag> ("write iff
// different") as a single conditional PUT, not a fallback HEAD-then-PUT.
func TestSetItemIfEtagHasChangedRealTagUsesIfNoneMatch(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t, pd.Config[string]{})
	k := pd.MustSafeKey("k")
	_ = b.Set(ctx, k, pd.RealInput("v1"))
	tag, err := b.Etag(ctx, k)
	if err != nil {
		t.Fatalf("Etag: %v", err)
	}

	// expected still matches current: condition (must differ) is not
	// satisfied, object is left untouched.
	cr, err := b.SetItemIf(ctx, k, pd.RealInput("v2"), pd.RealEtag(tag), pd.EtagHasChanged, pd.AlwaysRetrieve)
	if err != nil {
		t.Fatalf("SetItemIf: %v", err)
	}
	if cr.ConditionWasSatisfied {
		t.Fatalf("matching etag should not satisfy EtagHasChanged")
	}
	v, err := b.Get(ctx, k)
	if err != nil || v != "v1" {
		t.Fatalf("value should be unchanged: v=%v err=%v", v, err)
	}

	// stale expected differs from current: condition is satisfied, write
	// proceeds as a single conditional PUT.
	cr2, err := b.SetItemIf(ctx, k, pd.RealInput("v3"), pd.RealEtag("stale-tag"), pd.EtagHasChanged, pd.AlwaysRetrieve)
	if err != nil || !cr2.ConditionWasSatisfied {
		t.Fatalf("stale etag should satisfy EtagHasChanged: cr=%+v err=%v", cr2, err)
	}
	v2, err := b.Get(ctx, k)
	if err != nil || v2 != "v3" {
		t.Fatalf("value should have been written: v=%v err=%v", v2, err)
	}
}

// TestSetItemIfEtagHasChangedItemNotAvailableUsesIfMatch confirms the
// ITEM_NOT_AVAILABLE sub-case of EtagHasChanged ("write iff exists") maps
// onto a preceding HEAD plus IfMatch: <actual from HEAD>.
func TestSetItemIfEtagHasChangedItemNotAvailableUsesIfMatch(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t, pd.Config[string]{})
	k := pd.MustSafeKey("k")

	// key does not exist yet: EtagHasChanged + ITEM_NOT_AVAILABLE means
	// "write iff exists", which is not satisfied.
	cr, err := b.SetItemIf(ctx, k, pd.RealInput("v1"), pd.ItemNotAvailable, pd.EtagHasChanged, pd.AlwaysRetrieve)
	if err != nil {
		t.Fatalf("SetItemIf: %v", err)
	}
	if cr.ConditionWasSatisfied {
		t.Fatalf("absent key should not satisfy EtagHasChanged + ITEM_NOT_AVAILABLE")
	}
	if exists, _ := b.Contains(ctx, k); exists {
		t.Fatalf("key should still not exist")
	}

	_ = b.Set(ctx, k, pd.RealInput("v1"))
	cr2, err := b.SetItemIf(ctx, k, pd.RealInput("v2"), pd.ItemNotAvailable, pd.EtagHasChanged, pd.AlwaysRetrieve)
	if err != nil || !cr2.ConditionWasSatisfied {
		t.Fatalf("existing key should satisfy EtagHasChanged + ITEM_NOT_AVAILABLE: cr=%+v err=%v", cr2, err)
	}
	v, err := b.Get(ctx, k)
	if err != nil || v != "v2" {
		t.Fatalf("value should have been written: v=%v err=%v", v, err)
	}
}

func TestKeysAndLenIgnoreDigestLen(t *testing.T) {
	ctx := context.Background()
	b, fc := newBackend(t, pd.Config[string]{DigestLen: 8})
	_ = b.Set(ctx, pd.MustSafeKey("users", "1"), pd.RealInput("Ada"))
	_ = b.Set(ctx, pd.MustSafeKey("users", "2"), pd.RealInput("Grace"))

	n, err := b.Len(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Len: n=%d err=%v", n, err)
	}
	keys, err := b.Keys(ctx)
	if err != nil || len(keys) != 2 {
		t.Fatalf("Keys: %v err=%v", keys, err)
	}
	for _, k := range keys {
		if k.At(0) != "users" {
			t.Fatalf("unexpected key shape: %v", k)
		}
	}
	for name := range fc.objects {
		if strings.Contains(name, "_") {
			t.Fatalf("DigestLen must be inert for S3Backend, got suffixed object name %q", name)
		}
	}
}

func TestGetSubdict(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t, pd.Config[string]{})
	sub, err := b.GetSubdict(ctx, pd.MustSafeKey("users"))
	if err != nil {
		t.Fatalf("GetSubdict: %v", err)
	}
	k := pd.MustSafeKey("1")
	if err := sub.Set(ctx, k, pd.RealInput("Ada")); err != nil {
		t.Fatalf("Set on subdict: %v", err)
	}
	v, err := sub.Get(ctx, k)
	if err != nil || v != "Ada" {
		t.Fatalf("sub.Get: v=%v err=%v", v, err)
	}

	rootKeys, err := b.Keys(ctx)
	if err != nil || len(rootKeys) != 1 {
		t.Fatalf("root Keys should see the subdict write: %v err=%v", rootKeys, err)
	}
}

func TestSubdictsLists(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t, pd.Config[string]{})
	_ = b.Set(ctx, pd.MustSafeKey("users", "1"), pd.RealInput("Ada"))
	_ = b.Set(ctx, pd.MustSafeKey("orders", "1"), pd.RealInput("x"))

	subs, err := b.Subdicts(ctx)
	if err != nil {
		t.Fatalf("Subdicts: %v", err)
	}
	seen := map[string]bool{}
	for _, s := range subs {
		seen[s.String()] = true
	}
	if len(subs) != 2 || !seen[pd.MustSafeKey("users").String()] || !seen[pd.MustSafeKey("orders").String()] {
		t.Fatalf("unexpected subdicts: %v", subs)
	}
}

func TestOldestAndNewestKeys(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t, pd.Config[string]{})
	_ = b.Set(ctx, pd.MustSafeKey("a"), pd.RealInput("1"))
	_ = b.Set(ctx, pd.MustSafeKey("b"), pd.RealInput("2"))

	oldest, err := b.OldestKeys(ctx, 1)
	if err != nil || len(oldest) != 1 {
		t.Fatalf("OldestKeys: %v err=%v", oldest, err)
	}
	newest, err := b.NewestKeys(ctx, 1)
	if err != nil || len(newest) != 1 {
		t.Fatalf("NewestKeys: %v err=%v", newest, err)
	}
	if oldest[0].Equal(newest[0]) {
		t.Fatalf("oldest and newest should differ: %v", oldest[0])
	}
}

func TestHeadBucketForbiddenIsAbsorbed(t *testing.T) {
	client := &forbiddenHeadClient{fakeClient: newFakeClient()}
	if _, err := New[string](context.Background(), pd.Config[string]{}, client, "someone-elses-bucket", "", codec.String{}); err != nil {
		t.Fatalf("a forbidden HeadBucket should be absorbed, not fatal: %v", err)
	}
}

type forbiddenHeadClient struct{ *fakeClient }

func (c *forbiddenHeadClient) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return nil, apiError{code: "Forbidden"}
}
