// Package persidict implements a persistent, hierarchical key-value store
// with ETag-based conditional operations, safe for concurrent access by
// many processes across many machines sharing a common storage substrate.
//
// Components:
//   - SafeKey: canonical, collision-safe key form; FileDirBackend adds a
//     digest suffix per rendered component.
//   - PersiDict[V]: the capability interface every backend and wrapper
//     implements (mapping ops + conditional ops + etag/timestamp/subdict).
//   - backend/memory, backend/filedir, backend/s3: the three main-storage
//     backends. Only FileDirBackend and S3Backend are durable; MemoryBackend
//     is process-local.
//   - backend/rediscache, backend/ristrettocache, backend/bigcachestore:
//     subordinate cache backends, for the value- or ETag-cache half of a
//     MutableCacheWrapper.
//   - MutableCacheWrapper, AppendOnlyCacheWrapper, WriteOnceWrapper: policy
//     and caching layers that compose around any PersiDict.
//   - TransformEngine: the get_if+set_if retry loop for read-modify-write.
//
// Conditional pattern:
//
//	r, _ := d.GetItemIf(ctx, key, persidict.ItemNotAvailable, persidict.AnyEtag, persidict.AlwaysRetrieve)
//	cr, _ := d.SetItemIf(ctx, key, persidict.RealInput(next), r.ActualEtag, persidict.EtagIsTheSame, persidict.AlwaysRetrieve)
//	if !cr.ConditionWasSatisfied {
//		// someone else wrote first; retry or use TransformEngine
//	}
package persidict
