// Package wbi implements WBI request signing.
//
// A signed query is the sorted, percent-encoded parameter set followed by
// w_rid, the MD5 of that query salted with a mixin key. The mixin key is
// a fixed permutation of imgKey+subKey truncated to 32 characters.
//
// Signing stamps params with wts (Unix seconds) before encoding, so the
// caller's map reflects the timestamp that was signed.
//
// Keys shorter than the largest permutation index (63) give a short mixin
// key. That is not reported; the result matches what the reference signer
// would produce for the same input.
//
// Example Usage:
//
//	params := map[string]any{"mid": 2, "keyword": "go"}
//	query := wbi.Sign(params, imgKey, subKey)
//	// keyword=go&mid=2&wts=1702204169&w_rid=...
package wbi
