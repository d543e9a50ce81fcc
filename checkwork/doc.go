// Package checkwork draws verification points inside an assigned interval and
// checks a worker's submission against them.
//
// A worker proves it scanned its block by returning the scalars whose derived
// identifiers match the sampled ones. Sampling is stratified so points cover
// the whole block:
//
//	[start ─ anchor (5%) ─┬─ stratum ─┬─ stratum ─┬─ ... ─┬─ anchor (2%) ─ end)
//
// One point is drawn from a zone at each end of the block, and the remaining
// points are drawn one per equal-length stratum of the middle region. This
// catches workers that skip either end and avoids the clustering that pure
// uniform draws produce by chance.
//
// Sampling never fails: degenerate inputs fall back to uniform draws over
// whatever region remains valid, possibly returning fewer points than asked.
package checkwork
