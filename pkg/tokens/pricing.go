package tokens

const (
	contactBaseCost   int64 = 100
	contactCostCap    int64 = 800
	followersPerToken int64 = 10_000
)

// ContactCost maps an influencer's follower count to a token price:
// 100 base plus one token per 10,000 followers, capped at 800.
// Monotonic non-decreasing, bounded in [100, 800]. Pure; no I/O.
func ContactCost(followerCount int64) int64 {
	if followerCount < 0 {
		followerCount = 0
	}
	cost := contactBaseCost + followerCount/followersPerToken
	if cost > contactCostCap {
		return contactCostCap
	}
	return cost
}
