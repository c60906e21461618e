package patterns

// DefaultFusionAlpha keeps the literal query dominant over tenant bias.
const DefaultFusionAlpha = 0.7

// FuseEmbeddings blends a query vector with a tenant vector:
// fused[i] = alpha*query[i] + (1-alpha)*tenant[i].
//
// Tenants bias ranking, they never exclude patterns. When the dimensions
// differ, or either vector is empty, the query is returned unchanged.
func FuseEmbeddings(query, tenant []float32, alpha float64) []float32 {
	if len(query) == 0 || len(query) != len(tenant) {
		return query
	}
	fused := make([]float32, len(query))
	for i := range query {
		fused[i] = float32(alpha*float64(query[i]) + (1-alpha)*float64(tenant[i]))
	}
	return fused
}
