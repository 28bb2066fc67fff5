package catalog

type Product struct {
	ID         string
	Name       string
	PriceMinor int64 // pence
	InStock    bool
}
