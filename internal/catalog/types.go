package catalog

// Product is the item stored in the products DynamoDB table. Price is fixed at
// seed time; stock only moves through ReserveStock and ResetBaseline.
type Product struct {
	ProductID string  `dynamodbav:"product_id" json:"id"` // PK
	Name      string  `dynamodbav:"name" json:"name"`
	Price     float64 `dynamodbav:"price" json:"price"`
	Stock     int     `dynamodbav:"stock" json:"stock"`
}

// Reservation is one line of an atomic stock reservation.
type Reservation struct {
	ProductID string
	Quantity  int
}

// baseline is the catalog the system is seeded with and reset to.
var baseline = []Product{
	{ProductID: "prod-laptop", Name: "Laptop", Price: 999.99, Stock: 100},
	{ProductID: "prod-headphones", Name: "Headphones", Price: 199.99, Stock: 50},
	{ProductID: "prod-mouse", Name: "Mouse", Price: 49.99, Stock: 200},
	{ProductID: "prod-keyboard", Name: "Keyboard", Price: 79.99, Stock: 150},
}

// Baseline returns a copy of the seed catalog.
func Baseline() []Product {
	out := make([]Product, len(baseline))
	copy(out, baseline)
	return out
}
