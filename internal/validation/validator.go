package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// reject orders that list the same product twice; quantities must be
	// aggregated client-side so the reservation transaction sees one line per
	// product
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	seen := map[string]bool{}
	for _, it := range req.Items {
		if seen[it.ProductID] {
			sl.ReportError(req.Items, "items", "Items", "unique_products", it.ProductID)
			return
		}
		seen[it.ProductID] = true
	}
}
