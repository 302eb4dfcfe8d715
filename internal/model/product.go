package model

// ProductInput is the payload for creating or updating a product row on one
// replica via POST /products.
type ProductInput struct {
	ProductID   *string `json:"product_id"`
	ProductName string  `json:"product_name"`
	Price       float64 `json:"price"`
	Stock       int64   `json:"stock"`
}

// Product is one product row as listed by GET /products.
type Product struct {
	ProductID   string   `json:"product_id"`
	ProductName string   `json:"product_name"`
	Price       *float64 `json:"price"`
	Stock       *int64   `json:"stock"`
	RowVersion  int64    `json:"row_version"`
	UpdatedByDB string   `json:"updated_by_db"`
	UpdatedAt   *string  `json:"updated_at"`
}

// TopCustomerRow is one row of the canned top-customers analytic query.
type TopCustomerRow struct {
	CustomerID   string  `json:"customer_id"`
	CustomerName string  `json:"customer_name"`
	TotalAmount  float64 `json:"total_amount"`
}

// TopCustomersResult is the payload of GET /queries/top-customers.
type TopCustomersResult struct {
	DB   string           `json:"db"`
	SQL  string           `json:"sql"`
	Rows []TopCustomerRow `json:"rows"`
}

// SQLRunRequest is the body of POST /queries/run.
type SQLRunRequest struct {
	DB    string `json:"db"`
	SQL   string `json:"sql"`
	Limit int64  `json:"limit"`
}

// SQLRunResult is the payload of POST /queries/run.
type SQLRunResult struct {
	DB        string           `json:"db"`
	SQL       string           `json:"sql"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int64            `json:"row_count"`
	TookMS    int64            `json:"took_ms"`
	Truncated bool             `json:"truncated"`
}
