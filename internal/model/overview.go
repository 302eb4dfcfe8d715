package model

// ReplicaStats is the per-replica table count snapshot. Each poll replaces the
// whole snapshot; fields are never merged individually.
type ReplicaStats struct {
	Products          int64   `json:"products"`
	Orders            int64   `json:"orders"`
	Customers         int64   `json:"customers"`
	Users             int64   `json:"users"`
	PendingChanges    int64   `json:"pending_changes"`
	LastProductUpdate *string `json:"last_product_update"`
}

// ProductCell is one replica's view of a product row inside the diff matrix.
type ProductCell struct {
	Price       *float64 `json:"price"`
	Stock       *int64   `json:"stock"`
	RowVersion  *int64   `json:"row_version"`
	UpdatedByDB string   `json:"updated_by_db"`
}

// ProductMatrixRow is one product compared across all replicas. HasDiff is
// authoritative from the server and is never recomputed by the console.
type ProductMatrixRow struct {
	ProductID   string                      `json:"product_id"`
	ProductName string                      `json:"product_name"`
	HasDiff     bool                        `json:"has_diff"`
	PerDB       map[ReplicaName]ProductCell `json:"per_db"`
}

// OverviewResponse is the combined dashboard payload from GET /dashboard/overview.
type OverviewResponse struct {
	GeneratedAt         string                       `json:"generated_at"`
	DBStats             map[ReplicaName]ReplicaStats `json:"db_stats"`
	ProductMatrix       []ProductMatrixRow           `json:"product_matrix"`
	Conflicts           ConflictSnapshot             `json:"conflicts"`
	PendingChangesTotal int64                        `json:"pending_changes_total"`
	TableVolume         map[string]int64             `json:"table_volume"`
	HasConflict         bool                         `json:"has_conflict"`
	Note                *string                      `json:"note"`
}
