package model

import (
	"fmt"
	"strings"
)

// ReplicaName identifies one of the database replicas kept consistent by the
// external sync engine.
type ReplicaName string

const (
	// ReplicaMySQL is the MySQL replica.
	ReplicaMySQL ReplicaName = "mysql"
	// ReplicaPostgres is the PostgreSQL replica.
	ReplicaPostgres ReplicaName = "postgres"
	// ReplicaMSSQL is the SQL Server replica.
	ReplicaMSSQL ReplicaName = "mssql"
)

const errorMessageUnknownReplica = "model: unknown replica"

// ReplicaOrder lists every replica in the display order used by the console.
var ReplicaOrder = []ReplicaName{ReplicaMySQL, ReplicaPostgres, ReplicaMSSQL}

// ParseReplicaName normalizes a replica identifier supplied by an operator.
func ParseReplicaName(value string) (ReplicaName, error) {
	normalized := ReplicaName(strings.ToLower(strings.TrimSpace(value)))
	for _, knownReplica := range ReplicaOrder {
		if normalized == knownReplica {
			return knownReplica, nil
		}
	}
	return "", fmt.Errorf("%s: %q", errorMessageUnknownReplica, value)
}

// Upper returns the replica name in the uppercase form used for display.
func (replica ReplicaName) Upper() string {
	return strings.ToUpper(string(replica))
}
