// Package discovery resolves the physical DynamoDB tables belonging to one
// backend environment. Amplify names tables {Logical}-{suffix}-{stage};
// matching on the suffix segment is exact and case-sensitive.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/envshift/config"
	"github.com/envshift/store"
)

// Table pairs a logical model name with the physical table it lives in.
// Exists is false for explicitly requested tables the listing did not show;
// the exporter reports those as a warning with zero records.
type Table struct {
	Logical  string
	Physical string
	Exists   bool
}

// PhysicalName builds the physical table name for a logical model in an
// environment.
func PhysicalName(logical string, env config.Environment) string {
	return fmt.Sprintf("%s-%s-%s", logical, env.Suffix, env.Stage)
}

func nameSuffix(env config.Environment) string {
	return fmt.Sprintf("-%s-%s", env.Suffix, env.Stage)
}

// Resolve returns the environment's tables for the requested logical names,
// or every table in the environment when logicals is empty. A failing listing
// call fails the whole step; no partial results.
func Resolve(ctx context.Context, st *store.Client, env config.Environment, logicals []string) ([]Table, error) {
	if env.Suffix == "" {
		return nil, fmt.Errorf("discovery: empty environment suffix")
	}

	names, err := st.ListTableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}

	suffix := nameSuffix(env)
	existing := make(map[string]string) // logical -> physical
	for _, name := range names {
		if strings.HasSuffix(name, suffix) {
			logical := strings.TrimSuffix(name, suffix)
			if logical != "" {
				existing[logical] = name
			}
		}
	}

	var tables []Table
	if len(logicals) == 0 {
		for logical, physical := range existing {
			tables = append(tables, Table{Logical: logical, Physical: physical, Exists: true})
		}
		sort.Slice(tables, func(i, j int) bool { return tables[i].Logical < tables[j].Logical })
		return tables, nil
	}

	for _, logical := range logicals {
		physical, ok := existing[logical]
		if !ok {
			physical = PhysicalName(logical, env)
		}
		tables = append(tables, Table{Logical: logical, Physical: physical, Exists: ok})
	}
	return tables, nil
}
